// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ianlewis/go-warc/warc"
)

func TestListCommandPrintsOneRowPerRecord(t *testing.T) {
	path := writeFixture(t, []warc.BuildParams{
		{Type: warc.TypeResource, TargetURI: "https://example.com/a"},
		{Type: warc.TypeResponse, TargetURI: "https://example.com/b"},
	})

	app := newWarcApp()
	stdout, stderr, err := runApp(app, "list", path)
	require.NoError(t, err, "stderr: %s", stderr)
	require.Contains(t, stdout, "example.com/a")
	require.Contains(t, stdout, "example.com/b")
	require.Contains(t, stdout, "resource")
	require.Contains(t, stdout, "response")
}

func TestListCommandRequiresExactlyOneFile(t *testing.T) {
	app := newWarcApp()
	_, _, err := runApp(app, "list")
	require.Error(t, err)
}

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
	"bufio"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ianlewis/go-warc/warc"
)

func TestIndexCommandWritesOneLinePerRecord(t *testing.T) {
	path := writeFixture(t, []warc.BuildParams{
		{Type: warc.TypeResource, TargetURI: "https://example.com/a"},
		{Type: warc.TypeResource, TargetURI: "https://example.com/b"},
	})

	app := newWarcApp()
	stdout, stderr, err := runApp(app, "index", path)
	require.NoError(t, err, "stderr: %s", stderr)

	scanner := bufio.NewScanner(strings.NewReader(stdout))
	var entries []indexEntry
	for scanner.Scan() {
		var e indexEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		entries = append(entries, e)
	}
	require.Len(t, entries, 2)
	require.Equal(t, "https://example.com/a", entries[0].TargetURI)
	require.Equal(t, "https://example.com/b", entries[1].TargetURI)
}

func TestIndexCommandRequiresAtLeastOneFile(t *testing.T) {
	app := newWarcApp()
	_, _, err := runApp(app, "index")
	require.Error(t, err)
}

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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ianlewis/go-warc/warc"
)

func TestRecompressCommandRewritesArchive(t *testing.T) {
	in := writeFixture(t, []warc.BuildParams{
		{Type: warc.TypeResource, TargetURI: "https://example.com/a", Payload: strings.NewReader("hello world")},
	})
	out := filepath.Join(t.TempDir(), "out.warc.gz")

	app := newWarcApp()
	stdout, stderr, err := runApp(app, "recompress", "--verbose", in, out)
	require.NoError(t, err, "stderr: %s", stderr)
	require.Contains(t, stdout, "1 records written")

	_, err = os.Stat(out)
	require.NoError(t, err)

	app2 := newWarcApp()
	listOut, listErr, err := runApp(app2, "list", out)
	require.NoError(t, err, "stderr: %s", listErr)
	require.Contains(t, listOut, "example.com/a")
}

func TestRecompressCommandRequiresTwoArgs(t *testing.T) {
	app := newWarcApp()
	_, _, err := runApp(app, "recompress", "onlyonearg")
	require.Error(t, err)
}

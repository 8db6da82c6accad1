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

package reader

import (
	"io"
	"strings"
	"testing"
)

func TestChunkedReaderDecodesChunks(t *testing.T) {
	t.Parallel()

	raw := "5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n"
	base, err := NewBufferedReader(strings.NewReader(raw), KindNone)
	if err != nil {
		t.Fatalf("NewBufferedReader: %v", err)
	}
	cr := NewChunkedReader(base, true)

	got, err := io.ReadAll(cr)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "hello world" {
		t.Errorf("got %q, want %q", got, "hello world")
	}
}

func TestChunkedReaderIgnoresExtensions(t *testing.T) {
	t.Parallel()

	raw := "3;foo=bar\r\nabc\r\n0\r\n\r\n"
	base, err := NewBufferedReader(strings.NewReader(raw), KindNone)
	if err != nil {
		t.Fatalf("NewBufferedReader: %v", err)
	}
	cr := NewChunkedReader(base, true)

	got, err := io.ReadAll(cr)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "abc" {
		t.Errorf("got %q, want %q", got, "abc")
	}
}

func TestChunkedReaderFallsBackWhenNotActuallyChunked(t *testing.T) {
	t.Parallel()

	raw := "not a chunk size\nmore data"
	base, err := NewBufferedReader(strings.NewReader(raw), KindNone)
	if err != nil {
		t.Fatalf("NewBufferedReader: %v", err)
	}
	cr := NewChunkedReader(base, false)

	got, err := io.ReadAll(cr)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != raw {
		t.Errorf("got %q, want pass-through of %q", got, raw)
	}
}

func TestChunkedReaderStrictRejectsMalformed(t *testing.T) {
	t.Parallel()

	raw := "not a chunk size\nmore data"
	base, err := NewBufferedReader(strings.NewReader(raw), KindNone)
	if err != nil {
		t.Fatalf("NewBufferedReader: %v", err)
	}
	cr := NewChunkedReader(base, true)

	if _, err := io.ReadAll(cr); err == nil {
		t.Error("ReadAll succeeded in strict mode on malformed chunk size, want error")
	}
}

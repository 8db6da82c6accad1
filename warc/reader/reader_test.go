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
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func gzipMember(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func TestBufferedReaderConcatenatedGzipMembers(t *testing.T) {
	t.Parallel()

	var src bytes.Buffer
	src.Write(gzipMember(t, []byte("first member")))
	src.Write(gzipMember(t, []byte("second member")))

	r, err := NewBufferedReader(&src, KindGzip)
	if err != nil {
		t.Fatalf("NewBufferedReader: %v", err)
	}

	first, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll (first member): %v", err)
	}
	if string(first) != "first member" {
		t.Errorf("first member = %q, want %q", first, "first member")
	}

	hasNext, err := r.HasNextMember()
	if err != nil {
		t.Fatalf("HasNextMember: %v", err)
	}
	if !hasNext {
		t.Fatal("HasNextMember() = false, want true")
	}

	second, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll (second member): %v", err)
	}
	if string(second) != "second member" {
		t.Errorf("second member = %q, want %q", second, "second member")
	}

	hasNext, err = r.HasNextMember()
	if err != nil {
		t.Fatalf("HasNextMember (end): %v", err)
	}
	if hasNext {
		t.Error("HasNextMember() = true at end of stream, want false")
	}
}

func TestBufferedReaderUncompressedFallback(t *testing.T) {
	t.Parallel()

	src := bytes.NewReader([]byte("plain text, not gzip"))
	r, err := NewBufferedReader(src, KindGzip)
	if err != nil {
		t.Fatalf("NewBufferedReader: %v", err)
	}

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "plain text, not gzip" {
		t.Errorf("got %q, want pass-through of original bytes", got)
	}
}

func TestBufferedReaderNoneKind(t *testing.T) {
	t.Parallel()

	r, err := NewBufferedReader(bytes.NewReader([]byte("abc\ndef")), KindNone)
	if err != nil {
		t.Fatalf("NewBufferedReader: %v", err)
	}
	line, err := r.ReadLine(100)
	if err != nil && err != io.EOF {
		t.Fatalf("ReadLine: %v", err)
	}
	if string(line) != "abc\n" {
		t.Errorf("ReadLine = %q, want %q", line, "abc\n")
	}
}

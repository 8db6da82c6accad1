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

package warc

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/ianlewis/go-warc/warc/reader"
)

func TestWriterRoundTripsThroughIterator(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf, WithWriterGzip(true))

	if err := w.WriteRecord(BuildParams{
		Type:      TypeResource,
		TargetURI: "http://example.com/",
		Payload:   strings.NewReader("hello world"),
	}); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}

	it, err := NewWARCIterator(bytes.NewReader(buf.Bytes()), WithDigests(reader.DigestSilent))
	if err != nil {
		t.Fatalf("NewWARCIterator: %v", err)
	}
	rec, err := it.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if rec.TargetURI() != "http://example.com/" {
		t.Errorf("TargetURI = %q, want %q", rec.TargetURI(), "http://example.com/")
	}
	got, err := io.ReadAll(rec.RawStream())
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "hello world" {
		t.Errorf("body = %q, want %q", got, "hello world")
	}

	if _, err := it.Next(); err != io.EOF { //nolint:errorlint // io.EOF is a sentinel.
		t.Fatalf("Next (2) = %v, want io.EOF", err)
	}
}

func TestWriterUncompressedStream(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf, WithWriterGzip(false))

	for _, uri := range []string{"http://example.com/1", "http://example.com/2"} {
		if err := w.WriteRecord(BuildParams{
			Type:      TypeResource,
			TargetURI: uri,
			Payload:   strings.NewReader("x"),
		}); err != nil {
			t.Fatalf("WriteRecord(%s): %v", uri, err)
		}
	}

	it, err := NewWARCIterator(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("NewWARCIterator: %v", err)
	}
	var uris []string
	for {
		rec, err := it.Next()
		if err == io.EOF { //nolint:errorlint // io.EOF is a sentinel.
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		uris = append(uris, rec.TargetURI())
	}
	if len(uris) != 2 || uris[0] != "http://example.com/1" || uris[1] != "http://example.com/2" {
		t.Errorf("uris = %v, want two records in order", uris)
	}
}

func TestWriterRequestResponsePairLinksRecords(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf, WithWriterGzip(false))

	err := w.WriteRequestResponsePair(
		BuildParams{TargetURI: "http://example.com/", Payload: strings.NewReader("GET / HTTP/1.1\r\n\r\n")},
		BuildParams{TargetURI: "http://example.com/", Payload: strings.NewReader("HTTP/1.1 200 OK\r\n\r\nbody")},
	)
	if err != nil {
		t.Fatalf("WriteRequestResponsePair: %v", err)
	}

	it, err := NewWARCIterator(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("NewWARCIterator: %v", err)
	}

	req, err := it.Next()
	if err != nil {
		t.Fatalf("Next (request): %v", err)
	}
	resp, err := it.Next()
	if err != nil {
		t.Fatalf("Next (response): %v", err)
	}

	reqConcurrent, _ := req.header("WARC-Concurrent-To")
	respID := resp.RecordID()
	if reqConcurrent != respID {
		t.Errorf("request WARC-Concurrent-To = %q, want response id %q", reqConcurrent, respID)
	}
}

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
	"compress/zlib"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"

	"github.com/ianlewis/go-warc/warc/reader"
)

// ContentStream returns a view of the record's body that additionally
// strips HTTP chunked transfer-encoding framing (if the embedded HTTP
// headers announce Transfer-Encoding: chunked) and decodes content
// codings (if they announce a Content-Encoding this package knows:
// gzip, deflate, or br). It shares the same underlying budget as
// RawStream — only one of the two should be read from a given Record.
func (r *Record) ContentStream() (io.Reader, error) {
	var body io.Reader = r.rawStream

	if r.HTTPHeaders != nil {
		if te, ok := r.HTTPHeaders.Get("Transfer-Encoding"); ok && strings.Contains(strings.ToLower(te), "chunked") {
			rr, ok := body.(reader.Reader)
			if !ok {
				rr = &readerAdapter{r: body}
			}
			body = reader.NewChunkedReader(rr, false)
		}

		if ce, ok := r.HTTPHeaders.Get("Content-Encoding"); ok {
			dec, err := decodeContentCoding(body, ce)
			if err != nil {
				return nil, err
			}
			body = dec
		}
	}

	return body, nil
}

// decodeContentCoding wraps body with a decoder for the named HTTP
// content coding. Unknown codings are passed through unchanged, since
// spec.md leaves "identity" and experimental codings undefined rather
// than erroring the whole record over a cosmetic field.
func decodeContentCoding(body io.Reader, coding string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(coding)) {
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("warc: decoding gzip content-encoding: %w", err)
		}
		return gz, nil
	case "deflate":
		zr, err := zlib.NewReader(body)
		if err != nil {
			return flate.NewReader(body), nil
		}
		return zr, nil
	case "br":
		return brotli.NewReader(body), nil
	default:
		return body, nil
	}
}

// readerAdapter adapts a plain io.Reader to this module's small Reader
// capability for callers (e.g. ContentStream on a record whose
// RawStream is a bare io.Reader, as in tests) that do not already carry
// ReadLine/Tell.
type readerAdapter struct {
	r    io.Reader
	tell int64
}

func (a *readerAdapter) Read(p []byte) (int, error) {
	n, err := a.r.Read(p)
	a.tell += int64(n)
	return n, err
}

func (a *readerAdapter) ReadLine(max int) ([]byte, error) {
	var line []byte
	buf := make([]byte, 1)
	for len(line) < max {
		n, err := a.Read(buf)
		if n > 0 {
			line = append(line, buf[0])
			if buf[0] == '\n' {
				return line, nil
			}
		}
		if err != nil {
			return line, err
		}
	}
	return line, nil
}

func (a *readerAdapter) Tell() int64 {
	return a.tell
}

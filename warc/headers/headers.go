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

// Package headers implements the statusline-and-headers block shared by
// WARC record headers and the embedded HTTP request/response messages a
// WARC record's body may carry. It is one parser and one serializer
// reused for both.
package headers

import (
	"bufio"
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// ErrStatusLine indicates a statusline did not start with any of the
// caller's accepted prefixes.
var ErrStatusLine = errors.New("headers: unrecognized status line")

// Header is a single (name, value) pair. Ordered sequences of Header
// preserve file order; lookups elsewhere in this package are
// case-insensitive on Name.
type Header struct {
	Name  string
	Value string
}

// StatusAndHeaders is a parsed "statusline + header block": a WARC
// record header ("WARC/1.1 ... \r\n Name: Value \r\n ..."), or an
// embedded HTTP request/response ("GET / HTTP/1.1 ..." / "HTTP/1.1 200
// OK ..."). Headers preserve insertion order and allow duplicate names
// except where the caller enforces otherwise.
type StatusAndHeaders struct {
	// Protocol is the first token of the statusline (e.g. "WARC/1.1",
	// "HTTP/1.1", "GET").
	Protocol string

	// StatusLine is the full first line, unparsed beyond Protocol.
	StatusLine string

	// Headers are the (name, value) pairs following the statusline, in
	// file order.
	Headers []Header
}

// New returns an empty StatusAndHeaders for the given protocol and
// statusline.
func New(protocol, statusLine string) *StatusAndHeaders {
	return &StatusAndHeaders{Protocol: protocol, StatusLine: statusLine}
}

// Get returns the first header value matching name, case-insensitively,
// and whether one was found.
func (s *StatusAndHeaders) Get(name string) (string, bool) {
	for _, h := range s.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// GetAll returns every header value matching name, case-insensitively,
// in file order.
func (s *StatusAndHeaders) GetAll(name string) []string {
	var out []string
	for _, h := range s.Headers {
		if strings.EqualFold(h.Name, name) {
			out = append(out, h.Value)
		}
	}
	return out
}

// Set replaces the first header matching name (case-insensitively) with
// value, or appends a new header if none matched.
func (s *StatusAndHeaders) Set(name, value string) {
	for i, h := range s.Headers {
		if strings.EqualFold(h.Name, name) {
			s.Headers[i].Value = value
			return
		}
	}
	s.Add(name, value)
}

// Add appends a new header, allowing duplicates.
func (s *StatusAndHeaders) Add(name, value string) {
	s.Headers = append(s.Headers, Header{Name: name, Value: value})
}

// Remove deletes every header matching name, case-insensitively.
func (s *StatusAndHeaders) Remove(name string) {
	out := s.Headers[:0]
	for _, h := range s.Headers {
		if !strings.EqualFold(h.Name, name) {
			out = append(out, h)
		}
	}
	s.Headers = out
}

// lineReader is the minimal capability Parse needs from its source: a
// readline primitive bounded by a maximum line length, matching the
// buffered reader stack's own readline(n) contract so Parse can be
// driven directly off it without an intermediate bufio.Reader
// allocation in the hot path.
type lineReader interface {
	ReadLine(max int) ([]byte, error)
}

// maxLineLength bounds a single statusline or header line; WARC/HTTP
// headers this large indicate a corrupt or adversarial stream, not a
// legitimate capture.
const maxLineLength = 1 << 20

// Parse reads a statusline followed by header lines up to a blank line
// from r. acceptedPrefixes lists the statusline prefixes this call
// site considers valid (e.g. []string{"WARC/"}, or HTTP methods plus
// "HTTP/" for a request-or-response embedded message). If verify is
// true and the statusline matches none of acceptedPrefixes, Parse
// returns ErrStatusLine. It returns the parsed StatusAndHeaders and the
// number of bytes consumed from r.
func Parse(r lineReader, acceptedPrefixes []string, verify bool) (*StatusAndHeaders, int64, error) {
	var consumed int64

	// Skip any leading blank lines, as some captures insert extra CRLFs
	// between records.
	var line []byte
	for {
		l, err := r.ReadLine(maxLineLength)
		consumed += int64(len(l))
		if err != nil {
			return nil, consumed, fmt.Errorf("reading status line: %w", err)
		}
		line = bytes.TrimRight(l, "\r\n")
		if len(line) > 0 {
			break
		}
	}

	statusLine := decodeLine(line)
	if verify && statusLinePrefix(statusLine, acceptedPrefixes) == "" {
		return nil, consumed, fmt.Errorf("%w: %q", ErrStatusLine, statusLine)
	}
	// Protocol is the statusline's first whitespace-delimited token.
	protocol := statusLine
	if idx := strings.IndexAny(statusLine, " \t"); idx >= 0 {
		protocol = statusLine[:idx]
	}

	sh := New(protocol, statusLine)

	var lastHeaderIdx = -1
	for {
		l, err := r.ReadLine(maxLineLength)
		consumed += int64(len(l))
		if err != nil {
			return nil, consumed, fmt.Errorf("reading headers: %w", err)
		}
		trimmed := bytes.TrimRight(l, "\r\n")
		if len(trimmed) == 0 {
			break
		}

		if (trimmed[0] == ' ' || trimmed[0] == '\t') && lastHeaderIdx >= 0 {
			// Continuation line: fold into the previous header's value.
			cont := strings.TrimSpace(decodeLine(trimmed))
			sh.Headers[lastHeaderIdx].Value += " " + cont
			continue
		}

		decoded := decodeLine(trimmed)
		idx := strings.IndexByte(decoded, ':')
		if idx < 0 {
			// Malformed header line with no colon: treat the whole line
			// as the name with an empty value rather than dropping it.
			sh.Headers = append(sh.Headers, Header{Name: strings.TrimSpace(decoded)})
			lastHeaderIdx = len(sh.Headers) - 1
			continue
		}
		name := strings.TrimSpace(decoded[:idx])
		value := strings.TrimSpace(decoded[idx+1:])
		sh.Headers = append(sh.Headers, Header{Name: name, Value: value})
		lastHeaderIdx = len(sh.Headers) - 1
	}

	return sh, consumed, nil
}

// statusLinePrefix returns the accepted prefix matched by line, or "" if
// none match. Prefixes are matched case-sensitively, per WARC/HTTP wire
// convention (method tokens and "WARC"/"HTTP" are always upper-case).
func statusLinePrefix(line string, prefixes []string) string {
	for _, p := range prefixes {
		if strings.HasPrefix(line, p) {
			return p
		}
	}
	return ""
}

// decodeLine decodes b as UTF-8; if that fails, it falls back to
// ISO-8859-1 (Latin-1), the historical default for HTTP header bytes
// per RFC 7230 §3.2.4. ISO-8859-1 decoding is total over any byte
// string, so this function never fails.
func decodeLine(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

// FilterFunc may rewrite or drop a header during serialization. It
// returns the (possibly modified) name/value and false to drop the
// header entirely.
type FilterFunc func(name, value string) (string, string, bool)

// ToBytes serializes the statusline and headers, CRLF-terminated, ending
// with a blank CRLF line. If filter is non-nil it is called for every
// header; a header for which it returns ok=false is omitted. Output is
// guaranteed ASCII: any header value containing non-ASCII bytes is
// percent-encoded per RFC 8187 (the same scheme HTTP uses for
// Content-Disposition's filename* parameter).
func (s *StatusAndHeaders) ToBytes(filter FilterFunc) []byte {
	var buf bytes.Buffer
	buf.WriteString(s.StatusLine)
	buf.WriteString("\r\n")

	for _, h := range s.Headers {
		name, value := h.Name, h.Value
		ok := true
		if filter != nil {
			name, value, ok = filter(name, value)
		}
		if !ok {
			continue
		}
		buf.WriteString(name)
		buf.WriteString(": ")
		buf.WriteString(encodeValue(value))
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\n")
	return buf.Bytes()
}

// encodeValue returns value unchanged if it is pure ASCII. Otherwise it
// applies RFC 8187 encoding: a "name=value" or "name=\"value\"" trailing
// parameter with non-ASCII content has that parameter rewritten as
// "name*=UTF-8''<percent-encoded>"; a value with no "=" is percent-
// encoded in its entirety.
func encodeValue(value string) string {
	if isASCII(value) {
		return value
	}

	if idx := strings.LastIndexByte(value, '='); idx >= 0 {
		name := value[:idx]
		param := strings.Trim(value[idx+1:], `"`)
		return name + "*=UTF-8''" + url.PathEscape(param)
	}

	return url.PathEscape(value)
}

const maxASCII = 0x7f

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > maxASCII {
			return false
		}
	}
	return true
}

// NewLineReader adapts a *bufio.Reader to the lineReader interface Parse
// expects, for callers (typically tests) that already have a
// bufio.Reader rather than this module's own buffered reader stack.
func NewLineReader(r *bufio.Reader) lineReader {
	return bufioLineReader{r}
}

type bufioLineReader struct {
	r *bufio.Reader
}

func (b bufioLineReader) ReadLine(max int) ([]byte, error) {
	line, err := b.r.ReadBytes('\n')
	if len(line) > max {
		line = line[:max]
	}
	return line, err
}

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

package headers

import (
	"bufio"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseWARCHeaders(t *testing.T) {
	t.Parallel()

	raw := "WARC/1.1\r\n" +
		"WARC-Type: response\r\n" +
		"WARC-Record-ID: <urn:uuid:abc>\r\n" +
		"Content-Length: 10\r\n" +
		"X-Folded: line one\r\n continuation\r\n\r\n"

	sh, n, err := Parse(NewLineReader(bufio.NewReader(strings.NewReader(raw))), []string{"WARC/"}, true)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if sh.Protocol != "WARC/1.1" {
		t.Errorf("Protocol = %q, want %q", sh.Protocol, "WARC/1.1")
	}
	if v, ok := sh.Get("warc-type"); !ok || v != "response" {
		t.Errorf("Get(warc-type) = %q, %v, want \"response\", true", v, ok)
	}
	if v, _ := sh.Get("X-Folded"); v != "line one continuation" {
		t.Errorf("Get(X-Folded) = %q, want folded continuation", v)
	}
	if int(n) != len(raw) {
		t.Errorf("consumed = %d, want %d", n, len(raw))
	}
}

func TestParseRejectsUnknownStatusLine(t *testing.T) {
	t.Parallel()

	raw := "NOTWARC/1.1\r\n\r\n"
	_, _, err := Parse(NewLineReader(bufio.NewReader(strings.NewReader(raw))), []string{"WARC/"}, true)
	if err == nil {
		t.Fatal("Parse succeeded, want ErrStatusLine")
	}
}

func TestToBytesRoundTrip(t *testing.T) {
	t.Parallel()

	sh := New("WARC/1.1", "WARC/1.1")
	sh.Add("WARC-Type", "resource")
	sh.Add("Content-Length", "0")

	out := sh.ToBytes(nil)
	want := "WARC/1.1\r\nWARC-Type: resource\r\nContent-Length: 0\r\n\r\n"
	if diff := cmp.Diff(want, string(out)); diff != "" {
		t.Errorf("ToBytes() mismatch (-want +got):\n%s", diff)
	}
}

func TestToBytesRFC8187Encoding(t *testing.T) {
	t.Parallel()

	sh := New("HTTP/1.1", "HTTP/1.1 200 OK")
	sh.Add("Content-Type", `text/plain; charset="UTF-8"`)
	sh.Add("Content-Disposition", `attachment; filename="испытание.txt"`)

	out := sh.ToBytes(nil)
	for _, b := range out {
		if b > 0x7f {
			t.Fatalf("ToBytes() output is not ASCII: %q", out)
		}
	}

	want := "attachment; filename*=UTF-8''%D0%B8%D1%81%D0%BF%D1%8B%D1%82%D0%B0%D0%BD%D0%B8%D0%B5.txt"
	if !strings.Contains(string(out), want) {
		t.Errorf("ToBytes() = %q, want containing %q", out, want)
	}
}

func TestToBytesRFC8187EncodingWholeValueNoEquals(t *testing.T) {
	t.Parallel()

	sh := New("WARC/1.1", "WARC/1.1")
	sh.Add("WARC-Target-URI", "http://example.com/испытание")

	out := sh.ToBytes(nil)
	for _, b := range out {
		if b > 0x7f {
			t.Fatalf("ToBytes() output is not ASCII: %q", out)
		}
	}

	want := "WARC-Target-URI: " + url.PathEscape("http://example.com/испытание") + "\r\n"
	if !strings.Contains(string(out), want) {
		t.Errorf("ToBytes() = %q, want containing %q", out, want)
	}
	if strings.Contains(string(out), "*=UTF-8''") {
		t.Errorf("ToBytes() = %q, should not contain a bogus RFC 8187 parameter prefix for a whole-value encoding", out)
	}
}

func TestToBytesFilter(t *testing.T) {
	t.Parallel()

	sh := New("WARC/1.1", "WARC/1.1")
	sh.Add("WARC-Type", "resource")
	sh.Add("Drop-Me", "x")

	out := sh.ToBytes(func(name, value string) (string, string, bool) {
		if name == "Drop-Me" {
			return "", "", false
		}
		return name, value, true
	})
	if strings.Contains(string(out), "Drop-Me") {
		t.Errorf("ToBytes() with filter still contains Drop-Me: %q", out)
	}
}

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
	"io"
	"strings"
	"testing"
	"time"
)

func TestBuilderSetsRequiredHeaders(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	sh, body, err := b.Build(BuildParams{
		Type:      TypeResource,
		TargetURI: "http://example.com/",
		Date:      time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC),
		Payload:   strings.NewReader("hello world"),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if v, _ := sh.Get("WARC-Type"); v != "resource" {
		t.Errorf("WARC-Type = %q, want %q", v, "resource")
	}
	if v, _ := sh.Get("WARC-Record-ID"); !strings.HasPrefix(v, "<urn:uuid:") {
		t.Errorf("WARC-Record-ID = %q, want a urn:uuid", v)
	}
	if v, _ := sh.Get("WARC-Date"); v != "2020-01-02T03:04:05.000000Z" {
		t.Errorf("WARC-Date = %q, want microsecond-precision UTC", v)
	}
	if v, _ := sh.Get("Content-Length"); v != "11" {
		t.Errorf("Content-Length = %q, want %q", v, "11")
	}
	if v, _ := sh.Get("Content-Type"); v != "application/octet-stream" {
		t.Errorf("Content-Type = %q, want default", v)
	}
	if v, _ := sh.Get("WARC-Block-Digest"); !strings.HasPrefix(v, "sha1:") {
		t.Errorf("WARC-Block-Digest = %q, want sha1 digest", v)
	}
	if v, _ := sh.Get("WARC-Payload-Digest"); !strings.HasPrefix(v, "sha1:") {
		t.Errorf("WARC-Payload-Digest = %q, want sha1 digest", v)
	}

	got, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "hello world" {
		t.Errorf("body = %q, want %q", got, "hello world")
	}
}

func TestBuilderWARC10UsesSecondPrecisionDate(t *testing.T) {
	t.Parallel()

	b := NewBuilder(WithBuilderWARCVersion("WARC/1.0"))
	sh, _, err := b.Build(BuildParams{
		Type: TypeResource,
		Date: time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if v, _ := sh.Get("WARC-Date"); v != "2020-01-02T03:04:05Z" {
		t.Errorf("WARC-Date = %q, want second-precision", v)
	}
}

func TestBuilderRevisitRequiresProfileAndRefersTo(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	_, _, err := b.Build(BuildParams{Type: TypeRevisit})
	if err == nil {
		t.Fatal("Build() = nil error, want missing Profile/RefersToTargetURI error")
	}
}

func TestBuilderRevisitSetsMandatoryFields(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	httpHeaders := "HTTP/1.1 304 Not Modified\r\n\r\n"
	sh, _, err := b.Build(BuildParams{
		Type:              TypeRevisit,
		TargetURI:         "http://example.com/",
		Profile:           ProfileServerNotModified,
		RefersToTargetURI: "http://example.com/",
		Payload:           strings.NewReader(httpHeaders),
		HTTPHeaderLen:     int64(len(httpHeaders)),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if v, _ := sh.Get("WARC-Profile"); v != ProfileServerNotModified {
		t.Errorf("WARC-Profile = %q, want %q", v, ProfileServerNotModified)
	}
	if v, _ := sh.Get("WARC-Payload-Digest"); v == "" {
		t.Error("WARC-Payload-Digest = \"\", want non-empty even for a zero-length payload")
	}
}

func TestBuilderExtraHeaders(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	sh, _, err := b.Build(BuildParams{
		Type:    TypeWARCInfo,
		Headers: map[string]string{"WARC-Filename": "crawl-001.warc.gz"},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if v, _ := sh.Get("WARC-Filename"); v != "crawl-001.warc.gz" {
		t.Errorf("WARC-Filename = %q, want %q", v, "crawl-001.warc.gz")
	}
}

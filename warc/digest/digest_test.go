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

package digest

import (
	"encoding/base32"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"
)

func TestDigesterMatchesAcrossAlphabets(t *testing.T) {
	t.Parallel()

	d, err := NewDigester("sha1")
	if err != nil {
		t.Fatalf("NewDigester: %v", err)
	}
	if _, err := d.Write([]byte("hello world")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	sum := d.Sum()

	testCases := []struct {
		name    string
		encoded string
	}{
		{"hex-lower", "sha1:" + hex.EncodeToString(sum)},
		{"hex-upper", "sha1:" + strings.ToUpper(hex.EncodeToString(sum))},
		{"base32", "sha1:" + base32.StdEncoding.EncodeToString(sum)},
		{"base32-nopad", "sha1:" + base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(sum)},
		{"base64", "sha1:" + base64.StdEncoding.EncodeToString(sum)},
		{"base64url", "sha1:" + base64.URLEncoding.EncodeToString(sum)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if !d.Matches(tc.encoded) {
				t.Errorf("Matches(%q) = false, want true", tc.encoded)
			}
		})
	}
}

func TestDigesterMatchesRejectsTampered(t *testing.T) {
	t.Parallel()

	d, err := NewDigester("sha1")
	if err != nil {
		t.Fatalf("NewDigester: %v", err)
	}
	if _, err := d.Write([]byte("hello world")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if d.Matches("sha1:" + hex.EncodeToString(make([]byte, 20))) {
		t.Error("Matches returned true for a digest of all zero bytes")
	}
}

func TestNewDigesterUnknownAlgorithm(t *testing.T) {
	t.Parallel()

	if _, err := NewDigester("crc32"); err == nil {
		t.Error("NewDigester(\"crc32\") succeeded, want error")
	}
}

func TestParseMalformed(t *testing.T) {
	t.Parallel()

	if _, _, err := Parse("not-a-digest"); err == nil {
		t.Error("Parse succeeded on header with no colon, want error")
	}
}

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
	"crypto/sha1" //nolint:gosec // test fixture digest, matches archived algorithm.
	"encoding/base32"
	"io"
	"strings"
	"testing"
)

func TestLimitReaderClampsToBudget(t *testing.T) {
	t.Parallel()

	base, err := NewBufferedReader(strings.NewReader("0123456789"), KindNone)
	if err != nil {
		t.Fatalf("NewBufferedReader: %v", err)
	}
	lr := NewLimitReader(base, 5)

	got, err := io.ReadAll(lr)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "01234" {
		t.Errorf("got %q, want %q", got, "01234")
	}
}

func sha1Digest(t *testing.T, data string) string {
	t.Helper()
	sum := sha1.Sum([]byte(data)) //nolint:gosec // test fixture digest.
	return "sha1:" + base32.StdEncoding.EncodeToString(sum[:])
}

func TestDigestVerifyingReaderPassesOnMatch(t *testing.T) {
	t.Parallel()

	payload := "hello world"
	base, err := NewBufferedReader(strings.NewReader(payload), KindNone)
	if err != nil {
		t.Fatalf("NewBufferedReader: %v", err)
	}
	lr := NewLimitReader(base, int64(len(payload)))
	checker := NewChecker(DigestSilent)

	dv, err := NewDigestVerifyingReader(lr, checker, "sha1", "sha1", sha1Digest(t, payload), "")
	if err != nil {
		t.Fatalf("NewDigestVerifyingReader: %v", err)
	}

	if _, err := io.ReadAll(dv); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	if got := checker.Passed(); got == nil || !*got {
		t.Errorf("Passed() = %v, want true", got)
	}
	if len(checker.Problems()) != 0 {
		t.Errorf("Problems() = %v, want empty", checker.Problems())
	}
}

func TestDigestVerifyingReaderRecordsMismatchSilently(t *testing.T) {
	t.Parallel()

	payload := "hello world"
	base, err := NewBufferedReader(strings.NewReader(payload), KindNone)
	if err != nil {
		t.Fatalf("NewBufferedReader: %v", err)
	}
	lr := NewLimitReader(base, int64(len(payload)))
	checker := NewChecker(DigestSilent)

	tampered := "sha1:" + base32.StdEncoding.EncodeToString(make([]byte, 20))
	dv, err := NewDigestVerifyingReader(lr, checker, "sha1", "sha1", tampered, "")
	if err != nil {
		t.Fatalf("NewDigestVerifyingReader: %v", err)
	}

	if _, err := io.ReadAll(dv); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	if got := checker.Passed(); got == nil || *got {
		t.Errorf("Passed() = %v, want false", got)
	}
	if len(checker.Problems()) != 1 {
		t.Errorf("Problems() = %v, want exactly one entry", checker.Problems())
	}
}

func TestDigestVerifyingReaderRaisesOnMismatch(t *testing.T) {
	t.Parallel()

	payload := "hello world"
	base, err := NewBufferedReader(strings.NewReader(payload), KindNone)
	if err != nil {
		t.Fatalf("NewBufferedReader: %v", err)
	}
	lr := NewLimitReader(base, int64(len(payload)))
	checker := NewChecker(DigestRaise)

	tampered := "sha1:" + base32.StdEncoding.EncodeToString(make([]byte, 20))
	dv, err := NewDigestVerifyingReader(lr, checker, "sha1", "sha1", tampered, "")
	if err != nil {
		t.Fatalf("NewDigestVerifyingReader: %v", err)
	}

	if _, err := io.ReadAll(dv); err == nil {
		t.Error("ReadAll succeeded, want digest mismatch error")
	}
}

func TestDigestVerifyingReaderOffSkipsChecking(t *testing.T) {
	t.Parallel()

	payload := "hello world"
	base, err := NewBufferedReader(strings.NewReader(payload), KindNone)
	if err != nil {
		t.Fatalf("NewBufferedReader: %v", err)
	}
	lr := NewLimitReader(base, int64(len(payload)))
	checker := NewChecker(DigestOff)

	tampered := "sha1:" + base32.StdEncoding.EncodeToString(make([]byte, 20))
	dv, err := NewDigestVerifyingReader(lr, checker, "sha1", "sha1", tampered, "")
	if err != nil {
		t.Fatalf("NewDigestVerifyingReader: %v", err)
	}

	if _, err := io.ReadAll(dv); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if checker.Passed() != nil {
		t.Errorf("Passed() = %v, want nil (unknown)", checker.Passed())
	}
}

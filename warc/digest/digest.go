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

// Package digest implements incremental digesters over WARC block and
// payload bytes, and the base16/base32/base64 normalization needed to
// compare a declared "algorithm:value" WARC digest header against a
// recomputed one. The WARC specification references RFC 3548 without
// fixing an alphabet, and real-world archives mix all three.
package digest

import (
	"crypto/md5"  //nolint:gosec // WARC archives predate SHA-2 and still carry MD5 digests.
	"crypto/sha1" //nolint:gosec // WARC's most common digest algorithm is SHA-1.
	"crypto/sha256"
	"encoding/base32"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/pkg/errors"

	digestpkg "github.com/opencontainers/go-digest"
)

// ErrUnknownAlgorithm indicates a digest header named an algorithm this
// package does not implement.
var ErrUnknownAlgorithm = errors.New("digest: unknown algorithm")

// ErrMalformed indicates a digest header was not of the form
// "algorithm:value".
var ErrMalformed = errors.New("digest: malformed header value")

// newHash returns a fresh hash.Hash for the named algorithm, matching the
// lower-cased algorithm names seen in live WARC corpora: sha1 (the
// overwhelming majority), sha256, and md5.
func newHash(algorithm string) (hash.Hash, error) {
	switch strings.ToLower(algorithm) {
	case "sha1":
		return sha1.New(), nil //nolint:gosec // matching archived digest algorithm, not used for security.
	case "sha256":
		return sha256.New(), nil
	case "md5":
		return md5.New(), nil //nolint:gosec // matching archived digest algorithm, not used for security.
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}
}

// Digester accumulates a hash over a stream of bytes and renders it in
// the canonical "algorithm:base32value" form used by WARC digest headers.
type Digester struct {
	algorithm string
	h         hash.Hash
}

// NewDigester returns a Digester for the named algorithm (sha1, sha256, or
// md5, case-insensitive).
func NewDigester(algorithm string) (*Digester, error) {
	h, err := newHash(algorithm)
	if err != nil {
		return nil, err
	}
	return &Digester{algorithm: strings.ToLower(algorithm), h: h}, nil
}

// Write updates the digest with p. It never returns an error; it
// implements io.Writer so a Digester can be used as an io.MultiWriter
// target.
func (d *Digester) Write(p []byte) (int, error) {
	return d.h.Write(p) //nolint:wrapcheck // hash.Hash.Write never errors.
}

// String returns the digest in "algorithm:base32value" form, the
// encoding Builder writes into WARC digest headers.
func (d *Digester) String() string {
	return d.algorithm + ":" + base32.StdEncoding.EncodeToString(d.h.Sum(nil))
}

// Canonical returns the opencontainers canonical digest.Digest
// (algorithm:hex) form of the accumulated hash. Matches does not use
// it.
func (d *Digester) Canonical() digestpkg.Digest {
	alg := digestpkg.Algorithm(d.algorithm)
	return digestpkg.NewDigestFromBytes(alg, d.h.Sum(nil))
}

// Sum returns the raw accumulated digest bytes.
func (d *Digester) Sum() []byte {
	return d.h.Sum(nil)
}

// Algorithm returns the lower-cased algorithm name this Digester was
// constructed with.
func (d *Digester) Algorithm() string {
	return d.algorithm
}

// Parse splits a declared WARC digest header value ("algorithm:value")
// into its algorithm and raw decoded bytes. value may be encoded in
// base16 (hex, any case), base32 (standard alphabet, padding optional),
// base64 (standard alphabet), or base64url; Parse tries each in turn.
func Parse(declared string) (algorithm string, raw []byte, err error) {
	idx := strings.IndexByte(declared, ':')
	if idx < 0 {
		return "", nil, fmt.Errorf("%w: %q", ErrMalformed, declared)
	}
	algorithm = strings.ToLower(declared[:idx])
	value := declared[idx+1:]

	raw, err = decodeAny(value)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %q: %w", ErrMalformed, declared, err)
	}
	return algorithm, raw, nil
}

// decodeAny tries, in order, hex, base32 (padded and unpadded), base64
// standard, and base64 URL-safe, and returns the bytes from the first
// alphabet that decodes value. Digester.Matches compares those bytes,
// length first, against the accumulator's raw sum, so a value that
// also decodes under an earlier alphabet than the one it was written in
// fails to match; that takes a value whose characters all fall in the
// earlier alphabet, e.g. a base32 string made up only of hex digits,
// which is vanishingly rare in captured digests.
func decodeAny(value string) ([]byte, error) {
	upper := strings.ToUpper(value)

	if b, err := hex.DecodeString(value); err == nil {
		return b, nil
	}

	for _, enc := range []*base32.Encoding{base32.StdEncoding, base32.StdEncoding.WithPadding(base32.NoPadding)} {
		if b, err := enc.DecodeString(upper); err == nil {
			return b, nil
		}
	}

	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.StdEncoding.WithPadding(base64.NoPadding),
		base64.URLEncoding,
		base64.URLEncoding.WithPadding(base64.NoPadding),
	} {
		if b, err := enc.DecodeString(value); err == nil {
			return b, nil
		}
	}

	return nil, fmt.Errorf("value %q matches no known digest alphabet", value)
}

// Matches reports whether a declared WARC digest header value verifies
// against d's accumulated hash. Comparison is length-directed: declared
// is decoded from whichever alphabet it parses under (see decodeAny),
// then compared byte-for-byte against the accumulator's raw sum; the
// algorithm name in declared is not required to match d.Algorithm(),
// since some archival tools record it inconsistently, but callers that
// care should check it separately.
func (d *Digester) Matches(declared string) bool {
	_, raw, err := Parse(declared)
	if err != nil {
		return false
	}
	sum := d.Sum()
	if len(raw) != len(sum) {
		return false
	}
	for i := range sum {
		if raw[i] != sum[i] {
			return false
		}
	}
	return true
}

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
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/ianlewis/go-warc/warc/digest"
)

// errDigestMismatch is returned from Read/ReadLine when the checker's
// kind is DigestRaise and a declared digest fails to verify.
var errDigestMismatch = errors.New("digest mismatch")

// LimitReader wraps a Reader with a byte budget: the declared
// Content-Length of the record currently being read. Reads beyond the
// budget return io.EOF.
type LimitReader struct {
	src       Reader
	remaining int64
	tell      int64
}

// NewLimitReader returns a LimitReader over src bounded to n bytes.
func NewLimitReader(src Reader, n int64) *LimitReader {
	return &LimitReader{src: src, remaining: n}
}

// Read implements Reader.
func (l *LimitReader) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.src.Read(p)
	l.remaining -= int64(n)
	l.tell += int64(n)
	return n, err
}

// ReadLine implements Reader, clamped to the remaining budget.
func (l *LimitReader) ReadLine(max int) ([]byte, error) {
	if int64(max) > l.remaining {
		max = int(l.remaining)
	}
	if max <= 0 {
		return nil, io.EOF
	}
	line, err := l.src.ReadLine(max)
	l.remaining -= int64(len(line))
	l.tell += int64(len(line))
	return line, err
}

// Tell returns the number of bytes read from the budget so far.
func (l *LimitReader) Tell() int64 {
	return l.tell
}

// Remaining returns the number of bytes left in the budget.
func (l *LimitReader) Remaining() int64 {
	return l.remaining
}

// DigestKind selects how DigestVerifyingReader reacts to a digest
// mismatch.
type DigestKind int

const (
	// DigestOff disables digesters entirely: no hashing is performed.
	DigestOff DigestKind = iota
	// DigestSilent records problems and sets Passed() to false but
	// never returns an error.
	DigestSilent
	// DigestLog additionally logs each problem.
	DigestLog
	// DigestRaise makes Read/ReadLine return an error wrapping
	// errDigestMismatch at the first mismatch.
	DigestRaise
)

// Checker accumulates digest verification state for one record. Once
// Passed transitions to false, it never reverts; problems are never
// removed once appended.
type Checker struct {
	Kind     DigestKind
	passed   *bool // nil: unknown
	problems []string
}

// NewChecker returns a Checker of the given kind.
func NewChecker(kind DigestKind) *Checker {
	return &Checker{Kind: kind}
}

// Passed returns the tri-state verification result: nil means unknown
// (no digest was checked, e.g. DigestOff or none declared).
func (c *Checker) Passed() *bool {
	return c.passed
}

// Problems returns the immutable list of recorded digest problems.
func (c *Checker) Problems() []string {
	return c.problems
}

func (c *Checker) record(ok bool, problem string) {
	if c.passed == nil || *c.passed {
		v := ok
		c.passed = &v
	}
	if !ok {
		c.problems = append(c.problems, problem)
	}
}

// DigestVerifyingReader wraps a LimitReader (or any Reader with a fixed
// budget) and feeds every byte read through a block digester and,
// after BeginPayload is called, a payload digester. When the
// underlying reader is exhausted, declared digests are compared
// against the accumulators and the result recorded on the Checker.
type DigestVerifyingReader struct {
	src     *LimitReader
	checker *Checker

	blockDigest   *digest.Digester
	payloadDigest *digest.Digester
	inPayload     bool

	declaredBlock   string
	declaredPayload string
	finalized       bool
}

// NewDigestVerifyingReader returns a DigestVerifyingReader over src.
// blockAlg/payloadAlg select the digest algorithms (e.g. "sha1");
// declaredBlock/declaredPayload are the header values to verify
// against once the budget is exhausted. Either declared value may be
// empty, in which case that digest is not checked. If checker.Kind is
// DigestOff, no digesters are instantiated and all reads pass through
// unmodified.
func NewDigestVerifyingReader(src *LimitReader, checker *Checker, blockAlg, payloadAlg, declaredBlock, declaredPayload string) (*DigestVerifyingReader, error) {
	d := &DigestVerifyingReader{
		src:             src,
		checker:         checker,
		declaredBlock:   declaredBlock,
		declaredPayload: declaredPayload,
	}
	if checker.Kind == DigestOff {
		return d, nil
	}
	if declaredBlock != "" {
		bd, err := digest.NewDigester(blockAlg)
		if err != nil {
			return nil, fmt.Errorf("reader: block digester: %w", err)
		}
		d.blockDigest = bd
	}
	if declaredPayload != "" {
		pd, err := digest.NewDigester(payloadAlg)
		if err != nil {
			return nil, fmt.Errorf("reader: payload digester: %w", err)
		}
		d.payloadDigest = pd
	}
	return d, nil
}

// BeginPayload marks the start of the payload region: from this call
// onward, bytes update the payload digester in addition to the block
// digester.
func (d *DigestVerifyingReader) BeginPayload() {
	d.inPayload = true
}

// Read implements Reader.
func (d *DigestVerifyingReader) Read(p []byte) (int, error) {
	n, err := d.src.Read(p)
	d.update(p[:n])
	if errors.Is(err, io.EOF) {
		if ferr := d.finalize(); ferr != nil {
			return n, ferr
		}
	}
	return n, err
}

// ReadLine implements Reader.
func (d *DigestVerifyingReader) ReadLine(max int) ([]byte, error) {
	line, err := d.src.ReadLine(max)
	d.update(line)
	if errors.Is(err, io.EOF) {
		if ferr := d.finalize(); ferr != nil {
			return line, ferr
		}
	}
	return line, err
}

func (d *DigestVerifyingReader) update(p []byte) {
	if len(p) == 0 {
		return
	}
	if d.blockDigest != nil {
		_, _ = d.blockDigest.Write(p)
	}
	if d.inPayload && d.payloadDigest != nil {
		_, _ = d.payloadDigest.Write(p)
	}
}

// Tell returns the number of bytes read from the budget so far.
func (d *DigestVerifyingReader) Tell() int64 {
	return d.src.Tell()
}

// finalize compares declared digests against the accumulators once the
// budget is exhausted. It is idempotent.
func (d *DigestVerifyingReader) finalize() error {
	if d.finalized || d.checker.Kind == DigestOff {
		return nil
	}
	d.finalized = true

	if d.blockDigest != nil && d.declaredBlock != "" {
		if err := d.verify("block", d.declaredBlock, d.blockDigest); err != nil {
			return err
		}
	}
	if d.payloadDigest != nil && d.declaredPayload != "" {
		if err := d.verify("payload", d.declaredPayload, d.payloadDigest); err != nil {
			return err
		}
	}
	return nil
}

func (d *DigestVerifyingReader) verify(kind, declared string, dg *digest.Digester) error {
	ok := dg.Matches(declared)
	problem := fmt.Sprintf("%s digest mismatch: declared %q, computed %q", kind, declared, dg.String())
	if ok {
		d.checker.record(true, "")
		return nil
	}

	switch d.checker.Kind {
	case DigestRaise:
		return fmt.Errorf("%w: %s", errDigestMismatch, problem)
	case DigestLog:
		d.checker.record(false, problem)
		logrus.StandardLogger().WithField("digest", kind).Warn(problem)
	case DigestOff, DigestSilent:
		d.checker.record(false, problem)
	}
	return nil
}

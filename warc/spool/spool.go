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

// Package spool implements a spooled temporary buffer: writes accumulate
// in memory until a threshold is crossed, after which they spill to a
// temporary file. It is the right abstraction for buffering a record of
// unknown length long enough to compute its digest and Content-Length
// before emitting the WARC header, the way the teacher's dictzip Writer
// buffers compressed chunks to a temp file before copying them to the
// final destination.
package spool

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
)

// DefaultThreshold is the default in-memory buffering limit before a
// Spool spills to disk.
const DefaultThreshold = 512 * 1024

// Spool is an io.Writer that buffers in memory up to a threshold,
// then transparently continues on a temporary file. After all writes
// are complete, call Rewind to seek back to the start for reading.
type Spool struct {
	threshold int
	buf       bytes.Buffer
	file      *os.File
	size      int64
	reading   bool
}

// New returns a Spool with the given in-memory threshold. A threshold
// of 0 uses DefaultThreshold.
func New(threshold int) *Spool {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Spool{threshold: threshold}
}

// Write implements io.Writer.
func (s *Spool) Write(p []byte) (int, error) {
	if s.reading {
		return 0, errors.New("spool: Write called after Rewind")
	}
	s.size += int64(len(p))

	if s.file != nil {
		n, err := s.file.Write(p)
		if err != nil {
			return n, fmt.Errorf("spool: writing to temp file: %w", err)
		}
		return n, nil
	}

	if s.buf.Len()+len(p) <= s.threshold {
		return s.buf.Write(p) //nolint:wrapcheck // bytes.Buffer.Write never errors.
	}

	// Crossing the threshold: spill everything buffered so far, plus p,
	// to a temp file.
	f, err := os.CreateTemp("", "go-warc-spool-*")
	if err != nil {
		return 0, fmt.Errorf("spool: creating temp file: %w", err)
	}
	if _, err := io.Copy(f, &s.buf); err != nil {
		return 0, fmt.Errorf("spool: spilling buffered data: %w", err)
	}
	s.file = f
	n, err := s.file.Write(p)
	if err != nil {
		return n, fmt.Errorf("spool: writing to temp file: %w", err)
	}
	return n, nil
}

// Size returns the total number of bytes written so far.
func (s *Spool) Size() int64 {
	return s.size
}

// Rewind seeks the spool back to its start for reading and returns a
// reader over its full contents. Further writes are not allowed after
// Rewind.
func (s *Spool) Rewind() (io.Reader, error) {
	s.reading = true
	if s.file == nil {
		return bytes.NewReader(s.buf.Bytes()), nil
	}
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("spool: seeking temp file: %w", err)
	}
	return s.file, nil
}

// Close releases the temp file, if any. It is a no-op if the spool
// never spilled to disk.
func (s *Spool) Close() error {
	if s.file == nil {
		return nil
	}
	name := s.file.Name()
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("spool: closing temp file: %w", err)
	}
	if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("spool: removing temp file: %w", err)
	}
	return nil
}

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
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrChunkedData indicates an HTTP chunked transfer-encoding framing
// failure. In strict mode, or for a malformed chunk-size line after the
// first chunk, this is returned to the caller; otherwise ChunkedReader
// falls back to pass-through reading of the underlying stream.
var ErrChunkedData = errors.New("reader: malformed chunked data")

// maxChunkLength bounds a single chunk size per spec.md §4.2 (2^31).
const maxChunkLength = 1 << 31

// ChunkedReader decodes HTTP Transfer-Encoding: chunked over src. If the
// first chunk-size line fails to parse and strict is false, the already-
// read bytes are replayed ahead of src and ChunkedReader becomes a
// transparent pass-through — many captures declare chunked encoding but
// are not actually chunked.
type ChunkedReader struct {
	src    Reader
	strict bool

	remaining   int64 // bytes left in the current chunk
	done        bool
	passthrough bool
	replay      []byte // bytes to serve before falling back to src, used only in passthrough mode
	tell        int64
}

// NewChunkedReader returns a ChunkedReader over src. If strict is false,
// a malformed first chunk-size line causes a fall back to pass-through
// rather than an error.
func NewChunkedReader(src Reader, strict bool) *ChunkedReader {
	return &ChunkedReader{src: src, strict: strict}
}

// Read implements Reader.
func (c *ChunkedReader) Read(p []byte) (int, error) {
	if c.passthrough {
		return c.readPassthrough(p)
	}
	if c.done {
		return 0, io.EOF
	}

	if c.remaining == 0 {
		if err := c.nextChunk(); err != nil {
			if c.passthrough {
				return c.readPassthrough(p)
			}
			return 0, err
		}
		if c.done {
			return 0, io.EOF
		}
	}

	want := int64(len(p))
	if want > c.remaining {
		want = c.remaining
	}
	n, err := c.src.Read(p[:want])
	c.remaining -= int64(n)
	c.tell += int64(n)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("reader: reading chunk body: %w", err)
	}
	if c.remaining == 0 && err == nil {
		if trailerErr := c.consumeTrailingCRLF(); trailerErr != nil {
			return n, trailerErr
		}
	}
	return n, nil
}

// nextChunk reads a chunk-size line (discarding any ";extension") and
// sets c.remaining, or marks c.done on the terminal zero-length chunk.
func (c *ChunkedReader) nextChunk() error {
	line, err := c.src.ReadLine(256)
	if err != nil && len(line) == 0 {
		return fmt.Errorf("reader: reading chunk size: %w", err)
	}
	sizeStr := strings.TrimSpace(string(bytes.TrimRight(line, "\r\n")))
	if idx := strings.IndexByte(sizeStr, ';'); idx >= 0 {
		sizeStr = sizeStr[:idx]
	}

	size, perr := strconv.ParseInt(sizeStr, 16, 64)
	if perr != nil || size < 0 || size >= maxChunkLength {
		// Only the first chunk-size line may fall back to pass-through;
		// once chunk data has been emitted, c.tell is non-zero.
		if c.strict || c.tell > 0 {
			return fmt.Errorf("%w: %q", ErrChunkedData, sizeStr)
		}
		c.passthrough = true
		c.replay = append([]byte(line), c.replay...)
		return nil
	}

	if size == 0 {
		c.done = true
		// Consume the trailing CRLF after the zero-length chunk.
		if _, err := c.src.ReadLine(2); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("reader: reading final CRLF: %w", err)
		}
		return nil
	}

	c.remaining = size
	return nil
}

func (c *ChunkedReader) consumeTrailingCRLF() error {
	line, err := c.src.ReadLine(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reader: reading chunk trailer: %w", err)
	}
	if len(bytes.TrimRight(line, "\r\n")) != 0 && c.strict {
		return fmt.Errorf("%w: expected CRLF after chunk, got %q", ErrChunkedData, line)
	}
	return nil
}

func (c *ChunkedReader) readPassthrough(p []byte) (int, error) {
	if len(c.replay) > 0 {
		n := copy(p, c.replay)
		c.replay = c.replay[n:]
		c.tell += int64(n)
		return n, nil
	}
	n, err := c.src.Read(p)
	c.tell += int64(n)
	return n, err
}

// ReadLine implements Reader.
func (c *ChunkedReader) ReadLine(max int) ([]byte, error) {
	var line []byte
	buf := make([]byte, 1)
	for len(line) < max {
		n, err := c.Read(buf)
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

// Tell returns the number of dechunked bytes emitted so far.
func (c *ChunkedReader) Tell() int64 {
	return c.tell
}

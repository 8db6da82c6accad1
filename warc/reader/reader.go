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

// Package reader implements the layered byte-source stack WARC/ARC
// records are read through: a buffered reader that transparently
// decompresses multi-member gzip (or raw/zlib deflate, or brotli), an
// HTTP chunked-transfer-encoding dechunker, and a length-limiting,
// digest-verifying reader bounded to a record's declared Content-Length.
//
// Readers compose by wrapping, not by inheritance: each type implements
// the same small Reader capability (Read/ReadLine/Tell) and is built by
// passing the one underneath it to a constructor.
package reader

import (
	"bufio"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Reader is the capability every layer in this package exposes.
type Reader interface {
	io.Reader

	// ReadLine reads up to the next '\n' (inclusive) or up to max bytes,
	// whichever comes first.
	ReadLine(max int) ([]byte, error)

	// Tell returns the total number of (decompressed, for a
	// BufferedReader) bytes this Reader has emitted so far.
	Tell() int64
}

// Kind selects the decompression a BufferedReader applies to its
// underlying byte source.
type Kind int

const (
	// KindNone passes bytes through unchanged.
	KindNone Kind = iota
	// KindGzip decompresses multi-member gzip, one WARC record per
	// member.
	KindGzip
	// KindDeflate decompresses zlib-wrapped deflate, falling back to
	// raw deflate if the zlib header is absent.
	KindDeflate
	// KindDeflateRaw always decompresses raw (headerless) deflate.
	KindDeflateRaw
	// KindBrotli decompresses brotli.
	KindBrotli
)

// DefaultBlockSize is the default read-ahead block size for a
// BufferedReader.
const DefaultBlockSize = 16 * 1024

// errNotCompressed is a sentinel returned internally when the first
// block fails to decompress; BufferedReader uses it to fall back to
// pass-through reading rather than surfacing it to the caller.
var errNotCompressed = errors.New("reader: first block did not decompress, treating as uncompressed")

// BufferedReader wraps a byte source, transparently decompressing it
// according to kind. For KindGzip, a source that does not begin with a
// gzip header is read as-is instead, with the decompressor disabled.
// Any other decompression error before the first decompressed byte is
// returned to the caller; once any bytes have been successfully
// decompressed, a later failure terminates the stream (but is not fatal
// to the caller, which sees plain io.EOF).
type BufferedReader struct {
	src       *bufio.Reader
	kind      Kind
	blockSize int
	log       logrus.FieldLogger

	decomp io.Reader
	closer io.Closer

	tell       int64
	sawSuccess bool
	rawFallback bool
}

// Option configures a BufferedReader.
type Option func(*BufferedReader)

// WithBlockSize overrides DefaultBlockSize.
func WithBlockSize(n int) Option {
	return func(r *BufferedReader) { r.blockSize = n }
}

// WithLogger overrides the logrus.FieldLogger diagnostics are written
// to. Defaults to logrus.StandardLogger().
func WithLogger(log logrus.FieldLogger) Option {
	return func(r *BufferedReader) { r.log = log }
}

// NewBufferedReader returns a BufferedReader over src, decompressing
// according to kind.
func NewBufferedReader(src io.Reader, kind Kind, opts ...Option) (*BufferedReader, error) {
	r := &BufferedReader{
		kind:      kind,
		blockSize: DefaultBlockSize,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.src = bufio.NewReaderSize(src, r.blockSize)

	if err := r.startMember(); err != nil {
		if !errors.Is(err, errNotCompressed) {
			return nil, err
		}
		r.rawFallback = true
		r.decomp = r.src
	}

	return r, nil
}

// startMember (re)initializes the decompressor over r.src for kind !=
// KindNone. On failure for the very first member, it returns
// errNotCompressed so the caller can fall back to raw passthrough; this
// is the permissiveness spec.md calls for, since web archives accrete
// implementation bugs over decades.
func (r *BufferedReader) startMember() error {
	switch r.kind {
	case KindNone:
		r.decomp = r.src
		return nil
	case KindGzip:
		// Check the magic bytes first: gzip.NewReader consumes header
		// bytes from r.src even when it rejects them.
		if magic, err := r.src.Peek(2); !r.sawSuccess && (err != nil || magic[0] != 0x1f || magic[1] != 0x8b) {
			return errNotCompressed
		}
		gz, err := gzip.NewReader(r.src)
		if err != nil {
			if !r.sawSuccess {
				return errNotCompressed
			}
			return fmt.Errorf("reader: starting gzip member: %w", err)
		}
		gz.Multistream(false)
		r.decomp = gz
		r.closer = gz
		return nil
	case KindDeflate:
		// zlib.NewReader consumes header bytes from r.src even when it
		// rejects them, so it is only used on a valid zlib header.
		if hdr, err := r.src.Peek(2); err == nil && hdr[0]&0x0f == 8 && (uint16(hdr[0])<<8|uint16(hdr[1]))%31 == 0 {
			if zr, err := zlib.NewReader(r.src); err == nil {
				r.decomp = zr
				r.closer = zr
				return nil
			}
		}
		fr := flate.NewReader(r.src)
		r.decomp = fr
		r.closer = fr
		return nil
	case KindDeflateRaw:
		fr := flate.NewReader(r.src)
		r.decomp = fr
		r.closer = fr
		return nil
	case KindBrotli:
		r.decomp = brotli.NewReader(r.src)
		return nil
	default:
		return fmt.Errorf("reader: unknown decompression kind %d", r.kind)
	}
}

// Read implements Reader.
func (r *BufferedReader) Read(p []byte) (int, error) {
	n, err := r.decomp.Read(p)
	r.tell += int64(n)
	if n > 0 {
		r.sawSuccess = true
	}
	if err != nil && !errors.Is(err, io.EOF) && r.sawSuccess {
		r.log.WithError(err).Debug("reader: decompression failed after a successful block, terminating stream")
		return n, io.EOF
	}
	return n, err
}

// ReadLine reads up to the next '\n' (inclusive) or max bytes.
func (r *BufferedReader) ReadLine(max int) ([]byte, error) {
	var line []byte
	buf := make([]byte, 1)
	for len(line) < max {
		n, err := r.Read(buf)
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

// Tell returns the number of decompressed bytes read so far.
func (r *BufferedReader) Tell() int64 {
	return r.tell
}

// RemLength returns the number of bytes immediately available from
// r.src's internal buffer without another underlying I/O call. The
// iterator subtracts it from the bytes read off an unseekable source to
// find that source's current read position; it is not a substitute for
// reading to EOF.
func (r *BufferedReader) RemLength() int {
	return r.src.Buffered()
}

// SourceOffset returns the number of bytes consumed from the underlying
// source passed to NewBufferedReader, independent of decompression.
// This is what the archive iterator uses for offset tracking on a
// seekable source: it is src's read position minus whatever bufio has
// buffered but not yet handed to the decompressor.
func (r *BufferedReader) SourceOffset(seek func() (int64, error)) (int64, error) {
	pos, err := seek()
	if err != nil {
		return 0, fmt.Errorf("reader: seeking to determine offset: %w", err)
	}
	return pos - int64(r.src.Buffered()), nil
}

// MemberExhausted reports whether the gzip member currently being
// decompressed has actually reached its logical end (its decompressor
// returns io.EOF), as opposed to still holding bytes the caller hasn't
// consumed yet. A false result means more than one record is packed
// into a single gzip member, since per-record framing puts exactly one
// record's bytes in each member. It is only meaningful for KindGzip;
// for any other kind it always reports true since those formats carry
// no member framing to violate. Unlike HasNextMember, which only peeks
// the underlying compressed source for a fresh member header, this
// reads from the current member's decompressor itself, so it cannot be
// fooled by leftover buffered-but-undecoded bytes belonging to the
// member that is supposedly finished.
func (r *BufferedReader) MemberExhausted() (bool, error) {
	if r.kind != KindGzip || r.rawFallback {
		return true, nil
	}
	var probe [1]byte
	n, err := r.decomp.Read(probe[:])
	if n > 0 {
		return false, nil
	}
	if err != nil && errors.Is(err, io.EOF) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("reader: checking gzip member exhaustion: %w", err)
	}
	return true, nil
}

// HasNextMember reports whether another gzip member follows the one
// just finished, starting it if so. It is only meaningful for
// KindGzip; for any other kind it always returns false since those
// formats are not framed into discrete members. Call this only after
// the current member has been fully drained (Read returns io.EOF), and
// only after MemberExhausted has confirmed the current member itself
// is actually done.
func (r *BufferedReader) HasNextMember() (bool, error) {
	if r.kind != KindGzip || r.rawFallback {
		return false, nil
	}
	if _, err := r.src.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, fmt.Errorf("reader: peeking for next gzip member: %w", err)
	}
	if err := r.startMember(); err != nil {
		return false, fmt.Errorf("reader: starting next gzip member: %w", err)
	}
	return true, nil
}

// Close releases the current member's decompressor, if any. It does not
// close the underlying source.
func (r *BufferedReader) Close() error {
	if r.closer != nil {
		return r.closer.Close() //nolint:wrapcheck // preserve close semantics for callers inspecting the error.
	}
	return nil
}

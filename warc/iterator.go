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
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/ianlewis/go-warc/warc/reader"
)

// iterState is the Iterator's internal state machine, per spec.md §4.6.
type iterState int

const (
	stateIdle iterState = iota
	stateYielded
	stateDone
)

// Iterator drives the record sequence of a single WARC/ARC stream,
// tracking byte offsets and advancing past per-record gzip members.
// Records are emitted in file order; Next() drains the previously
// yielded record before parsing the next one, so callers never need to
// manually exhaust a Record's RawStream before moving on.
type Iterator struct {
	br      *reader.BufferedReader
	cur     reader.Reader
	seeker  io.Seeker
	counter *countingReader

	kind reader.Kind

	knownFormat    KnownFormat
	arc2warc       bool
	digestKind     reader.DigestKind
	ensureHTTP     bool
	noRecordParse  bool
	warcinfoSource string

	log logrus.FieldLogger

	state         iterState
	current       *Record
	errCount      int
	firstRecord   bool
	currentOffset int64
}

// IteratorOption configures an Iterator.
type IteratorOption func(*Iterator)

// WithKnownFormat pins the iterator to only accept one wire format.
func WithKnownFormat(f KnownFormat) IteratorOption {
	return func(it *Iterator) { it.knownFormat = f }
}

// WithARC2WARC enables ARC-to-WARC header synthesis; it has no effect
// on a native WARC stream.
func WithARC2WARC(enabled bool) IteratorOption {
	return func(it *Iterator) { it.arc2warc = enabled }
}

// WithDigests sets the digest verification policy applied to every
// record. Defaults to DigestOff.
func WithDigests(kind reader.DigestKind) IteratorOption {
	return func(it *Iterator) { it.digestKind = kind }
}

// WithEnsureHTTPHeaders causes "resource" records to also be parsed as
// carrying an embedded HTTP message, matching warcio's
// ensure_http_headers option.
func WithEnsureHTTPHeaders(enabled bool) IteratorOption {
	return func(it *Iterator) { it.ensureHTTP = enabled }
}

// WithNoRecordParse skips HTTP header parsing entirely, trading
// fidelity for speed; used by the indexer and the recompressor's fast
// path.
func WithNoRecordParse(enabled bool) IteratorOption {
	return func(it *Iterator) { it.noRecordParse = enabled }
}

// WithLogger overrides the logrus.FieldLogger non-fatal diagnostics are
// written to.
func WithLogger(log logrus.FieldLogger) IteratorOption {
	return func(it *Iterator) { it.log = log }
}

// WithWarcinfoFilename sets the WARC-Filename recorded on the
// synthesized warcinfo record built from an ARC file's leading
// filedesc record during arc2warc translation.
func WithWarcinfoFilename(name string) IteratorOption {
	return func(it *Iterator) { it.warcinfoSource = name }
}

// WithDecompression forces the decompression kind applied to src,
// bypassing gzip-magic sniffing. Useful for a source opened mid-member
// (see scenario B in spec.md §8) where sniffing would misdetect.
func WithDecompression(kind reader.Kind) IteratorOption {
	return func(it *Iterator) { it.kind = kind }
}

const sniffUnset reader.Kind = -1

// NewIterator returns an Iterator over src, auto-detecting gzip framing
// by sniffing its first two bytes unless WithDecompression overrides
// that.
func NewIterator(src io.Reader, opts ...IteratorOption) (*Iterator, error) {
	it := &Iterator{
		digestKind:  reader.DigestOff,
		log:         logrus.StandardLogger(),
		state:       stateIdle,
		firstRecord: true,
		kind:        sniffUnset,
	}
	for _, opt := range opts {
		opt(it)
	}

	var effective io.Reader = src
	if seeker, ok := src.(io.Seeker); ok {
		it.seeker = seeker
		if it.kind == sniffUnset {
			kind, err := detectKindSeekable(src, seeker)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrArchiveLoadFailed, err)
			}
			it.kind = kind
		}
	} else if it.kind == sniffUnset {
		kind, peeked := detectKind(src)
		it.kind = kind
		effective = peeked
	}

	it.counter = newCountingReader(effective)

	br, err := reader.NewBufferedReader(it.counter, it.kind, reader.WithLogger(it.log))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArchiveLoadFailed, err)
	}
	it.br = br
	it.cur = br

	return it, nil
}

// NewWARCIterator is a convenience constructor pinning KnownFormatWARC.
func NewWARCIterator(src io.Reader, opts ...IteratorOption) (*Iterator, error) {
	return NewIterator(src, append([]IteratorOption{WithKnownFormat(KnownFormatWARC)}, opts...)...)
}

// NewARCIterator is a convenience constructor pinning KnownFormatARC.
func NewARCIterator(src io.Reader, opts ...IteratorOption) (*Iterator, error) {
	return NewIterator(src, append([]IteratorOption{WithKnownFormat(KnownFormatARC)}, opts...)...)
}

// detectKind peeks at src's first two bytes to decide whether it looks
// like gzip. It returns a reader that still yields those bytes on
// subsequent reads. Used for unseekable sources, where reading ahead
// cannot be undone by seeking back.
func detectKind(src io.Reader) (reader.Kind, io.Reader) {
	br := bufio.NewReader(src)
	magic, err := br.Peek(2)
	if err == nil && len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		return reader.KindGzip, br
	}
	return reader.KindNone, br
}

// detectKindSeekable reads src's first two bytes directly (no
// intermediate buffering layer) and seeks back, so offset tracking via
// seeker.Seek stays exact.
func detectKindSeekable(src io.Reader, seeker io.Seeker) (reader.Kind, error) {
	var magic [2]byte
	n, err := io.ReadFull(src, magic[:])
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return reader.KindNone, fmt.Errorf("detecting compression: %w", err)
	}
	if _, serr := seeker.Seek(-int64(n), io.SeekCurrent); serr != nil {
		return reader.KindNone, fmt.Errorf("seeking back after detecting compression: %w", serr)
	}
	if n == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		return reader.KindGzip, nil
	}
	return reader.KindNone, nil
}

// ErrCount returns the number of non-fatal anomalies encountered so
// far (trailing-blank-line violations and similar recoverable issues).
func (it *Iterator) ErrCount() int {
	return it.errCount
}

// GetRecordOffset returns the byte offset, in the underlying
// (possibly compressed) source, at which the most recently yielded
// record began.
func (it *Iterator) GetRecordOffset() (int64, error) {
	return it.currentOffset, nil
}

// sourcePosition returns the current read position in the underlying
// (possibly compressed) source: a seekable source's position adjusted
// for bufio read-ahead, or a running byte count for an unseekable one.
func (it *Iterator) sourcePosition() (int64, error) {
	if it.seeker != nil {
		off, err := it.br.SourceOffset(func() (int64, error) {
			return it.seeker.Seek(0, io.SeekCurrent)
		})
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrArchiveLoadFailed, err)
		}
		return off, nil
	}
	return it.counter.n - int64(it.br.RemLength()), nil
}

// Next drains the previously yielded record (if any) and parses the
// next one. It returns (nil, io.EOF) when the stream is exhausted.
func (it *Iterator) Next() (*Record, error) {
	if it.state == stateYielded && it.current != nil {
		if err := it.current.Close(); err != nil {
			return nil, fmt.Errorf("%w: draining previous record: %w", ErrArchiveLoadFailed, err)
		}
		if err := it.consumeBlankLines(); err != nil {
			return nil, err
		}
		if err := it.advanceGzipMember(); err != nil {
			return nil, err
		}
	}

	if it.state == stateDone {
		return nil, io.EOF
	}

	pos, err := it.sourcePosition()
	if err != nil {
		return nil, err
	}

	opts := loadOptions{
		knownFormat:      it.knownFormat,
		arc2warc:         it.arc2warc,
		digestKind:       it.digestKind,
		ensureHTTP:       it.ensureHTTP,
		noRecordParse:    it.noRecordParse,
		firstARCRecord:   it.firstRecord && it.knownFormat != KnownFormatWARC,
		warcinfoFilename: it.warcinfoSource,
	}

	rec, err := loadRecord(it.cur, opts)
	it.cur = it.br
	if err != nil {
		it.state = stateDone
		// loadRecord returns bare io.EOF, never wrapped, for a clean
		// end of stream at a record boundary. Anything else -
		// including a parse error that happens to wrap an io.EOF it
		// hit mid-header - is a real failure and must not be
		// mistaken for one.
		if err == io.EOF { //nolint:errorlint,err113 // io.EOF is the one sentinel loadRecord returns unwrapped.
			return nil, io.EOF
		}
		return nil, err
	}

	it.currentOffset = pos
	it.firstRecord = false
	it.current = rec
	it.state = stateYielded
	return rec, nil
}

// consumeBlankLines consumes blank lines between records. The first
// non-blank line it reaches is stashed so loadRecord still sees it as
// the next record's statusline rather than losing it. If that line is
// the very first one after the record (no blank line separated them),
// it is a parse anomaly: it gets logged and counted.
func (it *Iterator) consumeBlankLines() error {
	first := true
	for {
		line, err := it.br.ReadLine(maxHeaderLineLength)
		if err != nil && len(line) == 0 {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrArchiveLoadFailed, err)
		}
		trimmed := trimCRLF(line)
		if len(trimmed) == 0 {
			if err != nil {
				return nil
			}
			first = false
			continue
		}
		if first {
			it.errCount++
			it.log.WithField("line", string(trimmed)).Warn("warc: expected blank line between records")
		}
		it.cur = &prefixReader{prefix: line, src: it.br}
		return nil
	}
}

func trimCRLF(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\r' || b[len(b)-1] == '\n') {
		b = b[:len(b)-1]
	}
	return b
}

// advanceGzipMember transitions to the next gzip member when the
// stream is gzip-framed. If the decompressor still has unconsumed data
// in the member that just finished, that is a "multi-record in one
// gzip member" violation — a dedicated, fatal error per spec.md §4.6,
// since it means the archive needs recompress (§4.9).
func (it *Iterator) advanceGzipMember() error {
	if it.kind != reader.KindGzip {
		return nil
	}
	exhausted, err := it.br.MemberExhausted()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrArchiveLoadFailed, err)
	}
	if !exhausted {
		return ErrMultiRecordGzipMember
	}
	hasNext, err := it.br.HasNextMember()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrArchiveLoadFailed, err)
	}
	if !hasNext {
		it.state = stateDone
	}
	return nil
}

// countingReader wraps an io.Reader, tracking the cumulative number of
// bytes it has returned. It is the offset-tracking mechanism for
// unseekable sources.
type countingReader struct {
	r io.Reader
	n int64
}

func newCountingReader(r io.Reader) *countingReader {
	return &countingReader{r: r}
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err //nolint:wrapcheck // countingReader is a transparent pass-through.
}

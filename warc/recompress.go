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
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/ianlewis/go-warc/warc/reader"
	"github.com/ianlewis/go-warc/warc/spool"
)

// RecompressOption configures a Recompressor.
type RecompressOption func(*Recompressor)

// WithRecompressDigests sets the digest policy applied while
// re-reading the source archive. Mismatches do not block recompression
// unless DigestRaise is used.
func WithRecompressDigests(kind reader.DigestKind) RecompressOption {
	return func(rc *Recompressor) { rc.digestKind = kind }
}

// WithRecompressARC2WARC translates ARC input into WARC records
// (including a synthesized leading warcinfo record from the ARC
// filedesc record) rather than re-emitting them as ARC.
func WithRecompressARC2WARC(enabled bool) RecompressOption {
	return func(rc *Recompressor) { rc.arc2warc = enabled }
}

// WithRecompressSpoolThreshold overrides the in-memory buffering
// threshold used for the source copy and, if repair is needed, the
// flattened decompression and repacked output. Defaults to
// spool.DefaultThreshold.
func WithRecompressSpoolThreshold(n int) RecompressOption {
	return func(rc *Recompressor) { rc.spoolThreshold = n }
}

// Recompressor repairs a WARC/ARC archive's gzip framing: it
// guarantees the output has exactly one gzip member per record, fixing
// archives written by tools that concatenated several records into a
// single member (a violation this module's own Iterator otherwise
// rejects as a fatal error, per spec.md §4.6).
type Recompressor struct {
	digestKind     reader.DigestKind
	arc2warc       bool
	spoolThreshold int
}

// NewRecompressor returns a Recompressor with the given options
// applied.
func NewRecompressor(opts ...RecompressOption) *Recompressor {
	rc := &Recompressor{digestKind: reader.DigestOff}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// RecompressReport summarizes one Recompress call.
type RecompressReport struct {
	// RecordsWritten is the number of records copied to dst.
	RecordsWritten int
	// Repaired is true if src needed the fallback strategy: its gzip
	// members did not align one-to-one with records, so it was fully
	// decompressed and re-framed from scratch.
	Repaired bool
}

// Recompress reads src (WARC or ARC, gzip-framed or plain) and writes
// a well-formed archive with one gzip member per record to dst. It
// first tries re-framing src's records directly (the common case: only
// the gzip member boundaries are wrong, not the record content). If
// that fails partway, it falls back to fully decompressing src
// (ignoring gzip member boundaries entirely) into a temporary buffer
// and re-iterating that instead, since at that point record boundaries
// can only be found from the record framing itself, not from gzip
// structure.
func (rc *Recompressor) Recompress(src io.Reader, dst io.Writer) (*RecompressReport, error) {
	in := spool.New(rc.spoolThreshold)
	defer in.Close()
	if _, err := io.Copy(in, src); err != nil {
		return nil, fmt.Errorf("warc: recompress: buffering source: %w", err)
	}

	firstPass, err := in.Rewind()
	if err != nil {
		return nil, fmt.Errorf("warc: recompress: %w", err)
	}

	out := spool.New(rc.spoolThreshold)
	defer out.Close()
	w := NewWriter(out, WithWriterGzip(true))

	n, copyErr := rc.copyRecords(firstPass, w)
	report := &RecompressReport{RecordsWritten: n}
	if copyErr == nil {
		return report, rc.flushTo(out, dst)
	}

	report.Repaired = true
	report.RecordsWritten = 0

	secondPass, err := in.Rewind()
	if err != nil {
		return nil, fmt.Errorf("warc: recompress: %w", err)
	}
	flat, err := flatten(secondPass, rc.spoolThreshold)
	if err != nil {
		return nil, fmt.Errorf("warc: recompress: flattening source: %w", err)
	}

	repairOut := spool.New(rc.spoolThreshold)
	defer repairOut.Close()
	repairWriter := NewWriter(repairOut, WithWriterGzip(true))

	n2, err := rc.copyRecords(flat, repairWriter)
	if err != nil {
		return nil, fmt.Errorf("warc: recompress: repair failed: %w", err)
	}
	report.RecordsWritten = n2

	return report, rc.flushTo(repairOut, dst)
}

// copyRecords iterates every record in src and re-emits it verbatim
// (original headers, undecoded body) through w, returning the count
// written and the first non-EOF error encountered.
func (rc *Recompressor) copyRecords(src io.Reader, w *Writer) (int, error) {
	it, err := NewIterator(src, WithDigests(rc.digestKind), WithARC2WARC(rc.arc2warc), WithNoRecordParse(true))
	if err != nil {
		return 0, err
	}

	var n int
	for {
		rec, err := it.Next()
		if err != nil {
			if err == io.EOF { //nolint:errorlint // io.EOF is a sentinel.
				return n, nil
			}
			return n, err
		}
		if err := w.WriteRaw(rec.RecHeaders, rec.RawStream()); err != nil {
			return n, err
		}
		n++
	}
}

// flushTo copies sp's contents to dst.
func (rc *Recompressor) flushTo(sp *spool.Spool, dst io.Writer) error {
	body, err := sp.Rewind()
	if err != nil {
		return fmt.Errorf("warc: recompress: %w", err)
	}
	if _, err := io.Copy(dst, body); err != nil {
		return fmt.Errorf("warc: recompress: writing output: %w", err)
	}
	return nil
}

// flatten fully decompresses src if it looks gzip-framed, ignoring
// member boundaries (klauspost/compress/gzip.Reader defaults to
// Multistream(true)), and returns a plain reader over the decompressed
// bytes. Non-gzip input is returned unchanged.
func flatten(src io.Reader, spoolThreshold int) (io.Reader, error) {
	br := bufio.NewReader(src)
	magic, err := br.Peek(2)
	isGzip := err == nil && len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b
	if !isGzip {
		return br, nil
	}

	gz, err := gzip.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("starting gzip decompression: %w", err)
	}
	defer gz.Close()

	sp := spool.New(spoolThreshold)
	if _, err := io.Copy(sp, gz); err != nil {
		return nil, fmt.Errorf("decompressing: %w", err)
	}
	flat, err := sp.Rewind()
	if err != nil {
		return nil, fmt.Errorf("rewinding flattened buffer: %w", err)
	}
	return flat, nil
}

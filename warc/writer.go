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
	"bytes"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/ianlewis/go-warc/warc/headers"
)

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithWriterGzip enables per-record gzip wrapping: every record becomes
// its own gzip member, the convention that lets WARC readers seek
// directly to any record offset without decompressing the whole file.
// Enabled by default.
func WithWriterGzip(enabled bool) WriterOption {
	return func(w *Writer) { w.gzip = enabled }
}

// WithWriterBuilder overrides the Builder used to assemble each
// record. Defaults to NewBuilder().
func WithWriterBuilder(b *Builder) WriterOption {
	return func(w *Writer) { w.builder = b }
}

// Writer serializes records onto an underlying byte sink, one
// self-contained gzip member per record by default.
type Writer struct {
	w       io.Writer
	gzip    bool
	builder *Builder
}

// NewWriter returns a Writer over w.
func NewWriter(w io.Writer, opts ...WriterOption) *Writer {
	wr := &Writer{
		w:       w,
		gzip:    true,
		builder: NewBuilder(),
	}
	for _, opt := range opts {
		opt(wr)
	}
	return wr
}

// WriteRecord builds params into a record and writes it.
func (w *Writer) WriteRecord(params BuildParams) error {
	sh, body, err := w.builder.Build(params)
	if err != nil {
		return err
	}
	return w.writeRaw(sh, body)
}

// WriteRaw writes sh and body verbatim, without involving the Builder:
// no new WARC-Record-ID, date, or digests are generated. This is what
// the recompressor uses to re-frame a record's existing header and
// body bytes under fresh gzip-member boundaries while leaving their
// content untouched.
func (w *Writer) WriteRaw(sh *headers.StatusAndHeaders, body io.Reader) error {
	return w.writeRaw(sh, body)
}

// WriteRequestResponsePair writes req and resp as a linked pair,
// cross-referencing each other's WARC-Record-ID via
// WARC-Concurrent-To, matching how a capturing tool that sees both
// sides of an exchange records them.
func (w *Writer) WriteRequestResponsePair(req, resp BuildParams) error {
	reqID := uuid.NewString()
	respID := uuid.NewString()

	req.Type = TypeRequest
	req.Headers = mergeHeaders(req.Headers, map[string]string{
		"WARC-Record-ID":     "<urn:uuid:" + reqID + ">",
		"WARC-Concurrent-To": "<urn:uuid:" + respID + ">",
	})

	resp.Type = TypeResponse
	resp.Headers = mergeHeaders(resp.Headers, map[string]string{
		"WARC-Record-ID":     "<urn:uuid:" + respID + ">",
		"WARC-Concurrent-To": "<urn:uuid:" + reqID + ">",
	})

	if err := w.WriteRecord(req); err != nil {
		return fmt.Errorf("warc: writing request record: %w", err)
	}
	if err := w.WriteRecord(resp); err != nil {
		return fmt.Errorf("warc: writing response record: %w", err)
	}
	return nil
}

// WriteRevisit writes params as a revisit record referring back to an
// earlier capture. If params.HTTPHeaderLen is set, only that leading
// slice of params.Payload (the embedded HTTP status-and-headers block)
// is written; the payload past it is suppressed, since a revisit
// records that the payload is unchanged rather than re-storing it.
func (w *Writer) WriteRevisit(params BuildParams, profile, refersToRecordID, refersToTargetURI, refersToDate string) error {
	params.Type = TypeRevisit
	params.Profile = profile
	params.RefersToRecordID = refersToRecordID
	params.RefersToTargetURI = refersToTargetURI
	params.RefersToDate = refersToDate

	if params.HTTPHeaderLen > 0 && params.Payload != nil {
		head := make([]byte, params.HTTPHeaderLen)
		n, err := io.ReadFull(params.Payload, head)
		if err != nil && err != io.ErrUnexpectedEOF { //nolint:errorlint // io.ErrUnexpectedEOF is a sentinel.
			return fmt.Errorf("warc: reading revisit HTTP headers: %w", err)
		}
		params.Payload = bytes.NewReader(head[:n])
	}

	return w.WriteRecord(params)
}

// writeRaw emits sh and body, gzip-wrapped as a single member when
// w.gzip is enabled.
func (w *Writer) writeRaw(sh *headers.StatusAndHeaders, body io.Reader) error {
	var dst io.Writer = w.w
	var gz *gzip.Writer
	if w.gzip {
		gz = gzip.NewWriter(w.w)
		dst = gz
	}

	if _, err := dst.Write(sh.ToBytes(nil)); err != nil {
		return fmt.Errorf("warc: writing record header: %w", err)
	}
	if _, err := io.Copy(dst, body); err != nil {
		return fmt.Errorf("warc: writing record body: %w", err)
	}
	if _, err := dst.Write([]byte("\r\n\r\n")); err != nil {
		return fmt.Errorf("warc: writing record trailer: %w", err)
	}

	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("warc: closing gzip member: %w", err)
		}
	}
	return nil
}

// mergeHeaders returns a copy of base with overrides applied on top.
func mergeHeaders(base, overrides map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

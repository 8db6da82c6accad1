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
	"io"

	"github.com/ianlewis/go-warc/warc/headers"
	"github.com/ianlewis/go-warc/warc/reader"
)

// Format identifies the on-wire origin of a Record.
type Format string

const (
	// FormatWARC is a native WARC record.
	FormatWARC Format = "warc"
	// FormatARC is a legacy ARC record read as-is.
	FormatARC Format = "arc"
	// FormatARC2WARC is a legacy ARC record whose headers have been
	// synthesized into an equivalent WARC header block.
	FormatARC2WARC Format = "arc2warc"
)

// Type is a WARC-Type (or, for ARC, a synthetic equivalent).
type Type string

const (
	TypeWARCInfo     Type = "warcinfo"
	TypeResponse     Type = "response"
	TypeRequest      Type = "request"
	TypeRevisit      Type = "revisit"
	TypeResource     Type = "resource"
	TypeMetadata     Type = "metadata"
	TypeConversion   Type = "conversion"
	TypeContinuation Type = "continuation"
	// TypeARCHeader is the synthetic record type for an ARC file's
	// leading filedesc record when read without arc2warc translation.
	TypeARCHeader Type = "arc_header"
)

// httpBodyTypes is the set of record types whose body embeds an HTTP
// status-and-headers block ahead of the payload.
var httpBodyTypes = map[Type]bool{
	TypeResponse: true,
	TypeRequest:  true,
	TypeRevisit:  true,
}

// Record is a single parsed (or to-be-written) WARC/ARC record.
//
// A Record exclusively owns RawStream and its digest Checker; it borrows
// the underlying byte source from the Iterator that produced it. Once
// the Iterator advances to the next record, RawStream is drained and
// invalidated — callers that want its bytes must read them before
// calling Iterator.Next again.
type Record struct {
	Format Format
	Type   Type

	RecHeaders  *headers.StatusAndHeaders
	HTTPHeaders *headers.StatusAndHeaders

	ContentType   string
	Length        int64
	PayloadLength int64

	// Truncated records the WARC-Truncated reason ("length", "time",
	// "disconnect", "unspecified"), or "" if the record was not
	// truncated by the capturing tool.
	Truncated string

	// Segment* mirror the WARC-Segment-* headers when present
	// (read-only; this module does not write multi-segment records,
	// see spec.md Open Questions).
	SegmentNumber      int
	SegmentOriginID    string
	SegmentTotalLength int64

	rawStream io.Reader
	checker   *reader.Checker

	closed bool
}

// RawStream returns the record's body reader, bounded to Length bytes
// and undecoded: HTTP chunked framing and content-coding are not
// stripped. Reading is forward-only and shared with any ContentStream
// view obtained from the same Record.
func (r *Record) RawStream() io.Reader {
	return r.rawStream
}

// DigestChecker returns the record's digest verification state, or nil
// if digest checking was disabled when the record was loaded.
func (r *Record) DigestChecker() *reader.Checker {
	return r.checker
}

// Close drains RawStream to its length boundary so the iterator that
// produced this record can advance past it, then marks the record
// closed. Closing the record (as opposed to closing the iterator) does
// drain it; see spec.md §5.
func (r *Record) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.rawStream == nil {
		return nil
	}
	_, err := io.Copy(io.Discard, r.rawStream)
	return err //nolint:wrapcheck // draining is best-effort bookkeeping, not a user-facing operation.
}

// header looks up a record header, case-insensitively.
func (r *Record) header(name string) (string, bool) {
	if r.RecHeaders == nil {
		return "", false
	}
	return r.RecHeaders.Get(name)
}

// TargetURI returns the WARC-Target-URI header, if present.
func (r *Record) TargetURI() string {
	v, _ := r.header("WARC-Target-URI")
	return v
}

// RecordID returns the WARC-Record-ID header, if present.
func (r *Record) RecordID() string {
	v, _ := r.header("WARC-Record-ID")
	return v
}

// WARCDate returns the WARC-Date header, if present.
func (r *Record) WARCDate() string {
	v, _ := r.header("WARC-Date")
	return v
}

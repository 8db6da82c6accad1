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
	"errors"
	"fmt"
)

// errWarc is the base error for all go-warc errors.
var errWarc = errors.New("warc")

// ErrArchiveLoadFailed indicates a structural problem with the archive:
// an unreadable header block, a missing or invalid Content-Length, a
// format mismatch on a format-pinned iterator, or more than one record
// found in a single gzip member. A DigestRaise digest mismatch does not
// wrap it; see ErrDigestMismatch.
var ErrArchiveLoadFailed = fmt.Errorf("%w: archive load failed", errWarc)

// ErrChunkedData indicates an HTTP chunked transfer-encoding framing
// failure. In non-strict mode a malformed first chunk-size line is
// recovered from by falling back to pass-through reading rather than
// surfaced to the caller.
var ErrChunkedData = fmt.Errorf("%w: chunked data", errWarc)

// ErrStatusLine indicates a statusline did not match any of the caller's
// accepted prefixes. Only raised when statusline verification is enabled.
var ErrStatusLine = fmt.Errorf("%w: status line", errWarc)

// ErrHeaderDecode indicates header bytes decoded under neither UTF-8 nor
// ISO-8859-1. ISO-8859-1 decoding is total over any byte sequence, so in
// practice this is unreachable; it exists to make the failure mode
// explicit rather than silently mojibake the value.
var ErrHeaderDecode = fmt.Errorf("%w: header decode", errWarc)

// ErrDigestMismatch names a declared digest not matching the recomputed
// one. This package does not return it: with DigestRaise the mismatch
// surfaces from the record's RawStream reads as an error created in
// package reader, which wraps neither ErrDigestMismatch nor
// ErrArchiveLoadFailed; with the other kinds it is recorded on the
// record's digest checker.
var ErrDigestMismatch = fmt.Errorf("%w: digest mismatch", errWarc)

// ErrMultiRecordGzipMember indicates the iterator found more than one
// record packed into a single gzip member: after a record's trailing
// blank line, the member's decompressor still had data left instead of
// reporting EOF. Per-record gzip framing is required for seekable record
// access; run the recompress command (or warc.Recompressor) to repair
// the archive's framing before retrying.
var ErrMultiRecordGzipMember = fmt.Errorf("%w: multiple records found in a single gzip member, run recompress to repair per-record framing", ErrArchiveLoadFailed)

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
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ianlewis/go-warc/warc/digest"
	"github.com/ianlewis/go-warc/warc/headers"
	"github.com/ianlewis/go-warc/warc/spool"
)

// DefaultWARCVersion is the statusline Builder emits when BuildParams
// does not override it.
const DefaultWARCVersion = "WARC/1.1"

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithBuilderWARCVersion sets the WARC version statusline ("WARC/1.0"
// or "WARC/1.1") new records are built against. WARC-Date gets
// microsecond precision under 1.1 and second precision under 1.0, per
// the version's own date grammar.
func WithBuilderWARCVersion(version string) BuilderOption {
	return func(b *Builder) { b.version = version }
}

// WithBlockDigestAlgorithm sets the hash algorithm used for
// WARC-Block-Digest. Defaults to "sha1", the field's historical norm.
func WithBlockDigestAlgorithm(alg string) BuilderOption {
	return func(b *Builder) { b.blockDigestAlg = alg }
}

// WithPayloadDigestAlgorithm sets the hash algorithm used for
// WARC-Payload-Digest. Defaults to "sha1".
func WithPayloadDigestAlgorithm(alg string) BuilderOption {
	return func(b *Builder) { b.payloadDigestAlg = alg }
}

// WithBuilderSpoolThreshold overrides the in-memory threshold before a
// record's payload spills to a temp file while its digest and
// Content-Length are computed. Defaults to spool.DefaultThreshold.
func WithBuilderSpoolThreshold(n int) BuilderOption {
	return func(b *Builder) { b.spoolThreshold = n }
}

// Builder assembles a record's WARC header block and body. It always
// spools the payload: Content-Length and the digests are unknown until
// the payload has been fully read, but the header block (which
// declares them) must precede the body on the wire, so the payload is
// buffered once (in memory, spilling to disk past the threshold) before
// anything is emitted.
type Builder struct {
	version          string
	blockDigestAlg   string
	payloadDigestAlg string
	spoolThreshold   int
}

// NewBuilder returns a Builder with the given options applied over
// sensible defaults (WARC/1.1, sha1 digests).
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		version:          DefaultWARCVersion,
		blockDigestAlg:   "sha1",
		payloadDigestAlg: "sha1",
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildParams carries the inputs for a single record. Payload may be
// nil for a record with no body (e.g. a bodyless revisit).
type BuildParams struct {
	Type        Type
	TargetURI   string
	Date        time.Time // zero means time.Now()
	ContentType string    // "" uses the type's default, if any
	Payload     io.Reader

	// HTTPHeaderLen is the number of leading bytes of Payload that are
	// a pre-serialized embedded HTTP status-and-headers block (request,
	// response, and revisit records carry one). Those bytes count
	// toward WARC-Block-Digest but not WARC-Payload-Digest. 0 means
	// Payload is entirely payload, with no embedded HTTP message.
	HTTPHeaderLen int64

	// Headers are additional WARC-* headers set verbatim, in iteration
	// order is not preserved (Go maps are unordered); use this for
	// fields Build does not compute itself, e.g. WARC-Warcinfo-ID,
	// WARC-Concurrent-To, WARC-Filename.
	Headers map[string]string

	// Truncated records WARC-Truncated ("length", "time", "disconnect",
	// "unspecified"); "" omits the header.
	Truncated string

	// Revisit fields. Profile and RefersToTargetURI are required by
	// Build when Type is TypeRevisit.
	Profile           string
	RefersToRecordID  string
	RefersToTargetURI string
	RefersToDate      string
}

// ProfileIdentical and ProfileServerNotModified are the WARC-Profile
// values defined by the WARC 1.1 specification for revisit records.
const (
	ProfileIdentical         = "http://netpreserve.org/warc/1.1/revisit/identical-payload-digest"
	ProfileServerNotModified = "http://netpreserve.org/warc/1.1/revisit/server-not-modified"
)

// Build assembles a record's header block and a reader over its final
// body bytes, computing Content-Length and WARC-Block-Digest, plus
// WARC-Payload-Digest when the body has bytes past HTTPHeaderLen or the
// record is a revisit. Digests over a
// revisit's body cover only what is actually present: often just the
// embedded HTTP headers with no payload.
func (b *Builder) Build(params BuildParams) (*headers.StatusAndHeaders, io.Reader, error) {
	if params.Type == TypeRevisit {
		if params.Profile == "" || params.RefersToTargetURI == "" {
			return nil, nil, fmt.Errorf("%w: revisit record requires Profile and RefersToTargetURI", errWarc)
		}
	}

	sp := spool.New(b.spoolThreshold)
	blockDigester, err := digest.NewDigester(b.blockDigestAlg)
	if err != nil {
		return nil, nil, fmt.Errorf("warc: builder: %w", err)
	}
	payloadDigester, err := digest.NewDigester(b.payloadDigestAlg)
	if err != nil {
		return nil, nil, fmt.Errorf("warc: builder: %w", err)
	}

	size, payloadSize, err := b.drain(sp, blockDigester, payloadDigester, params.Payload, params.HTTPHeaderLen)
	if err != nil {
		return nil, nil, err
	}

	sh := headers.New(b.version, b.version)
	sh.Set("WARC-Type", string(params.Type))
	sh.Set("WARC-Record-ID", "<urn:uuid:"+uuid.NewString()+">")
	sh.Set("WARC-Date", b.formatDate(params.Date))
	if params.TargetURI != "" {
		sh.Set("WARC-Target-URI", params.TargetURI)
	}
	sh.Set("Content-Length", strconv.FormatInt(size, 10))

	contentType := params.ContentType
	if contentType == "" {
		contentType = defaultContentType(params.Type)
	}
	if contentType != "" {
		sh.Set("Content-Type", contentType)
	}

	if params.Truncated != "" {
		sh.Set("WARC-Truncated", params.Truncated)
	}

	if params.Type == TypeRevisit {
		sh.Set("WARC-Profile", params.Profile)
		sh.Set("WARC-Refers-To-Target-URI", params.RefersToTargetURI)
		if params.RefersToRecordID != "" {
			sh.Set("WARC-Refers-To", "<urn:uuid:"+params.RefersToRecordID+">")
		}
		if params.RefersToDate != "" {
			sh.Set("WARC-Refers-To-Date", params.RefersToDate)
		}
	}

	for name, value := range params.Headers {
		sh.Set(name, value)
	}

	sh.Set("WARC-Block-Digest", blockDigester.String())
	if payloadSize > 0 || params.Type == TypeRevisit {
		sh.Set("WARC-Payload-Digest", payloadDigester.String())
	}

	body, err := sp.Rewind()
	if err != nil {
		return nil, nil, fmt.Errorf("warc: builder: %w", err)
	}

	return sh, body, nil
}

// drain copies payload into sp, updating blockDg over every byte and
// payloadDg only over bytes at or past headerLen, returning (total
// size, payload-only size). A nil payload produces a zero-length
// record.
func (b *Builder) drain(sp *spool.Spool, blockDg, payloadDg *digest.Digester, payload io.Reader, headerLen int64) (int64, int64, error) {
	if payload == nil {
		return 0, 0, nil
	}

	var total int64
	buf := make([]byte, 32*1024)
	for {
		n, rerr := payload.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if _, err := sp.Write(chunk); err != nil {
				return 0, 0, fmt.Errorf("warc: builder: spooling payload: %w", err)
			}
			_, _ = blockDg.Write(chunk)

			start := int64(0)
			if total < headerLen {
				remaining := headerLen - total
				if remaining >= int64(len(chunk)) {
					start = int64(len(chunk))
				} else {
					start = remaining
				}
			}
			if start < int64(len(chunk)) {
				_, _ = payloadDg.Write(chunk[start:])
			}
			total += int64(n)
		}
		if rerr != nil {
			if rerr == io.EOF { //nolint:errorlint // io.EOF is a sentinel.
				break
			}
			return 0, 0, fmt.Errorf("warc: builder: reading payload: %w", rerr)
		}
	}
	payloadSize := total - headerLen
	if payloadSize < 0 {
		payloadSize = 0
	}
	return total, payloadSize, nil
}

// formatDate renders t (time.Now() if zero) as a WARC-Date: microsecond
// precision under WARC/1.1, second precision under WARC/1.0, per each
// version's date grammar.
func (b *Builder) formatDate(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	t = t.UTC()
	if b.version == "WARC/1.0" {
		return t.Format("2006-01-02T15:04:05Z")
	}
	return t.Format("2006-01-02T15:04:05.000000Z")
}

// defaultContentType returns the conventional Content-Type for a
// record type when the caller does not specify one. Revisit records
// have no sensible default: their body, if any, is just embedded HTTP
// headers whose framing is up to the caller.
func defaultContentType(t Type) string {
	switch t {
	case TypeWARCInfo, TypeMetadata:
		return "application/warc-fields"
	case TypeRequest:
		return "application/http; msgtype=request"
	case TypeResponse:
		return "application/http; msgtype=response"
	case TypeResource, TypeConversion, TypeContinuation:
		return "application/octet-stream"
	case TypeRevisit, TypeARCHeader:
		return ""
	default:
		return ""
	}
}

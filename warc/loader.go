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
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ianlewis/go-warc/warc/headers"
	"github.com/ianlewis/go-warc/warc/reader"
)

// KnownFormat pins an Iterator (or a single loadRecord call) to only
// accept one wire format, raising ErrArchiveLoadFailed if the other is
// encountered. KnownFormatAny accepts either, sniffing per record.
type KnownFormat int

const (
	KnownFormatAny KnownFormat = iota
	KnownFormatWARC
	KnownFormatARC
)

// loadOptions configures a single loadRecord call. It is assembled by
// Iterator from its own options for each record.
type loadOptions struct {
	knownFormat      KnownFormat
	arc2warc         bool
	digestKind       reader.DigestKind
	ensureHTTP       bool
	noRecordParse    bool
	firstARCRecord   bool
	warcinfoFilename string // used only for arc2warc synthesis of the leading ARC filedesc record
}

// prefixReader replays already-consumed bytes ahead of an underlying
// reader.Reader, so the line of lookahead loadRecord reads to
// disambiguate WARC from ARC can be fed back into the shared headers
// parser.
type prefixReader struct {
	prefix []byte
	src    reader.Reader
}

func (p *prefixReader) Read(b []byte) (int, error) {
	if len(p.prefix) > 0 {
		n := copy(b, p.prefix)
		p.prefix = p.prefix[n:]
		return n, nil
	}
	return p.src.Read(b)
}

func (p *prefixReader) ReadLine(max int) ([]byte, error) {
	if len(p.prefix) > 0 {
		line := p.prefix
		p.prefix = nil
		if len(line) > max {
			line = line[:max]
		}
		return line, nil
	}
	return p.src.ReadLine(max)
}

func (p *prefixReader) Tell() int64 {
	return p.src.Tell()
}

const maxHeaderLineLength = 1 << 20

// loadRecord reads one record from src starting at a record boundary.
func loadRecord(src reader.Reader, opts loadOptions) (*Record, error) {
	line, err := src.ReadLine(maxHeaderLineLength)
	if err != nil && len(line) == 0 {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: reading record start: %w", ErrArchiveLoadFailed, err)
	}
	trimmed := strings.TrimRight(string(line), "\r\n")

	isWARC := strings.HasPrefix(trimmed, "WARC/")
	if opts.knownFormat == KnownFormatWARC && !isWARC {
		return nil, fmt.Errorf("%w: expected WARC record, got %q", ErrArchiveLoadFailed, trimmed)
	}
	if opts.knownFormat == KnownFormatARC && isWARC {
		return nil, fmt.Errorf("%w: expected ARC record, got %q", ErrArchiveLoadFailed, trimmed)
	}

	if isWARC {
		return loadWARCRecord(&prefixReader{prefix: line, src: src}, opts)
	}
	return loadARCRecord(trimmed, src, opts)
}

func loadWARCRecord(src reader.Reader, opts loadOptions) (*Record, error) {
	sh, _, err := headers.Parse(src, []string{"WARC/"}, true)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing WARC headers: %w", ErrArchiveLoadFailed, err)
	}

	fixWgetTargetURI(sh)

	recType, _ := sh.Get("WARC-Type")
	length, err := parseContentLength(sh)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		Format:     FormatWARC,
		Type:       Type(recType),
		RecHeaders: sh,
		Length:     length,
	}
	if ct, ok := sh.Get("Content-Type"); ok {
		rec.ContentType = ct
	}
	if tr, ok := sh.Get("WARC-Truncated"); ok {
		rec.Truncated = tr
	}
	if sn, ok := sh.Get("WARC-Segment-Number"); ok {
		rec.SegmentNumber, _ = strconv.Atoi(sn)
	}
	if so, ok := sh.Get("WARC-Segment-Origin-ID"); ok {
		rec.SegmentOriginID = so
	}
	if stl, ok := sh.Get("WARC-Segment-Total-Length"); ok {
		rec.SegmentTotalLength, _ = strconv.ParseInt(stl, 10, 64)
	}

	return finishLoadingBody(rec, src, sh, opts)
}

// fixWgetTargetURI strips known wget/older-tool bugs: WARC-Target-URI
// wrapped in angle brackets, or containing literal spaces.
func fixWgetTargetURI(sh *headers.StatusAndHeaders) {
	v, ok := sh.Get("WARC-Target-URI")
	if !ok {
		return
	}
	fixed := strings.TrimSpace(v)
	fixed = strings.TrimPrefix(fixed, "<")
	fixed = strings.TrimSuffix(fixed, ">")
	fixed = strings.ReplaceAll(fixed, " ", "%20")
	if fixed != v {
		sh.Set("WARC-Target-URI", fixed)
	}
}

func parseContentLength(sh *headers.StatusAndHeaders) (int64, error) {
	v, ok := sh.Get("Content-Length")
	if !ok {
		return 0, fmt.Errorf("%w: missing Content-Length", ErrArchiveLoadFailed)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid Content-Length %q", ErrArchiveLoadFailed, v)
	}
	return n, nil
}

// finishLoadingBody builds the bounded body reader for rec (WARC or
// ARC), wraps it in digest verification if enabled, parses embedded
// HTTP headers if rec.Type carries them, and sets PayloadLength.
func finishLoadingBody(rec *Record, src reader.Reader, sh *headers.StatusAndHeaders, opts loadOptions) (*Record, error) {
	limit := reader.NewLimitReader(src, rec.Length)
	rec.PayloadLength = rec.Length

	var checker *reader.Checker
	var body reader.Reader = limit
	blockAlg, blockDigest := digestHeader(sh, "WARC-Block-Digest")
	payloadAlg, payloadDigest := digestHeader(sh, "WARC-Payload-Digest")

	admitsDigest := rec.Type != TypeRevisit && rec.SegmentNumber <= 1
	if opts.digestKind != reader.DigestOff && (blockDigest != "" || payloadDigest != "") {
		checker = reader.NewChecker(opts.digestKind)
		if !admitsDigest {
			payloadDigest = ""
		}
		dv, err := reader.NewDigestVerifyingReader(limit, checker, blockAlg, payloadAlg, blockDigest, payloadDigest)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrArchiveLoadFailed, err)
		}
		body = dv
	}
	rec.checker = checker

	wantHTTP := httpBodyTypes[rec.Type] || (rec.Type == TypeResource && opts.ensureHTTP)
	if wantHTTP && !opts.noRecordParse {
		httpPrefixes := []string{"HTTP/", "GET", "POST", "PUT", "DELETE", "HEAD", "OPTIONS", "CONNECT", "PATCH", "TRACE"}
		httpStart := body.Tell()
		hh, _, err := headers.Parse(body, httpPrefixes, false)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing embedded HTTP headers: %w", ErrArchiveLoadFailed, err)
		}
		rec.HTTPHeaders = hh
		rec.PayloadLength = rec.Length - (body.Tell() - httpStart)
		if dv, ok := body.(*reader.DigestVerifyingReader); ok {
			dv.BeginPayload()
		}
	} else if dv, ok := body.(*reader.DigestVerifyingReader); ok && !wantHTTP {
		// With no embedded HTTP message the whole block is the payload,
		// as Builder computes WARC-Payload-Digest for it.
		dv.BeginPayload()
	}

	rec.rawStream = body
	return rec, nil
}

// digestHeader looks up a "algorithm:value" digest header and splits it,
// returning ("", "") if absent.
func digestHeader(sh *headers.StatusAndHeaders, name string) (algorithm, declared string) {
	v, ok := sh.Get(name)
	if !ok || v == "" {
		return "", ""
	}
	idx := strings.IndexByte(v, ':')
	if idx < 0 {
		return "", ""
	}
	return strings.ToLower(v[:idx]), v
}

// ---- ARC ----

// arcDateLayout is the 14-digit ARC timestamp: YYYYMMDDHHMMSS.
const arcDateLayout = "20060102150405"

func loadARCRecord(firstLine string, src reader.Reader, opts loadOptions) (*Record, error) {
	fields := strings.Fields(firstLine)

	if opts.firstARCRecord {
		return loadARCFiledesc(fields, src, opts)
	}
	return loadARCSubsequent(fields, src, opts)
}

// loadARCFiledesc parses the first record of an ARC file: five
// whitespace-separated fields (filename, ip, date, content-type,
// length) followed by a metadata body.
func loadARCFiledesc(fields []string, src reader.Reader, opts loadOptions) (*Record, error) {
	if len(fields) < 5 {
		return nil, fmt.Errorf("%w: malformed ARC file header: %q", ErrArchiveLoadFailed, strings.Join(fields, " "))
	}
	filename, ip, date, contentType, lengthStr := fields[0], fields[1], fields[2], fields[3], fields[4]
	length, err := strconv.ParseInt(lengthStr, 10, 64)
	if err != nil || length < 0 {
		return nil, fmt.Errorf("%w: invalid ARC header length %q", ErrArchiveLoadFailed, lengthStr)
	}

	format := FormatARC
	recType := TypeARCHeader
	sh := headers.New("ARC/1.0", strings.Join(fields, " "))
	sh.Set("Content-Length", lengthStr)

	if opts.arc2warc {
		format = FormatARC2WARC
		recType = TypeWARCInfo
		sh = synthesizeWARCHeader(TypeWARCInfo, "", ip, date, contentType, lengthStr, opts.warcinfoFilename)
		if filename != "" && opts.warcinfoFilename == "" {
			sh.Set("WARC-Filename", filename)
		}
	}

	rec := &Record{
		Format:      format,
		Type:        recType,
		RecHeaders:  sh,
		ContentType: contentType,
		Length:      length,
	}
	return finishLoadingBody(rec, src, sh, opts)
}

// loadARCSubsequent parses a regular ARC record: "url ip date
// content-type length" followed by body of exactly length bytes.
func loadARCSubsequent(fields []string, src reader.Reader, opts loadOptions) (*Record, error) {
	if len(fields) < 5 {
		return nil, fmt.Errorf("%w: malformed ARC record header: %q", ErrArchiveLoadFailed, strings.Join(fields, " "))
	}
	url, ip, date, contentType, lengthStr := fields[0], fields[1], fields[2], fields[3], fields[4]
	length, err := strconv.ParseInt(lengthStr, 10, 64)
	if err != nil || length < 0 {
		return nil, fmt.Errorf("%w: invalid ARC record length %q", ErrArchiveLoadFailed, lengthStr)
	}

	format := FormatARC
	recType := TypeResponse
	sh := headers.New("ARC/1.0", strings.Join(fields, " "))
	sh.Set("Content-Length", lengthStr)
	sh.Set("WARC-Target-URI", url)

	if opts.arc2warc {
		format = FormatARC2WARC
		sh = synthesizeWARCHeader(TypeResponse, url, ip, date, contentType, lengthStr, "")
	}

	rec := &Record{
		Format:      format,
		Type:        recType,
		RecHeaders:  sh,
		ContentType: contentType,
		Length:      length,
	}

	// ARC response bodies are themselves an HTTP response (status line
	// plus headers) followed by the payload, same as a WARC response
	// record's body.
	opts.ensureHTTP = true
	return finishLoadingBody(rec, src, sh, opts)
}

// synthesizeWARCHeader builds an equivalent WARC header block for an
// ARC record, per spec.md §4.5 step 2: WARC-Date from the ARC date,
// WARC-Target-URI from the URL, a fresh WARC-Record-ID, and a mapped
// Content-Type.
func synthesizeWARCHeader(recType Type, url, ip, arcDate, contentType, lengthStr, warcinfoID string) *headers.StatusAndHeaders {
	sh := headers.New("WARC/1.1", "WARC/1.1")
	sh.Set("WARC-Type", string(recType))
	sh.Set("WARC-Record-ID", "<urn:uuid:"+uuid.NewString()+">")
	sh.Set("WARC-Date", convertARCDate(arcDate))
	if url != "" {
		sh.Set("WARC-Target-URI", url)
	}
	if ip != "" {
		sh.Set("WARC-IP-Address", ip)
	}
	if contentType != "" {
		sh.Set("Content-Type", contentType)
	} else {
		sh.Set("Content-Type", "application/http; msgtype=response")
	}
	sh.Set("Content-Length", lengthStr)
	if warcinfoID != "" {
		sh.Set("WARC-Filename", warcinfoID)
	}
	return sh
}

// convertARCDate converts a 14-digit ARC timestamp to a WARC-Date
// (RFC 3339, second precision). If date cannot be parsed it is
// returned unchanged, matching spec.md's permissiveness principle of
// never rejecting an otherwise-readable capture over a cosmetic field.
func convertARCDate(date string) string {
	t, err := time.Parse(arcDateLayout, date)
	if err != nil {
		return date
	}
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

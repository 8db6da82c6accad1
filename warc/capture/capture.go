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

// Package capture provides explicit http.RoundTripper middleware for
// recording HTTP exchanges to a WARC stream. It deliberately holds no
// process-wide state: a RoundTripRecorder is an ordinary value wired
// into an http.Client or http.Transport chain, its recording scope
// exactly whatever that client's requests are. This is a narrower
// contract than some capture tools offer (which splice into a shared,
// opaque HTTP client by other means), chosen because it composes with
// the standard library's RoundTripper chain instead of mutating global
// state behind a caller's back.
package capture

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/ianlewis/go-warc/warc"
	"github.com/ianlewis/go-warc/warc/headers"
)

// RoundTripRecorder wraps an http.RoundTripper, writing every completed
// request/response exchange to a *warc.Writer as a linked pair (see
// warc.Writer.WriteRequestResponsePair). It fully buffers both bodies
// in memory to dump and replay them; this is the right tradeoff for a
// capture middleware recording a modest number of exchanges; it is not
// meant for capturing multi-gigabyte response bodies.
//
// A RoundTripRecorder is not safe for concurrent use unless the
// underlying warc.Writer's sink serializes concurrent writes itself;
// wrap RoundTrip calls in a mutex, or give each goroutine its own
// Writer over a buffer merged afterward.
type RoundTripRecorder struct {
	next   http.RoundTripper
	writer *warc.Writer
}

// NewRoundTripRecorder returns a RoundTripRecorder that forwards
// requests to next (http.DefaultTransport if nil) and records every
// completed exchange to w.
func NewRoundTripRecorder(next http.RoundTripper, w *warc.Writer) *RoundTripRecorder {
	if next == nil {
		next = http.DefaultTransport
	}
	return &RoundTripRecorder{next: next, writer: w}
}

// RoundTrip implements http.RoundTripper. The request is passed through
// to the wrapped transport unchanged, aside from req.Body being read
// and replaced so it can be recorded and still forwarded.
func (rt *RoundTripRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	reqBody, err := drainBody(&req.Body)
	if err != nil {
		return nil, fmt.Errorf("capture: reading request body: %w", err)
	}

	resp, err := rt.next.RoundTrip(req)
	if err != nil {
		return nil, err //nolint:wrapcheck // preserve the transport's error for caller inspection.
	}

	respBody, err := drainBody(&resp.Body)
	if err != nil {
		return resp, fmt.Errorf("capture: reading response body: %w", err)
	}

	targetURI := req.URL.String()
	reqDump := dumpRequest(req, reqBody)
	respDump := dumpResponse(resp, respBody)

	err = rt.writer.WriteRequestResponsePair(
		warc.BuildParams{
			TargetURI:     targetURI,
			Payload:       bytes.NewReader(reqDump),
			HTTPHeaderLen: int64(len(reqDump) - len(reqBody)),
		},
		warc.BuildParams{
			TargetURI:     targetURI,
			Payload:       bytes.NewReader(respDump),
			HTTPHeaderLen: int64(len(respDump) - len(respBody)),
		},
	)
	if err != nil {
		return resp, fmt.Errorf("capture: writing record: %w", err)
	}

	return resp, nil
}

// drainBody reads *body fully (if non-nil) and replaces it with a fresh
// reader over the same bytes, so the caller sees an unconsumed body.
func drainBody(body *io.ReadCloser) ([]byte, error) {
	if *body == nil {
		return nil, nil
	}
	b, err := io.ReadAll(*body)
	closeErr := (*body).Close()
	if err != nil {
		return nil, err //nolint:wrapcheck // caller adds context.
	}
	if closeErr != nil {
		return nil, closeErr //nolint:wrapcheck // caller adds context.
	}
	*body = io.NopCloser(bytes.NewReader(b))
	return b, nil
}

// dumpRequest renders req's wire form (request line, headers, body)
// using this module's own HTTP status-and-headers encoder, rather than
// net/http/httputil's dumping helpers, whose body-replay semantics on
// req.Body this package does not need to depend on.
func dumpRequest(req *http.Request, body []byte) []byte {
	requestURI := req.URL.RequestURI()
	sh := headers.New("HTTP/1.1", req.Method+" "+requestURI+" HTTP/1.1")

	host := req.Host
	if host == "" {
		host = req.URL.Host
	}
	if host != "" {
		sh.Set("Host", host)
	}
	for name, values := range req.Header {
		for _, v := range values {
			sh.Add(name, v)
		}
	}
	if _, ok := sh.Get("Content-Length"); !ok {
		sh.Set("Content-Length", strconv.Itoa(len(body)))
	}

	return append(sh.ToBytes(nil), body...)
}

// dumpResponse renders resp's wire form the same way dumpRequest does
// for requests.
func dumpResponse(resp *http.Response, body []byte) []byte {
	proto := fmt.Sprintf("HTTP/%d.%d", resp.ProtoMajor, resp.ProtoMinor)
	sh := headers.New(proto, proto+" "+resp.Status)

	for name, values := range resp.Header {
		for _, v := range values {
			sh.Add(name, v)
		}
	}
	if _, ok := sh.Get("Content-Length"); !ok {
		sh.Set("Content-Length", strconv.Itoa(len(body)))
	}

	return append(sh.ToBytes(nil), body...)
}

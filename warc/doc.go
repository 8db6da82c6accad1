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

// Package warc implements streaming readers and writers for the WARC (Web
// ARChive, ISO 28500) file format and its legacy ARC predecessor.
//
// A WARC file is a sequence of self-describing records, each framed by a
// "WARC/x.y" status line, an RFC 822-style header block, and a body of
// exactly Content-Length bytes. Records are typically gzip-compressed one
// member per record, which allows truncated reads and byte-range access
// without decompressing the whole file.
//
// See: https://iipc.github.io/warc-specifications/
// See: https://en.wikipedia.org/wiki/Archive_Team#ARC
//
// Unless otherwise informed clients should not assume implementations in
// this package are safe for parallel execution.
package warc

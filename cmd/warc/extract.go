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

package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/ianlewis/go-warc/warc"
)

var extractCommand = &cli.Command{
	Name:      "extract",
	Usage:     "Extract a single record starting at a byte offset in a WARC/ARC file.",
	ArgsUsage: "FILE OFFSET",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:               "payload",
			Usage:              "strip embedded HTTP headers, chunked framing, and content-encoding; write only the decoded payload",
			DisableDefaultText: true,
		},
		&cli.BoolFlag{
			Name:               "headers",
			Usage:              "print only the record's own WARC headers",
			DisableDefaultText: true,
		},
	},
	Action: func(c *cli.Context) error {
		if c.Args().Len() != 2 {
			return fmt.Errorf("%w: extract requires FILE and OFFSET", ErrFlagParse)
		}
		path := c.Args().Get(0)
		offset, err := strconv.ParseInt(c.Args().Get(1), 10, 64)
		if err != nil {
			return fmt.Errorf("%w: invalid offset %q: %w", ErrFlagParse, c.Args().Get(1), err)
		}

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("%w: opening %q: %w", ErrWarc, path, err)
		}
		defer f.Close()

		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return fmt.Errorf("%w: seeking to offset %d: %w", ErrWarc, offset, err)
		}

		it, err := warc.NewIterator(f)
		if err != nil {
			return fmt.Errorf("%w: reading %q: %w", ErrWarc, path, err)
		}
		rec, err := it.Next()
		if err != nil {
			return fmt.Errorf("%w: reading record at offset %d in %q: %w", ErrWarc, offset, path, err)
		}

		if c.Bool("headers") {
			if _, err := c.App.Writer.Write(rec.RecHeaders.ToBytes(nil)); err != nil {
				return fmt.Errorf("%w: writing headers: %w", ErrWarc, err)
			}
			return nil
		}

		var src io.Reader = rec.RawStream()
		if c.Bool("payload") {
			cs, err := rec.ContentStream()
			if err != nil {
				return fmt.Errorf("%w: decoding payload: %w", ErrWarc, err)
			}
			src = cs
		}
		if _, err := io.Copy(c.App.Writer, src); err != nil {
			return fmt.Errorf("%w: extracting record body: %w", ErrWarc, err)
		}
		return nil
	},
}

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
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ianlewis/go-warc/warc"
)

var indexCommand = &cli.Command{
	Name:      "index",
	Usage:     "Write a JSON-lines index of every record in the given WARC/ARC files.",
	ArgsUsage: "FILE...",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "write the index to `FILE` instead of stdout",
		},
	},
	Action: func(c *cli.Context) error {
		if c.Args().Len() == 0 {
			return fmt.Errorf("%w: index requires at least one file", ErrFlagParse)
		}

		out := c.App.Writer
		if path := c.String("output"); path != "" {
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("%w: creating index file: %w", ErrWarc, err)
			}
			defer f.Close()
			out = f
		}

		enc := json.NewEncoder(out)
		for _, path := range c.Args().Slice() {
			if err := indexFile(enc, path); err != nil {
				return err
			}
		}
		return nil
	},
}

// indexEntry is one JSON-lines record in the index: the record's offset,
// source file name and Content-Length, plus WARC-Type, WARC-Target-URI,
// WARC-Date and WARC-Record-ID under the short lower-case keys
// warc_type, url, date and record_id.
type indexEntry struct {
	Offset    int64  `json:"offset"`
	Filename  string `json:"filename"`
	WARCType  string `json:"warc_type"`
	TargetURI string `json:"url,omitempty"`
	Date      string `json:"date,omitempty"`
	RecordID  string `json:"record_id,omitempty"`
	Length    int64  `json:"length"`
}

func indexFile(enc *json.Encoder, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: opening %q: %w", ErrWarc, path, err)
	}
	defer f.Close()

	it, err := warc.NewIterator(f, warc.WithNoRecordParse(true))
	if err != nil {
		return fmt.Errorf("%w: reading %q: %w", ErrWarc, path, err)
	}

	for {
		rec, nerr := it.Next()
		if nerr == io.EOF { //nolint:errorlint // io.EOF is a sentinel.
			return nil
		}
		if nerr != nil {
			return fmt.Errorf("%w: reading %q: %w", ErrWarc, path, nerr)
		}

		offset, _ := it.GetRecordOffset()
		entry := indexEntry{
			Offset:    offset,
			Filename:  path,
			WARCType:  string(rec.Type),
			TargetURI: rec.TargetURI(),
			Date:      rec.WARCDate(),
			RecordID:  rec.RecordID(),
			Length:    rec.Length,
		}
		if err := enc.Encode(entry); err != nil {
			return fmt.Errorf("%w: encoding index entry: %w", ErrWarc, err)
		}
		if err := rec.Close(); err != nil {
			return fmt.Errorf("%w: draining record in %q: %w", ErrWarc, path, err)
		}
	}
}

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

	"github.com/rodaine/table"
	"github.com/urfave/cli/v2"

	"github.com/ianlewis/go-warc/warc"
)

var listCommand = &cli.Command{
	Name:      "list",
	Usage:     "Print a table summarizing every record in a WARC/ARC file.",
	ArgsUsage: "FILE",
	Action: func(c *cli.Context) error {
		if c.Args().Len() != 1 {
			return fmt.Errorf("%w: list requires exactly one file", ErrFlagParse)
		}
		path := c.Args().Get(0)

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("%w: opening %q: %w", ErrWarc, path, err)
		}
		defer f.Close()

		it, err := warc.NewIterator(f, warc.WithNoRecordParse(true))
		if err != nil {
			return fmt.Errorf("%w: reading %q: %w", ErrWarc, path, err)
		}

		type row struct {
			offset     int64
			recordType string
			length     int64
			targetURI  string
		}
		var rows []row
		for {
			rec, nerr := it.Next()
			if nerr == io.EOF { //nolint:errorlint // io.EOF is a sentinel.
				break
			}
			if nerr != nil {
				return fmt.Errorf("%w: reading %q: %w", ErrWarc, path, nerr)
			}
			offset, _ := it.GetRecordOffset()
			rows = append(rows, row{
				offset:     offset,
				recordType: string(rec.Type),
				length:     rec.Length,
				targetURI:  rec.TargetURI(),
			})
			if err := rec.Close(); err != nil {
				return fmt.Errorf("%w: draining record in %q: %w", ErrWarc, path, err)
			}
		}

		tbl := table.New("offset", "type", "length", "url")
		for _, r := range rows {
			tbl.AddRow(r.offset, r.recordType, r.length, r.targetURI)
		}
		tbl.Print()

		return nil
	},
}

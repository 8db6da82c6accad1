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
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rodaine/table"
	"github.com/urfave/cli/v2"

	"github.com/ianlewis/go-warc/warc"
	"github.com/ianlewis/go-warc/warc/reader"
)

// errCheckFailed indicates at least one record failed digest
// verification or could not be parsed.
var errCheckFailed = errors.New("one or more records failed verification")

var checkCommand = &cli.Command{
	Name:      "check",
	Usage:     "Verify every record's digests and framing in the given WARC/ARC files.",
	ArgsUsage: "FILE...",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:               "verbose",
			Aliases:            []string{"v"},
			Usage:              "print one table row per record instead of only failures",
			DisableDefaultText: true,
		},
	},
	Action: func(c *cli.Context) error {
		if c.Args().Len() == 0 {
			return fmt.Errorf("%w: check requires at least one file", ErrFlagParse)
		}

		verbose := c.Bool("verbose")
		var rows []checkRow
		var failed bool
		for _, path := range c.Args().Slice() {
			fileRows, err := checkFile(path)
			if err != nil {
				return err
			}
			for _, row := range fileRows {
				if row.status != "ok" {
					failed = true
				}
			}
			rows = append(rows, fileRows...)
		}

		if verbose {
			tbl := table.New("file", "offset", "type", "url", "status")
			for _, row := range rows {
				tbl.AddRow(row.file, row.offset, row.recordType, row.targetURI, row.status)
			}
			tbl.Print()
		} else {
			for _, row := range rows {
				if row.status != "ok" {
					fmt.Fprintf(c.App.Writer, "%s: offset %d: %s\n", row.file, row.offset, row.status)
				}
			}
		}

		if failed {
			return errCheckFailed
		}
		return nil
	},
}

type checkRow struct {
	file       string
	offset     int64
	recordType string
	targetURI  string
	status     string
}

func checkFile(path string) ([]checkRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %q: %w", ErrWarc, path, err)
	}
	defer f.Close()

	it, err := warc.NewIterator(f, warc.WithDigests(reader.DigestRaise))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %q: %w", ErrWarc, path, err)
	}

	var rows []checkRow
	for {
		rec, nerr := it.Next()
		if nerr == io.EOF { //nolint:errorlint // io.EOF is a sentinel.
			return rows, nil
		}
		if nerr != nil {
			rows = append(rows, checkRow{file: path, status: nerr.Error()})
			return rows, nil
		}

		offset, _ := it.GetRecordOffset()
		status := "ok"
		if _, err := io.Copy(io.Discard, rec.RawStream()); err != nil {
			status = err.Error()
		}
		rows = append(rows, checkRow{
			file:       path,
			offset:     offset,
			recordType: string(rec.Type),
			targetURI:  rec.TargetURI(),
			status:     status,
		})
	}
}

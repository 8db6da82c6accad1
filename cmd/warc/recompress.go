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
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ianlewis/go-warc/warc"
)

var recompressCommand = &cli.Command{
	Name:      "recompress",
	Usage:     "Rewrite a WARC/ARC file with exactly one gzip member per record, repairing misaligned framing.",
	ArgsUsage: "IN OUT",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:               "verbose",
			Aliases:            []string{"v"},
			Usage:              "report whether repair (full decompression) was needed",
			DisableDefaultText: true,
		},
		&cli.BoolFlag{
			Name:               "arc2warc",
			Usage:              "translate ARC input into WARC records, synthesizing a leading warcinfo record",
			DisableDefaultText: true,
		},
	},
	Action: func(c *cli.Context) error {
		if c.Args().Len() != 2 {
			return fmt.Errorf("%w: recompress requires IN and OUT", ErrFlagParse)
		}
		in, out := c.Args().Get(0), c.Args().Get(1)

		src, err := os.Open(in)
		if err != nil {
			return fmt.Errorf("%w: opening %q: %w", ErrWarc, in, err)
		}
		defer src.Close()

		dst, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return fmt.Errorf("%w: opening %q: %w", ErrWarc, out, err)
		}
		defer dst.Close()

		rc := warc.NewRecompressor(warc.WithRecompressARC2WARC(c.Bool("arc2warc")))
		report, err := rc.Recompress(src, dst)
		if err != nil {
			return fmt.Errorf("%w: recompressing %q: %w", ErrWarc, in, err)
		}

		if c.Bool("verbose") {
			fmt.Fprintf(c.App.Writer, "%s: %d records written, repaired=%t\n", out, report.RecordsWritten, report.Repaired)
		}
		return nil
	},
}

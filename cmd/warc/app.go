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
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"
)

const (
	// ExitCodeSuccess is the successful exit code.
	ExitCodeSuccess int = iota

	// ExitCodeCheckFailed is the exit code for "check" finding at least
	// one bad record.
	ExitCodeCheckFailed

	// ExitCodeFlagParseError is the exit code for a flag parsing error.
	ExitCodeFlagParseError

	// ExitCodeUnknownError is the exit code for an unknown error.
	ExitCodeUnknownError
)

// ErrFlagParse is a flag parsing error.
var ErrFlagParse = errors.New("parsing flags")

// ErrWarc wraps every non-flag-parsing error this CLI returns.
var ErrWarc = errors.New("warc")

func init() {
	// Set the HelpFlag to a random name so that it isn't used. `cli`
	// handles the flag with the root command such that it takes a
	// command name argument but subcommands here are dispatched by
	// name directly.
	//
	// See: github.com/urfave/cli/issues/1809
	cli.HelpFlag = &cli.BoolFlag{
		Name:               "d41d8cd98f00b204e980",
		DisableDefaultText: true,
	}
}

// must checks the error and panics if not nil.
func must[T any](val T, err error) T {
	if err != nil {
		panic(err)
	}
	return val
}

func newWarcApp() *cli.App {
	return &cli.App{
		Name:  filepath.Base(os.Args[0]),
		Usage: "Read and write WARC (ISO 28500) and legacy ARC web archive files.",
		Description: strings.Join([]string{
			"warc(1) is a streaming WARC/ARC archive codec CLI written in Go.",
			"https://github.com/ianlewis/go-warc",
		}, "\n"),
		Commands: []*cli.Command{
			indexCommand,
			checkCommand,
			extractCommand,
			recompressCommand,
			listCommand,
			licenseCommand,
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:               "help",
				Usage:              "print this help text and exit",
				Aliases:            []string{"h"},
				DisableDefaultText: true,
			},
			&cli.BoolFlag{
				Name:               "version",
				Usage:              "print version information and exit",
				Aliases:            []string{"v"},
				DisableDefaultText: true,
			},
		},
		ArgsUsage:       "COMMAND [arguments...]",
		Copyright:       "Google LLC",
		HideHelp:        true,
		HideHelpCommand: true,
		Action: func(c *cli.Context) error {
			if c.Bool("help") {
				return cli.ShowAppHelp(c)
			}
			if c.Bool("version") {
				return printVersion(c)
			}
			return cli.ShowAppHelp(c)
		},
		ExitErrHandler: func(c *cli.Context, err error) {
			if err == nil {
				return
			}

			_ = must(fmt.Fprintf(c.App.ErrWriter, "%s: %v\n", c.App.Name, err))
			switch {
			case errors.Is(err, ErrFlagParse):
				cli.OsExiter(ExitCodeFlagParseError)
			case errors.Is(err, errCheckFailed):
				cli.OsExiter(ExitCodeCheckFailed)
			default:
				cli.OsExiter(ExitCodeUnknownError)
			}
		},
	}
}

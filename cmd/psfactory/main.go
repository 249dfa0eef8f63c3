// Frontline Perception System
// Copyright (C) 2020-2025 TurbineOne LLC
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Command psfactory converts videos into rectangle codec streams, packs
// them into self-contained executables and inspects the results.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
)

const lCommand = "command"

var log zerolog.Logger //nolint:gochecknoglobals // Don't care.

var errUsage = errors.New("usage")

const usageText = `usage: psfactory [-config file] <command> [flags]

commands:
  convert   turn a project's source video or any video into codec streams
  build     pack codec streams into executables
  inspect   describe an archive or codec stream
  serve     run the factory gRPC service
  config    print the effective config and its environment variables

Run "psfactory <command> -h" for the command's flags.
`

func usage() {
	fmt.Fprint(flag.CommandLine.Output(), usageText)
}

func main() {
	configPath := flag.String("config", configFileName, "YAML config file")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	initConfig(*configPath) // May early exit if config init fails.

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	command, args := flag.Arg(0), flag.Args()[1:]

	err := run(ctx, command, args)

	cancel()

	switch {
	case err == nil:
	case errors.Is(err, flag.ErrHelp):
	case errors.Is(err, errUsage):
		fmt.Fprintln(os.Stderr, err.Error())
		usage()
		os.Exit(2)
	default:
		log.Error().Err(err).Str(lCommand, command).Msg("command failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, args []string) error {
	switch command {
	case "convert":
		return runConvert(ctx, args)
	case "build":
		return runBuild(ctx, args)
	case "inspect":
		return runInspect(args)
	case "serve":
		return runServe(ctx, args)
	case "config":
		return runConfig()
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

// newFlagSet returns a flag set that reports errors instead of exiting.
func newFlagSet(name, synopsis string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: psfactory %s %s\n", name, synopsis)
		fs.PrintDefaults()
	}

	return fs
}

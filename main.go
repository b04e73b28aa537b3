// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// stacksym turns the raw addresses of crash backtraces into function, file, line
// and column information using llvm-symbolizer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/peterbourgon/ff/v3/ffcli"
	log "github.com/sirupsen/logrus"
)

func main() {
	log.SetReportCaller(false)
	log.SetFormatter(&log.TextFormatter{})

	root := newRootCommand(os.Stdin, os.Stdout)
	if err := root.ParseAndRun(context.Background(), os.Args[1:]); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			log.Fatalf("%v", err)
		}
	}
}

func newRootCommand(stdin io.Reader, stdout io.Writer) *ffcli.Command {
	cfg := &config{}
	return &ffcli.Command{
		Name:       "stacksym",
		ShortUsage: "stacksym [flags] [path_to_executable] < backtrace",
		ShortHelp:  "Symbolize crash backtraces",
		FlagSet:    newFlagSet(cfg),
		Options:    parseOptions(),
		Subcommands: []*ffcli.Command{
			newCleanCmd(cfg),
		},
		Exec: func(ctx context.Context, args []string) error {
			switch len(args) {
			case 0:
			case 1:
				cfg.PathToExecutable = args[0]
			default:
				return fmt.Errorf("expected at most one executable, got %d arguments", len(args))
			}
			if cfg.Live {
				// Stop only when the process feeding stdin exits.
				signal.Ignore(os.Interrupt)
			}
			return run(ctx, cfg, stdin, stdout)
		},
	}
}

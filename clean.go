// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/peterbourgon/ff/v3/ffcli"
	log "github.com/sirupsen/logrus"

	"github.com/stacksym/stacksym/resolver"
)

type cleanCmd struct {
	cfg *config

	// User-specified command line arguments.
	dry bool
}

func newCleanCmd(cfg *config) *ffcli.Command {
	cmd := cleanCmd{cfg: cfg}

	set := flag.NewFlagSet("clean", flag.ContinueOnError)
	set.BoolVar(&cmd.dry, "dry-run", false, "Perform a dry-run (don't actually delete)")

	return &ffcli.Command{
		Name:       "clean",
		ShortUsage: "stacksym [flags] clean [-dry-run]",
		ShortHelp:  "Remove files left behind by interrupted downloads in the cache directories",
		FlagSet:    set,
		Options:    parseOptions(),
		Exec:       cmd.exec,
	}
}

func (cmd *cleanCmd) exec(context.Context, []string) error {
	for _, dir := range []string{cmd.cfg.S3CacheDir, cmd.cfg.PRCacheDir} {
		removed, err := resolver.RemoveTempFiles(dir, cmd.dry)
		if err != nil {
			return fmt.Errorf("failed to delete temp files: %w", err)
		}
		for _, path := range removed {
			if cmd.dry {
				log.Infof("Would remove `%s`", path)
			} else {
				log.Infof("Removed `%s`", path)
			}
		}
	}
	return nil
}

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package symbolizer drives an external llvm-symbolizer compatible tool to turn
// addresses into function, file, line and column information.
package symbolizer // import "github.com/stacksym/stacksym/symbolizer"

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	log "github.com/sirupsen/logrus"
)

const (
	// EnvSymbolizerPath overrides the symbolizer executable when no path is configured.
	EnvSymbolizerPath = "STACKSYM_SYMBOLIZER_PATH"
	// DefaultSymbolizerPath is looked up in PATH as the last resort.
	DefaultSymbolizerPath = "llvm-symbolizer"
)

// Config selects and configures the symbolizer executable.
type Config struct {
	// Path of the executable. Falls back to EnvSymbolizerPath, then to
	// DefaultSymbolizerPath.
	Path string
	// DsymHints are directories searched for macOS dSYM bundles.
	DsymHints []string
}

func (c Config) executable() string {
	if c.Path != "" {
		return c.Path
	}
	if path := os.Getenv(EnvSymbolizerPath); path != "" {
		return path
	}
	log.Debugf("%s is not set, using %s", EnvSymbolizerPath, DefaultSymbolizerPath)
	return DefaultSymbolizerPath
}

func (c Config) args() []string {
	args := make([]string, 0, len(c.DsymHints))
	for _, hint := range c.DsymHints {
		args = append(args, "-dsym-hint="+hint)
	}
	return args
}

// Process is a running symbolizer. Closing Stdin tells it to exit.
type Process interface {
	Stdin() io.WriteCloser
	Stdout() io.Reader
	Wait() error
}

type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

// Start launches the symbolizer executable. Its stderr is discarded.
func Start(ctx context.Context, cfg Config) (Process, error) {
	path := cfg.executable()
	cmd := exec.CommandContext(ctx, path, cfg.args()...)
	cmd.Stderr = nil

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", path, err)
	}
	log.Debugf("Started %s (pid %d)", path, cmd.Process.Pid)
	return &execProcess{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

func (p *execProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *execProcess) Stdout() io.Reader     { return p.stdout }
func (p *execProcess) Wait() error           { return p.cmd.Wait() }

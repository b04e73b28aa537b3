// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package live symbolizes backtraces as they appear in a stream of log lines, for
// example the output of a running server piped into stacksym.
package live // import "github.com/stacksym/stacksym/live"

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/stacksym/stacksym/backtrace"
)

// frameLineMarker identifies the per-frame lines that accompany a logged backtrace.
// They are redundant with the symbolized output and dropped.
const frameLineMarker = "Frame: 0x"

// Trace is a backtrace found in the input stream.
type Trace struct {
	Doc *backtrace.Document
	// Logger tags log entries with a run id distinguishing the traces.
	Logger *log.Entry
}

// Handler symbolizes one trace and writes the result to out.
type Handler func(ctx context.Context, trace *Trace, out io.Writer) error

// Run copies lines from in to out until in is exhausted. Lines carrying a backtrace
// are replaced by the output of handle.
func Run(ctx context.Context, in io.Reader, out io.Writer, handle Handler) error {
	scanner := backtrace.NewLineScanner(in)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if strings.Contains(line, frameLineMarker) {
			continue
		}

		prefix, doc, ok, err := backtrace.SplitLiveLine(line)
		if !ok || err != nil {
			if err != nil {
				log.Warnf("Ignoring backtrace: %v", err)
			}
			if _, err := fmt.Fprintln(out, line); err != nil {
				return err
			}
			continue
		}
		if len(doc.Backtrace) == 0 {
			fmt.Fprintln(out, "Trace is empty, skipping...")
			continue
		}

		id := uuid.NewString()
		trace := &Trace{
			Doc:    doc,
			Logger: log.WithField("run", id),
		}
		fmt.Fprintln(out, prefix)
		fmt.Fprintln(out, "Symbolizing...")
		trace.Logger.Debugf("Symbolizing %d frames", len(doc.Backtrace))
		if err := handle(ctx, trace, out); err != nil {
			return fmt.Errorf("failed to symbolize trace %s: %w", id, err)
		}
	}
	return scanner.Err()
}

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package symbolizer // import "github.com/stacksym/stacksym/symbolizer"

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/stacksym/stacksym/backtrace"
	"github.com/stacksym/stacksym/metrics"
)

// Symbolize starts a symbolizer process, fills in the symbols of every frame with a
// debug file and stops the process again.
func Symbolize(ctx context.Context, cfg Config, frames []*backtrace.Frame) error {
	proc, err := Start(ctx, cfg)
	if err != nil {
		return err
	}
	session := NewSession(proc)
	err = SymbolizeWith(ctx, session, frames)
	if cerr := session.Close(); cerr != nil {
		log.Debugf("Symbolizer exited: %v", cerr)
	}
	return err
}

// SymbolizeWith fills in the symbols of every frame with a debug file using an
// existing session. Frames without a debug file, or whose path or address cannot be
// sent to the symbolizer, are reported and left alone.
func SymbolizeWith(ctx context.Context, session *Session, frames []*backtrace.Frame) error {
	for _, frame := range frames {
		if !frame.Resolved() {
			log.Warnf("Path not found for frame at %s (build id %q), skipping",
				frame.Addr, frame.BuildID)
			metrics.Frame(ctx, metrics.OutcomeUnresolved)
			continue
		}
		syms, err := session.Symbolize(frame.Path, frame.Addr)
		if errors.Is(err, ErrInvalidRequest) {
			log.Warnf("Skipping frame at %q (build id %q): %v", frame.Addr, frame.BuildID, err)
			metrics.Frame(ctx, metrics.OutcomeUnresolved)
			continue
		}
		if err != nil {
			return err
		}
		frame.Symbols = syms
		metrics.Frame(ctx, metrics.OutcomeSymbolized)
	}
	return nil
}

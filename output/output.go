// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package output renders symbolized frames.
package output // import "github.com/stacksym/stacksym/output"

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ianlancetaylor/demangle"

	"github.com/stacksym/stacksym/backtrace"
)

// Format selects how frames are rendered.
type Format string

const (
	// FormatClassic prints one ` file:line:column: function` line per symbol.
	FormatClassic Format = "classic"
	// FormatJSON dumps the frames with all the information gathered for them.
	FormatJSON Format = "json"
)

// ErrUnknownFormat is returned for output formats other than classic and json.
var ErrUnknownFormat = errors.New("unknown output format")

// ParseFormat validates an output format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatClassic, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Writer renders frames in one format.
type Writer struct {
	format   Format
	demangle bool
}

// Option configures a Writer.
type Option func(*Writer)

// WithDemangle demangles C++ function names in classic output.
func WithDemangle() Option {
	return func(w *Writer) {
		w.demangle = true
	}
}

// New creates a Writer for format.
func New(format Format, opts ...Option) (*Writer, error) {
	if _, err := ParseFormat(string(format)); err != nil {
		return nil, err
	}
	w := &Writer{format: format}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Write renders frames to out.
func (w *Writer) Write(out io.Writer, frames []*backtrace.Frame) error {
	if w.format == FormatJSON {
		return writeJSON(out, frames)
	}
	return w.writeClassic(out, frames)
}

func (w *Writer) writeClassic(out io.Writer, frames []*backtrace.Frame) error {
	bw := bufio.NewWriter(out)
	for _, frame := range frames {
		if len(frame.Symbols) == 0 {
			path := frame.Path
			if path == "" {
				path = "no value found"
			}
			fmt.Fprintf(bw, " Couldn't extract symbols: path=%s\n", path)
			continue
		}
		for _, sym := range frame.Symbols {
			fn := sym.Function
			if w.demangle {
				fn = demangle.Filter(fn)
			}
			fmt.Fprintf(bw, " %s:%d:%d: %s\n", sym.File, sym.Line, sym.Column, fn)
		}
	}
	return bw.Flush()
}

func writeJSON(out io.Writer, frames []*backtrace.Frame) error {
	if frames == nil {
		frames = []*backtrace.Frame{}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(frames); err != nil {
		return fmt.Errorf("failed to encode frames: %w", err)
	}
	return nil
}

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package preprocess turns the backtrace of a crash report into frames that are
// ready for symbolization: it computes the address of every frame and resolves the
// debug file of the binary the frame belongs to.
package preprocess // import "github.com/stacksym/stacksym/preprocess"

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/stacksym/stacksym/backtrace"
	"github.com/stacksym/stacksym/resolver"
)

// Format is the layout of the backtrace entries of a crash report.
type Format string

const (
	// FormatClassic entries carry a load address and an offset that are combined
	// with the binary descriptors of the process info.
	FormatClassic Format = "classic"
	// FormatThin entries carry the address and the binary identity themselves.
	FormatThin Format = "thin"
)

// ErrUnknownFormat is returned for input formats other than classic and thin.
var ErrUnknownFormat = errors.New("unknown input format")

// ParseFormat validates an input format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatClassic, FormatThin:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Preprocessor prepares frames of one input format.
type Preprocessor struct {
	format      Format
	resolver    resolver.Resolver
	concurrency int
}

// Option configures a Preprocessor.
type Option func(*Preprocessor)

// WithConcurrency allows up to n debug file lookups to run in parallel.
func WithConcurrency(n int) Option {
	return func(p *Preprocessor) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// New creates a Preprocessor that resolves debug files with r.
func New(format Format, r resolver.Resolver, opts ...Option) (*Preprocessor, error) {
	if _, err := ParseFormat(string(format)); err != nil {
		return nil, err
	}
	p := &Preprocessor{
		format:      format,
		resolver:    r,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// pending is a frame waiting for its debug file.
type pending struct {
	frame *backtrace.Frame
	so    backtrace.SharedObjectInfo
}

// Process returns the frames of doc in backtrace order. Entries that cannot be
// turned into a frame are logged and skipped. Frames whose debug file could not be
// found are returned with an empty path.
func (p *Preprocessor) Process(ctx context.Context, doc *backtrace.Document) ([]*backtrace.Frame, error) {
	if doc == nil {
		return nil, errors.New("no document")
	}

	var items []pending
	switch p.format {
	case FormatClassic:
		items = classicFrames(doc)
	case FormatThin:
		items = thinFrames(doc)
	}

	if err := p.resolve(ctx, items); err != nil {
		return nil, err
	}

	frames := make([]*backtrace.Frame, len(items))
	for i := range items {
		frames[i] = items[i].frame
	}
	return frames, nil
}

func classicFrames(doc *backtrace.Document) []pending {
	bases := make(map[string]backtrace.SharedObjectInfo, len(doc.ProcessInfo.SOMap))
	for _, so := range doc.ProcessInfo.SOMap {
		if so.Base != "" {
			bases[so.Base] = so
		}
	}

	items := make([]pending, 0, len(doc.Backtrace))
	for i, entry := range doc.Backtrace {
		var raw backtrace.RawFrame
		if err := json.Unmarshal(entry, &raw); err != nil {
			log.Warnf("Skipping backtrace entry %d: %v", i, err)
			continue
		}
		if raw.Base == nil {
			log.Warnf("Skipping backtrace entry %d: missing base address", i)
			continue
		}

		so := bases[*raw.Base]
		addr, err := backtrace.ComputeAddr(&so, *raw.Base, raw.Offset)
		if err != nil {
			log.Warnf("Skipping backtrace entry %d: %v", i, err)
			continue
		}
		items = append(items, pending{
			frame: &backtrace.Frame{
				BuildID: so.BuildID,
				Offset:  raw.Offset,
				Addr:    backtrace.FormatAddr(addr),
				Symbol:  raw.Symbol,
			},
			so: so,
		})
	}
	return items
}

func thinFrames(doc *backtrace.Document) []pending {
	items := make([]pending, 0, len(doc.Backtrace))
	for i, entry := range doc.Backtrace {
		frame, so, err := backtrace.ParseThinFrame(entry)
		if err != nil {
			log.Warnf("Skipping backtrace entry %d: %v", i, err)
			continue
		}
		items = append(items, pending{frame: frame, so: *so})
	}
	return items
}

// resolve looks up the debug file of every distinct binary once, in order of first
// appearance, and assigns the results to the frames.
func (p *Preprocessor) resolve(ctx context.Context, items []pending) error {
	index := make(map[backtrace.SharedObjectInfo]int)
	var distinct []backtrace.SharedObjectInfo
	for _, it := range items {
		if _, ok := index[it.so]; !ok {
			index[it.so] = len(distinct)
			distinct = append(distinct, it.so)
		}
	}

	paths := make([]string, len(distinct))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i := range distinct {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if path, ok := p.resolver.Resolve(gctx, &distinct[i]); ok {
				paths[i] = path
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if observer, ok := p.resolver.(resolver.BuildRootObserver); ok {
		for i := range distinct {
			observer.Observe(&distinct[i])
		}
	}
	for i := range items {
		items[i].frame.Path = paths[index[items[i].so]]
	}
	return nil
}

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package resolver // import "github.com/stacksym/stacksym/resolver"

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"

	"github.com/stacksym/stacksym/backtrace"
	"github.com/stacksym/stacksym/metrics"
)

// buildRootPrefix is where CI hosts keep their build directories.
const buildRootPrefix = "/data/mci/"

// PathResolver resolves every binary to the executable given on the command line.
type PathResolver struct {
	binPath  string
	embedded bool

	mu        sync.Mutex
	buildRoot string
}

// PathOption configures a PathResolver.
type PathOption func(*PathResolver)

// WithEmbeddedPaths makes the resolver prefer the path recorded in the crash report
// when there is one. This works for shared libraries when symbolizing on the machine
// that crashed.
func WithEmbeddedPaths() PathOption {
	return func(r *PathResolver) {
		r.embedded = true
	}
}

// NewPathResolver creates a resolver for the executable at binPath. Symlinks in
// binPath are resolved.
func NewPathResolver(binPath string, opts ...PathOption) (*PathResolver, error) {
	r := &PathResolver{}
	for _, opt := range opts {
		opt(r)
	}

	if binPath == "" {
		if !r.embedded {
			return nil, errors.New("the path resolver requires the path to the executable")
		}
		return r, nil
	}

	abs, err := filepath.Abs(binPath)
	if err != nil {
		return nil, err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	r.binPath = abs
	return r, nil
}

// Resolve implements Resolver.
func (r *PathResolver) Resolve(ctx context.Context, so *backtrace.SharedObjectInfo) (string, bool) {
	path := r.binPath
	if r.embedded && so.Path != "" {
		path = so.Path
	}
	if path == "" {
		metrics.ResolverLookup(ctx, string(KindPath), metrics.OutcomeNotFound)
		return "", false
	}
	metrics.ResolverLookup(ctx, string(KindPath), metrics.OutcomeFound)
	return path, true
}

// BuildRoot implements BuildRootObserver. The first observed path below the CI build
// prefix determines the build root.
func (r *PathResolver) BuildRoot() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buildRoot, r.buildRoot != ""
}

// Observe implements BuildRootObserver.
func (r *PathResolver) Observe(so *backtrace.SharedObjectInfo) {
	if !strings.HasPrefix(so.Path, buildRootPrefix) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.buildRoot == "" {
		r.buildRoot, _, _ = strings.Cut(so.Path, "/src/")
	}
}

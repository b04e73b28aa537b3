// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package resolver locates the debug file belonging to a binary loaded into a
// crashed process. Three strategies implement the same Resolver capability: a fixed
// local path, an object store keyed by build id, and a remote debug symbol service
// backed by a local download cache. One of them is selected at startup.
package resolver // import "github.com/stacksym/stacksym/resolver"

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/stacksym/stacksym/backtrace"
)

// Resolver finds the debug file for a binary. Failures are never fatal: anything
// that goes wrong is logged and reported as not found, so that a single missing
// debug file does not abort a whole batch of frames.
type Resolver interface {
	Resolve(ctx context.Context, so *backtrace.SharedObjectInfo) (path string, ok bool)
}

// BuildRootObserver is implemented by resolvers that learn the directory the
// crashed binary was built in from the paths of a crash report. Observe is called
// once per distinct binary, in the order the binaries first appear in the backtrace.
type BuildRootObserver interface {
	Observe(so *backtrace.SharedObjectInfo)
	BuildRoot() (string, bool)
}

// StatisticsReporter is implemented by resolvers that keep internal statistics.
// Each call reports the activity since the previous one.
type StatisticsReporter interface {
	ReportStatistics(ctx context.Context)
}

// Kind names a resolver strategy on the command line.
type Kind string

const (
	KindPath        Kind = "path"
	KindObjectStore Kind = "s3"
	KindService     Kind = "pr"
)

// ParseKind validates a resolver name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindPath, KindObjectStore, KindService:
		return k, nil
	default:
		return "", fmt.Errorf("unknown debug file resolver %q", s)
	}
}

var validBuildID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// normalizeBuildID lowercases a build id and makes sure it is safe to use in file
// names and URLs.
func normalizeBuildID(buildID string) (string, error) {
	if !validBuildID.MatchString(buildID) {
		return "", fmt.Errorf("invalid build id %q", buildID)
	}
	return strings.ToLower(buildID), nil
}

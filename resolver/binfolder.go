// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package resolver // import "github.com/stacksym/stacksym/resolver"

import (
	"runtime"
	"strings"
)

const debugSuffix = ".debug"

// DefaultBinaryFolder returns the directory of an unpacked debug symbols archive that
// holds the debug file with the given name: shared libraries live in "lib", everything
// else in "bin". Windows archives keep everything in "bin".
func DefaultBinaryFolder(name string) string {
	return binaryFolder(runtime.GOOS, name)
}

func binaryFolder(goos, name string) string {
	if goos == "windows" {
		return "bin"
	}
	base := strings.TrimSuffix(name, debugSuffix)
	if strings.HasSuffix(base, ".so") || strings.Contains(base, ".so.") ||
		strings.HasSuffix(base, ".dylib") {
		return "lib"
	}
	return "bin"
}

// debugFileName appends the debug suffix to names that carry neither it nor a shared
// library suffix.
func debugFileName(name string) string {
	if strings.HasSuffix(name, debugSuffix) || strings.HasSuffix(name, ".so") {
		return name
	}
	return name + debugSuffix
}

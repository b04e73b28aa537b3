// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package vc provides buildtime information.
package vc // import "github.com/stacksym/stacksym/vc"

var (
	// The following variables are going to be set at link time using ldflags
	// and can be referenced later in the program.

	// revision of the tool
	revision = ""
	// version in vX.Y.Z{-N-abbrev} format (via git-describe --tags)
	version = ""
)

// Revision of the tool.
func Revision() string {
	return revision
}

// Version in vX.Y.Z{-N-abbrev} format.
func Version() string {
	if version == "" {
		return "dev"
	}
	return version
}

// UserAgent is sent with every outgoing HTTP request.
func UserAgent() string {
	return "stacksym/" + Version()
}

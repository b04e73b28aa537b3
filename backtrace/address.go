// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package backtrace // import "github.com/stacksym/stacksym/backtrace"

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ParseHex parses a hex encoded address with or without a 0x prefix.
func ParseHex(s string) (uint64, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if trimmed == "" {
		return 0, fmt.Errorf("empty hex value %q", s)
	}
	v, err := strconv.ParseUint(trimmed, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid hex value %q: %w", s, err)
	}
	return v, nil
}

// FormatAddr renders an address the way the symbolizer expects it.
func FormatAddr(addr uint64) string {
	return fmt.Sprintf("0x%x", addr)
}

// ComputeAddr returns the address to symbolize for a frame at offset within the
// binary described by so, loaded at frameBase.
//
// ET_DYN offsets are already relative to the binary, ET_EXEC offsets are relative
// to the load address, anything else is relative to the binary's vmaddr.
//
// The captured address is the return address, one past the call instruction. One
// byte is subtracted so that the symbolizer lands inside the call instruction. This
// also shifts genuine fault addresses, which cannot be told apart. A zero or
// overflowing address is an error.
func ComputeAddr(so *SharedObjectInfo, frameBase, offset string) (uint64, error) {
	var basis string
	switch so.ElfType {
	case ElfTypeDyn:
		basis = "0"
	case ElfTypeExec:
		basis = frameBase
	default:
		basis = so.VMAddr
		if basis == "" {
			basis = "0"
		}
	}

	base, err := ParseHex(basis)
	if err != nil {
		return 0, fmt.Errorf("address basis: %w", err)
	}
	off, err := ParseHex(offset)
	if err != nil {
		return 0, fmt.Errorf("offset: %w", err)
	}
	sum := base + off
	if sum < base {
		return 0, fmt.Errorf("address %s+%s overflows", basis, offset)
	}
	if sum == 0 {
		return 0, errors.New("address is zero, nothing to step back from")
	}
	return sum - 1, nil
}

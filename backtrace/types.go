// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package backtrace defines the data exchanged between the stages of the
// symbolization pipeline: the crash report document, the binaries loaded at crash
// time, the frames to symbolize and the symbols found for them.
package backtrace // import "github.com/stacksym/stacksym/backtrace"

import (
	"debug/elf"
	"encoding/json"
)

// ElfType is the ELF e_type of a loaded binary as reported by the crashing process.
type ElfType int

const (
	// ElfTypeExec is a fixed-address executable.
	ElfTypeExec = ElfType(elf.ET_EXEC)
	// ElfTypeDyn is a shared object or a position independent executable.
	ElfTypeDyn = ElfType(elf.ET_DYN)
)

// SharedObjectInfo describes one binary loaded into the process at crash time.
type SharedObjectInfo struct {
	// Base is the load address as a hex string. Frames refer to their binary by it.
	Base string `json:"b,omitempty"`
	// BuildID identifies the debug information belonging to the binary.
	BuildID string `json:"buildId,omitempty"`
	// ElfType selects how frame offsets are turned into addresses.
	ElfType ElfType `json:"elfType,omitempty"`
	// VMAddr is the link-time virtual address, used for neither ET_EXEC nor ET_DYN.
	VMAddr string `json:"vmaddr,omitempty"`
	// Path is where the binary was loaded from on the crashing machine.
	Path string `json:"path,omitempty"`
}

// ProcessInfo is the part of the crash report describing the process.
type ProcessInfo struct {
	SOMap []SharedObjectInfo `json:"somap"`
}

// Document is a crash report holding a backtrace. The backtrace entries are kept
// raw since their shape depends on the input format.
type Document struct {
	Backtrace   []json.RawMessage `json:"backtrace"`
	ProcessInfo ProcessInfo       `json:"processInfo"`
}

// RawFrame is a backtrace entry of the classic input format.
type RawFrame struct {
	// Base is nil when the entry carries no `b` field.
	Base   *string `json:"b"`
	Offset string  `json:"o"`
	Symbol string  `json:"s,omitempty"`
}

// SymbolInfo is one symbol reported for an address. Inlining yields several
// SymbolInfo per address.
type SymbolInfo struct {
	Function string `json:"fn"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
}

// Frame is one backtrace entry prepared for, and later enriched by, the symbolizer.
type Frame struct {
	// Path of the debug file. Empty when none could be found.
	Path    string
	BuildID string
	Offset  string
	// Addr is the address to symbolize in 0x-prefixed lowercase hex.
	Addr   string
	Symbol string
	// Symbols is nil until the frame went through a symbolizer session.
	Symbols []SymbolInfo

	// raw holds the original entry of thin input documents.
	raw map[string]json.RawMessage
}

// Resolved reports whether a debug file was found for the frame.
func (f *Frame) Resolved() bool {
	return f.Path != ""
}

// MarshalJSON renders the frame the way it is dumped by the JSON output format.
// Frames parsed from thin documents keep all of their original fields.
func (f *Frame) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(f.raw)+6)
	if f.raw != nil {
		for k, v := range f.raw {
			out[k] = v
		}
	} else {
		out["buildId"] = nullable(f.BuildID)
		out["offset"] = f.Offset
		out["addr"] = f.Addr
		out["symbol"] = nullable(f.Symbol)
	}
	out["path"] = nullable(f.Path)
	if f.Symbols != nil {
		out["symbinfo"] = f.Symbols
	}
	return json.Marshal(out)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

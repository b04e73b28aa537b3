// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package backtrace // import "github.com/stacksym/stacksym/backtrace"

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingAddr is returned for thin entries without an address.
var ErrMissingAddr = errors.New("frame has no addr field")

// thinFields are the fields of a thin backtrace entry that the pipeline reads.
type thinFields struct {
	Addr    string `json:"addr"`
	Base    string `json:"b"`
	Offset  string `json:"o"`
	Symbol  string `json:"s"`
	BuildID string `json:"buildId"`
	Path    string `json:"path"`
}

// ParseThinFrame decodes a backtrace entry of the thin input format. Thin entries
// already carry the address to symbolize along with the identity of their binary,
// which is returned as the descriptor to resolve the debug file from.
func ParseThinFrame(entry json.RawMessage) (*Frame, *SharedObjectInfo, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(entry, &raw); err != nil {
		return nil, nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	var fields thinFields
	if err := json.Unmarshal(entry, &fields); err != nil {
		return nil, nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	if fields.Addr == "" {
		return nil, nil, ErrMissingAddr
	}

	frame := &Frame{
		BuildID: fields.BuildID,
		Offset:  fields.Offset,
		Addr:    fields.Addr,
		Symbol:  fields.Symbol,
		raw:     raw,
	}
	so := &SharedObjectInfo{
		Base:    fields.Base,
		BuildID: fields.BuildID,
		Path:    fields.Path,
	}
	return frame, so, nil
}

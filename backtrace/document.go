// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package backtrace // import "github.com/stacksym/stacksym/backtrace"

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// LiveMarker starts a backtrace document embedded in a log line.
const LiveMarker = `{"backtrace":`

// maxLineSize bounds a single input line. Backtraces are logged on one line and
// the shared object map of a large process easily exceeds bufio's default.
const maxLineSize = 64 * 1024 * 1024

var (
	// ErrNoDocument is returned when the input holds no backtrace document.
	ErrNoDocument = errors.New("could not find json backtrace object in input")
	// ErrEmptyInput is returned when the input is blank.
	ErrEmptyInput = errors.New("no input provided")
)

// NewLineScanner returns a scanner splitting r into lines of up to 64MiB.
func NewLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return scanner
}

// FindDocument scans free-form text, typically a log file, for the first line
// holding a crash report with both `backtrace` and `processInfo`. Anything before
// the first `{` of a line and anything after the JSON value is ignored, so log
// line prefixes and sloppy copy-pasting are tolerated.
func FindDocument(r io.Reader) (*Document, error) {
	scanner := NewLineScanner(r)
	blank := true
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) != "" {
			blank = false
		}
		start := strings.IndexByte(line, '{')
		if start < 0 {
			continue
		}
		value, err := decodeFirst(line[start:])
		if err != nil {
			continue
		}
		if found := searchDocument(value); found != nil {
			return toDocument(found)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	if blank {
		return nil, ErrEmptyInput
	}
	return nil, ErrNoDocument
}

// SplitLiveLine splits a log line at LiveMarker into the log prefix and the
// decoded document. ok is false when the line holds no marker.
func SplitLiveLine(line string) (prefix string, doc *Document, ok bool, err error) {
	idx := strings.Index(line, LiveMarker)
	if idx < 0 {
		return "", nil, false, nil
	}
	prefix = line[:idx]
	doc = &Document{}
	dec := json.NewDecoder(strings.NewReader(line[idx:]))
	if err = dec.Decode(doc); err != nil {
		return prefix, nil, true, fmt.Errorf("failed to decode backtrace: %w", err)
	}
	return prefix, doc, true, nil
}

// decodeFirst returns the first JSON value of s, ignoring trailing data.
func decodeFirst(s string) (json.RawMessage, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

type member struct {
	key   string
	value json.RawMessage
}

// objectMembers splits a JSON object into its members in document order. ok is
// false for anything but an object.
func objectMembers(raw json.RawMessage) (members []member, ok bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, false
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		key, isKey := tok.(string)
		if !isKey {
			return nil, false
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, false
		}
		members = append(members, member{key: key, value: value})
	}
	return members, true
}

// searchDocument walks nested objects depth-first, in document order, for one that
// has both a backtrace and a processInfo key.
func searchDocument(raw json.RawMessage) json.RawMessage {
	members, ok := objectMembers(raw)
	if !ok {
		return nil
	}
	var hasBacktrace, hasProcessInfo bool
	for _, m := range members {
		switch m.key {
		case "backtrace":
			hasBacktrace = true
		case "processInfo":
			hasProcessInfo = true
		}
	}
	if hasBacktrace && hasProcessInfo {
		return raw
	}
	for _, m := range members {
		if found := searchDocument(m.value); found != nil {
			return found
		}
	}
	return nil
}

func toDocument(raw json.RawMessage) (*Document, error) {
	doc := &Document{}
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("malformed backtrace document: %w", err)
	}
	return doc, nil
}

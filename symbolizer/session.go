// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package symbolizer // import "github.com/stacksym/stacksym/symbolizer"

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/stacksym/stacksym/backtrace"
)

var (
	// ErrProtocol is returned when the symbolizer output cannot be parsed.
	ErrProtocol = errors.New("symbolizer protocol error")
	// ErrProcessExited is returned when the symbolizer output ends mid-response.
	ErrProcessExited = errors.New("symbolizer exited")
	// ErrClosed is returned for requests on a closed session.
	ErrClosed = errors.New("session closed")
	// ErrBusy is returned for requests while another one is in flight.
	ErrBusy = errors.New("session busy")
	// ErrInvalidRequest is returned for a path or address that does not fit on a
	// single request line. The session stays usable.
	ErrInvalidRequest = errors.New("invalid symbolizer request")
)

// State of a Session.
type State int

const (
	StateIdle State = iota
	StateAwaitingResponse
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingResponse:
		return "awaiting-response"
	case StateClosed:
		return "closed"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// Session is a conversation with one symbolizer process. Every request is a
// `CODE <path> <addr>` line. The symbolizer answers with zero or more pairs of a
// function line and a `file:line:column` line, terminated by a blank line.
//
// Requests are strictly sequential. Any error leaves the conversation in an unknown
// position, so the session closes itself.
type Session struct {
	proc Process
	w    *bufio.Writer
	r    *bufio.Reader

	mu    sync.Mutex
	state State

	waitOnce sync.Once
	waitErr  error
}

// NewSession starts a conversation with proc.
func NewSession(proc Process) *Session {
	return &Session{
		proc: proc,
		w:    bufio.NewWriter(proc.Stdin()),
		r:    bufio.NewReader(proc.Stdout()),
	}
}

// State returns the current state of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Symbolize asks for the symbols at addr in the debug file at path. Inlined
// functions yield several symbols, innermost first. An empty, non-nil result means
// the symbolizer knows nothing about the address.
func (s *Session) Symbolize(path, addr string) ([]backtrace.SymbolInfo, error) {
	if err := validateRequest(path, addr); err != nil {
		return nil, err
	}

	s.mu.Lock()
	switch s.state {
	case StateClosed:
		s.mu.Unlock()
		return nil, ErrClosed
	case StateAwaitingResponse:
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.state = StateAwaitingResponse
	s.mu.Unlock()

	syms, err := s.roundTrip(path, addr)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil, ErrClosed
	}
	if err != nil {
		s.state = StateClosed
		_ = s.proc.Stdin().Close()
		return nil, err
	}
	s.state = StateIdle
	return syms, nil
}

// validateRequest makes sure path and addr produce exactly one request line, which
// is answered by exactly one response block.
func validateRequest(path, addr string) error {
	if path == "" || strings.ContainsAny(path, "\r\n") {
		return fmt.Errorf("%w: path %q", ErrInvalidRequest, path)
	}
	if _, err := backtrace.ParseHex(addr); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

func (s *Session) roundTrip(path, addr string) ([]backtrace.SymbolInfo, error) {
	if _, err := fmt.Fprintf(s.w, "CODE %s %s\n", path, addr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessExited, err)
	}
	if err := s.w.Flush(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessExited, err)
	}

	syms := []backtrace.SymbolInfo{}
	for {
		fn, err := s.readLine()
		if err != nil {
			return nil, err
		}
		if fn == "" {
			return syms, nil
		}
		loc, err := s.readLine()
		if err != nil {
			return nil, err
		}
		if loc == "" {
			return nil, fmt.Errorf("%w: function %q without location", ErrProtocol, fn)
		}
		sym, err := parseLocation(loc)
		if err != nil {
			return nil, err
		}
		sym.Function = strings.TrimSpace(fn)
		syms = append(syms, sym)
	}
}

func (s *Session) readLine() (string, error) {
	line, err := s.r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
			return "", ErrProcessExited
		}
		return "", fmt.Errorf("%w: %v", ErrProcessExited, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// parseLocation splits `file:line:column` at the last two colons. File names may
// contain colons themselves.
func parseLocation(loc string) (backtrace.SymbolInfo, error) {
	loc = strings.TrimSpace(loc)
	colCut := strings.LastIndexByte(loc, ':')
	if colCut < 0 {
		return backtrace.SymbolInfo{}, fmt.Errorf("%w: malformed location %q", ErrProtocol, loc)
	}
	lineCut := strings.LastIndexByte(loc[:colCut], ':')
	if lineCut < 0 {
		return backtrace.SymbolInfo{}, fmt.Errorf("%w: malformed location %q", ErrProtocol, loc)
	}

	line, err := strconv.Atoi(loc[lineCut+1 : colCut])
	if err != nil {
		return backtrace.SymbolInfo{}, fmt.Errorf("%w: malformed line in %q", ErrProtocol, loc)
	}
	column, err := strconv.Atoi(loc[colCut+1:])
	if err != nil {
		return backtrace.SymbolInfo{}, fmt.Errorf("%w: malformed column in %q", ErrProtocol, loc)
	}
	return backtrace.SymbolInfo{
		File:   loc[:lineCut],
		Line:   line,
		Column: column,
	}, nil
}

// Close ends the conversation by closing the symbolizer's stdin and waits for the
// process to exit. It is safe to call Close more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	wasClosed := s.state == StateClosed
	s.state = StateClosed
	s.mu.Unlock()

	if !wasClosed {
		_ = s.proc.Stdin().Close()
	}
	s.waitOnce.Do(func() {
		s.waitErr = s.proc.Wait()
	})
	return s.waitErr
}

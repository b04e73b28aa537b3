// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package live

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	input := strings.Join([]string{
		"  server starting  ",
		`{"t":1,"msg":"Frame: 0x1234"}`,
		`2024-01-01 BACKTRACE: {"backtrace":[{"b":"1","o":"2"}],"processInfo":{"somap":[]}}`,
		`E: {"backtrace":[],"processInfo":{}}`,
		`W: {"backtrace": broken`,
		"done",
	}, "\n")

	var ids []string
	handler := func(_ context.Context, trace *Trace, out io.Writer) error {
		ids = append(ids, trace.Logger.Data["run"].(string))
		require.Len(t, trace.Doc.Backtrace, 1)
		_, err := fmt.Fprintln(out, " /src/a.cpp:1:2: main")
		return err
	}

	var out bytes.Buffer
	require.NoError(t, Run(context.Background(), strings.NewReader(input), &out, handler))
	assert.Equal(t, strings.Join([]string{
		"server starting",
		"2024-01-01 BACKTRACE: ",
		"Symbolizing...",
		" /src/a.cpp:1:2: main",
		"Trace is empty, skipping...",
		`W: {"backtrace": broken`,
		"done",
		"",
	}, "\n"), out.String())
	require.Len(t, ids, 1)
	assert.NotEmpty(t, ids[0])
}

func TestRunDistinctTraceIDs(t *testing.T) {
	line := `{"backtrace":[{"b":"1","o":"2"}],"processInfo":{"somap":[]}}`
	seen := map[string]bool{}
	handler := func(_ context.Context, trace *Trace, _ io.Writer) error {
		seen[trace.Logger.Data["run"].(string)] = true
		return nil
	}
	in := strings.NewReader(line + "\n" + line + "\n")
	require.NoError(t, Run(context.Background(), in, io.Discard, handler))
	assert.Len(t, seen, 2)
}

func TestRunHandlerError(t *testing.T) {
	boom := errors.New("boom")
	in := strings.NewReader(`{"backtrace":[{"b":"1","o":"2"}],"processInfo":{}}` + "\nafter\n")
	var out bytes.Buffer
	err := Run(context.Background(), in, &out, func(context.Context, *Trace, io.Writer) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.NotContains(t, out.String(), "after")
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Run(ctx, strings.NewReader("line\n"), io.Discard, nil)
	require.ErrorIs(t, err, context.Canceled)
}

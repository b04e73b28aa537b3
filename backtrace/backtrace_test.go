// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package backtrace

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHex(t *testing.T) {
	tests := map[string]struct {
		in      string
		want    uint64
		wantErr bool
	}{
		"plain":     {in: "400000", want: 0x400000},
		"prefixed":  {in: "0x10", want: 0x10},
		"uppercase": {in: "0XAbC", want: 0xabc},
		"empty":     {in: "", wantErr: true},
		"garbage":   {in: "xyz", wantErr: true},
		"only 0x":   {in: "0x", wantErr: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := ParseHex(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestComputeAddr(t *testing.T) {
	tests := map[string]struct {
		so     SharedObjectInfo
		base   string
		offset string
		want   uint64
	}{
		"ET_DYN ignores base": {
			so:     SharedObjectInfo{ElfType: ElfTypeDyn, VMAddr: "1000"},
			base:   "7f0000",
			offset: "10",
			want:   0xf,
		},
		"ET_EXEC uses frame base": {
			so:     SharedObjectInfo{ElfType: ElfTypeExec, VMAddr: "1000"},
			base:   "400000",
			offset: "10",
			want:   0x40000f,
		},
		"other uses vmaddr": {
			so:     SharedObjectInfo{ElfType: 1, VMAddr: "2000"},
			base:   "400000",
			offset: "20",
			want:   0x201f,
		},
		"missing vmaddr defaults to zero": {
			so:     SharedObjectInfo{},
			base:   "400000",
			offset: "20",
			want:   0x1f,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := ComputeAddr(&tc.so, tc.base, tc.offset)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := ComputeAddr(&SharedObjectInfo{}, "0", "zz")
	require.Error(t, err)

	_, err = ComputeAddr(&SharedObjectInfo{ElfType: ElfTypeDyn}, "400000", "0")
	require.Error(t, err, "zero address must not wrap around")
	_, err = ComputeAddr(&SharedObjectInfo{ElfType: ElfTypeExec},
		"ffffffffffffffff", "2")
	require.Error(t, err, "overflowing address must not wrap around")
}

func TestFormatAddr(t *testing.T) {
	assert.Equal(t, "0xf", FormatAddr(15))
	assert.Equal(t, "0xdeadbeef", FormatAddr(0xDEADBEEF))
}

const classicDoc = `{"backtrace":[{"b":"400000","o":"10"}],` +
	`"processInfo":{"somap":[{"b":"400000","elfType":3,"path":"/bin/x"}]}}`

func TestFindDocument(t *testing.T) {
	t.Run("log prefix and trailing garbage", func(t *testing.T) {
		input := "2024-01-01 some unrelated line\n" +
			"{not json at all\n" +
			"F  CONTROL  [conn1] " + classicDoc + " trailing junk\n"
		doc, err := FindDocument(strings.NewReader(input))
		require.NoError(t, err)
		require.Len(t, doc.Backtrace, 1)
		require.Len(t, doc.ProcessInfo.SOMap, 1)
		assert.Equal(t, SharedObjectInfo{Base: "400000", ElfType: ElfTypeDyn, Path: "/bin/x"},
			doc.ProcessInfo.SOMap[0])
	})

	t.Run("nested document", func(t *testing.T) {
		input := `{"t":{"$date":"x"},"attr":{"bt":` + classicDoc + `}}`
		doc, err := FindDocument(strings.NewReader(input))
		require.NoError(t, err)
		assert.Len(t, doc.Backtrace, 1)
	})

	t.Run("first candidate in document order", func(t *testing.T) {
		input := `{"z":{"backtrace":[{"b":"1","o":"1"}],"processInfo":{}},` +
			`"a":{"backtrace":[{"b":"1","o":"1"},{"b":"1","o":"2"}],"processInfo":{}}}`
		doc, err := FindDocument(strings.NewReader(input))
		require.NoError(t, err)
		assert.Len(t, doc.Backtrace, 1)
	})

	t.Run("no document", func(t *testing.T) {
		_, err := FindDocument(strings.NewReader(`{"backtrace":[]}` + "\nhello\n"))
		require.ErrorIs(t, err, ErrNoDocument)
	})

	t.Run("blank input", func(t *testing.T) {
		_, err := FindDocument(strings.NewReader("  \n\n"))
		require.ErrorIs(t, err, ErrEmptyInput)
	})
}

func TestSplitLiveLine(t *testing.T) {
	prefix, doc, ok, err := SplitLiveLine("prefix text " + classicDoc)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "prefix text ", prefix)
	assert.Len(t, doc.Backtrace, 1)

	_, _, ok, err = SplitLiveLine("nothing here")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, ok, err = SplitLiveLine(`x {"backtrace": [`)
	assert.True(t, ok)
	require.Error(t, err)
}

func TestParseThinFrame(t *testing.T) {
	frame, so, err := ParseThinFrame(json.RawMessage(
		`{"addr":"0x1234","buildId":"ABCD","path":"/lib/libc.so.6","C":"extra","s":"main"}`))
	require.NoError(t, err)
	assert.Equal(t, "0x1234", frame.Addr)
	assert.Equal(t, "main", frame.Symbol)
	assert.Equal(t, "ABCD", so.BuildID)
	assert.Equal(t, "/lib/libc.so.6", so.Path)

	_, _, err = ParseThinFrame(json.RawMessage(`{"b":"1"}`))
	require.ErrorIs(t, err, ErrMissingAddr)
}

func TestFrameMarshalJSON(t *testing.T) {
	t.Run("classic", func(t *testing.T) {
		f := &Frame{Offset: "10", Addr: "0xf"}
		out, err := json.Marshal(f)
		require.NoError(t, err)
		assert.JSONEq(t,
			`{"path":null,"buildId":null,"offset":"10","addr":"0xf","symbol":null}`,
			string(out))

		f.Path = "/bin/x"
		f.Symbols = []SymbolInfo{{Function: "foo", File: "a.c", Line: 10, Column: 5}}
		out, err = json.Marshal(f)
		require.NoError(t, err)
		assert.JSONEq(t, `{"path":"/bin/x","buildId":null,"offset":"10","addr":"0xf",`+
			`"symbol":null,"symbinfo":[{"fn":"foo","file":"a.c","line":10,"column":5}]}`,
			string(out))
	})

	t.Run("thin keeps raw fields", func(t *testing.T) {
		f, _, err := ParseThinFrame(json.RawMessage(`{"addr":"0x1","C":7}`))
		require.NoError(t, err)
		f.Path = "/dbg"
		f.Symbols = []SymbolInfo{}
		out, err := json.Marshal(f)
		require.NoError(t, err)
		assert.JSONEq(t, `{"addr":"0x1","C":7,"path":"/dbg","symbinfo":[]}`, string(out))
	})
}

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package resolver

import (
	"archive/tar"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArchive(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "symbols.tgz")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestUnpackArchiveStripsFirstComponent(t *testing.T) {
	archive := writeArchive(t, makeTarGz(t,
		tarEntry{name: "top/", typeflag: tar.TypeDir},
		tarEntry{name: "top/bin/mongod.debug", body: "symbols"},
		tarEntry{name: "top/README", body: "readme"},
		tarEntry{name: "top/lib/libfoo.so", body: "lib"},
		tarEntry{name: "top/lib/libfoo.so.1", typeflag: tar.TypeSymlink, linkname: "libfoo.so"},
		tarEntry{name: "top/bin/mongod.hard", typeflag: tar.TypeLink, linkname: "top/bin/mongod.debug"},
	))
	out := t.TempDir()
	require.NoError(t, unpackArchive(archive, out))

	for path, want := range map[string]string{
		"bin/mongod.debug": "symbols",
		"README":           "readme",
		"lib/libfoo.so.1":  "lib",
		"bin/mongod.hard":  "symbols",
	} {
		data, err := os.ReadFile(filepath.Join(out, path))
		require.NoError(t, err, path)
		assert.Equal(t, want, string(data), path)
	}
	_, err := os.Stat(filepath.Join(out, "top"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestUnpackArchiveRejectsEscapes(t *testing.T) {
	tests := map[string]tarEntry{
		"dot dot":       {name: "top/../../../evil", body: "x"},
		"absolute link": {name: "top/link", typeflag: tar.TypeSymlink, linkname: "/etc/passwd"},
		"relative link": {name: "top/link", typeflag: tar.TypeSymlink, linkname: "../../x"},
		"hard link":     {name: "top/link", typeflag: tar.TypeLink, linkname: "top/../../../x"},
	}
	for name, entry := range tests {
		t.Run(name, func(t *testing.T) {
			archive := writeArchive(t, makeTarGz(t, entry))
			err := unpackArchive(archive, t.TempDir())
			require.Error(t, err)
		})
	}
}

func TestStripComponent(t *testing.T) {
	for in, want := range map[string]string{
		"top/bin/mongod": "bin/mongod",
		"top/":           "",
		"top":            "",
		"/top/a":         "a",
		"./top/a/b":      "a/b",
	} {
		assert.Equal(t, want, stripComponent(in), in)
	}
}

func TestDecompressRejectsUnknown(t *testing.T) {
	_, err := decompress(strings.NewReader("plain"), false)
	require.ErrorIs(t, err, errUnknownCompression)

	r, err := decompress(strings.NewReader(""), true)
	require.NoError(t, err)
	require.NoError(t, r.Close())
}

func TestBinaryFolder(t *testing.T) {
	tests := []struct {
		goos, name, want string
	}{
		{"linux", "mongod.debug", "bin"},
		{"linux", "mongo", "bin"},
		{"linux", "libcrypto.so", "lib"},
		{"linux", "libcrypto.so.debug", "lib"},
		{"linux", "libssl.so.1.1", "lib"},
		{"darwin", "libfoo.dylib", "lib"},
		{"windows", "libfoo.so", "bin"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, binaryFolder(tc.goos, tc.name), tc.name)
	}
}

func TestDebugFileName(t *testing.T) {
	assert.Equal(t, "mongod.debug", debugFileName("mongod"))
	assert.Equal(t, "mongod.debug", debugFileName("mongod.debug"))
	assert.Equal(t, "libfoo.so", debugFileName("libfoo.so"))
}

func TestRemoveTempFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tmp.123"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "tmp.dir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc.debug"), nil, 0o644))

	found, err := RemoveTempFiles(dir, true)
	require.NoError(t, err)
	assert.Len(t, found, 2)
	_, err = os.Stat(filepath.Join(dir, "tmp.123"))
	require.NoError(t, err)

	removed, err := RemoveTempFiles(dir, false)
	require.NoError(t, err)
	assert.ElementsMatch(t, found, removed)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "abc.debug", entries[0].Name())

	removed, err = RemoveTempFiles(filepath.Join(dir, "missing"), false)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

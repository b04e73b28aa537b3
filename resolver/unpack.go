// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package resolver // import "github.com/stacksym/stacksym/resolver"

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

// unpackArchive extracts the (optionally compressed) tar archive at archivePath into
// outDir, dropping the first path component of every entry.
func unpackArchive(archivePath, outDir string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer file.Close()

	stream, err := decompress(file, true)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", archivePath, err)
	}
	defer stream.Close()

	tr := tar.NewReader(stream)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", archivePath, err)
		}

		name := stripComponent(hdr.Name)
		if name == "" {
			continue
		}
		target := filepath.Join(outDir, filepath.FromSlash(name))
		if !within(outDir, target) {
			return fmt.Errorf("archive entry %q escapes %s", hdr.Name, outDir)
		}

		if err := extractEntry(tr, hdr, outDir, target); err != nil {
			return fmt.Errorf("failed to extract %q: %w", hdr.Name, err)
		}
	}
}

func extractEntry(tr *tar.Reader, hdr *tar.Header, outDir, target string) error {
	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, 0o755)
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC,
			hdr.FileInfo().Mode().Perm())
		if err != nil {
			return err
		}
		if _, err = io.Copy(out, tr); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	case tar.TypeSymlink:
		dest := hdr.Linkname
		if !filepath.IsAbs(dest) {
			dest = filepath.Join(filepath.Dir(target), dest)
		}
		if !within(outDir, dest) {
			return fmt.Errorf("symlink to %q leaves the archive", hdr.Linkname)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return os.Symlink(hdr.Linkname, target)
	case tar.TypeLink:
		source := filepath.Join(outDir, filepath.FromSlash(stripComponent(hdr.Linkname)))
		if !within(outDir, source) {
			return fmt.Errorf("hard link to %q leaves the archive", hdr.Linkname)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return os.Link(source, target)
	default:
		log.Debugf("Skipping archive entry %s of type %c", hdr.Name, hdr.Typeflag)
		return nil
	}
}

// stripComponent removes the leading directory of an archive entry name.
func stripComponent(name string) string {
	name = path.Clean(strings.TrimPrefix(name, "/"))
	_, rest, found := strings.Cut(name, "/")
	if !found {
		return ""
	}
	return rest
}

func within(dir, target string) bool {
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

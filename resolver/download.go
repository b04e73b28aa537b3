// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package resolver // import "github.com/stacksym/stacksym/resolver"

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/stacksym/stacksym/vc"
)

const (
	// localTempPrefix marks files and directories that are still being written.
	localTempPrefix = "tmp."

	// maxErrorBodySize caps how much of an error response ends up in an error message.
	maxErrorBodySize = 1000
)

// statusError is returned when a server answers with anything but 200 OK.
type statusError struct {
	url        string
	statusCode int
	body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d from %s: %s", e.statusCode, e.url, e.body)
}

// httpGet issues a GET request and returns the body of a successful response.
// The caller must close the returned reader.
func httpGet(ctx context.Context, client *http.Client, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", vc.UserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, &statusError{
			url:        url,
			statusCode: resp.StatusCode,
			body:       strings.TrimSpace(string(body)),
		}
	}
	return resp.Body, nil
}

// isPresentLocally checks whether something exists at the given path.
func isPresentLocally(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// writeLocal streams r into finalPath. The data is first written to a temporary file
// in the same directory, so readers never observe partially written files.
func writeLocal(finalPath string, r io.Reader) error {
	file, err := os.CreateTemp(filepath.Dir(finalPath), localTempPrefix)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer file.Close()

	if _, err = io.Copy(file, r); err != nil {
		_ = os.Remove(file.Name())
		return fmt.Errorf("failed to write %s: %w", finalPath, err)
	}
	if err = commitTempFile(file, finalPath); err != nil {
		_ = os.Remove(file.Name())
		return err
	}
	return nil
}

// commitTempFile makes sure that the given file is flushed to disk, then moves it to
// its final destination.
func commitTempFile(temp *os.File, finalPath string) error {
	if err := unix.Fsync(int(temp.Fd())); err != nil {
		return fmt.Errorf("failed to fsync: %w", err)
	}
	if err := os.Rename(temp.Name(), finalPath); err != nil {
		return fmt.Errorf("failed to move file to final location: %w", err)
	}
	return nil
}

// RemoveTempFiles removes leftovers of interrupted downloads and unpack operations
// from dir and returns their paths. With dryRun set, nothing is removed.
func RemoveTempFiles(dir string, dryRun bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var removed []string
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), localTempPrefix) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		removed = append(removed, path)
		if dryRun {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", path, err)
		}
		log.Debugf("Removed %s", path)
	}
	return removed, nil
}

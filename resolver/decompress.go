// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package resolver // import "github.com/stacksym/stacksym/resolver"

import (
	"bufio"
	"bytes"
	"errors"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

	errUnknownCompression = errors.New("unknown compression format")
)

// decompress sniffs the first bytes of r and returns a reader for the decompressed
// stream. Gzip and zstd are understood. With allowPlain, streams that carry neither
// magic are passed through unchanged.
func decompress(r io.Reader, allowPlain bool) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(len(zstdMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	switch {
	case bytes.HasPrefix(magic, gzipMagic):
		return gzip.NewReader(br)
	case bytes.HasPrefix(magic, zstdMagic):
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	case allowPlain:
		return io.NopCloser(br), nil
	default:
		return nil, errUnknownCompression
	}
}

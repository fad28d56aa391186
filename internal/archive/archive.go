// Package archive locates activity files on disk and opens them,
// decompressing gzip and zstd transparently.
package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// IsActivityFile reports whether name looks like a TCX file, plain or
// compressed with gzip or zstd.
func IsActivityFile(name string) bool {
	name = strings.ToLower(name)
	for _, suffix := range []string{".tcx", ".tcx.gz", ".tcx.zst"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// ErrUnsupportedEncoding is returned by Decompress for unknown encodings.
var ErrUnsupportedEncoding = errors.New("unsupported content encoding")

// Open opens an activity file and transparently decompresses .gz and .zst.
// Closing the returned reader closes the underlying file.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	var encoding string
	switch lower := strings.ToLower(path); {
	case strings.HasSuffix(lower, ".gz"):
		encoding = "gzip"
	case strings.HasSuffix(lower, ".zst"):
		encoding = "zstd"
	}
	rc, err := Decompress(f, encoding)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rc, nil
}

// Decompress wraps rc according to an HTTP Content-Encoding value: "gzip",
// "zstd", or "" and "identity" for none. Closing the result closes rc. On
// error rc is closed.
func Decompress(rc io.ReadCloser, encoding string) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return rc, nil
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(rc)
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return &stackedReader{Reader: gz, closers: []func() error{gz.Close, rc.Close}}, nil
	case "zstd":
		zr, err := zstd.NewReader(rc)
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return &stackedReader{Reader: zr, closers: []func() error{func() error { zr.Close(); return nil }, rc.Close}}, nil
	}
	rc.Close()
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, encoding)
}

type stackedReader struct {
	io.Reader
	closers []func() error
}

func (s *stackedReader) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// FindActivityFiles walks dir and returns every activity file, sorted by path.
func FindActivityFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsActivityFile(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// ReadAll opens path and returns its decompressed content.
func ReadAll(path string) ([]byte, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

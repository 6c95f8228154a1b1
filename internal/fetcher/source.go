package fetcher

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrNoInput is returned when no source path or pattern matched a file.
var ErrNoInput = eris.New("no input files matched")

// ResolveSources expands paths and glob patterns into an ordered, de-duplicated
// list of files. Each pattern's matches are sorted; pattern order is kept.
func ResolveSources(patterns []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if !strings.ContainsAny(pattern, "*?[") {
			if info, err := os.Stat(pattern); err == nil && !info.IsDir() {
				add(pattern)
			}
			continue
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: bad pattern %q", pattern)
		}
		slices.Sort(matches)
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && !info.IsDir() {
				add(m)
			}
		}
	}

	if len(files) == 0 {
		return nil, eris.Wrapf(ErrNoInput, "searched %s", strings.Join(patterns, ", "))
	}
	return files, nil
}

// FirstExisting returns the first candidate path that exists.
func FirstExisting(candidates []string) (string, error) {
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", eris.Wrapf(ErrNoInput, "searched %s", strings.Join(candidates, ", "))
}

// OpenOptions configures Open.
type OpenOptions struct {
	// Encoding names the source charset (any WHATWG label, e.g. "windows-1252").
	// Empty means UTF-8.
	Encoding string
}

// Open opens a source for reading. ".gz" files are decompressed and ".zip"
// archives must hold exactly one file, which is streamed without extraction.
// The result is decoded to UTF-8: a leading BOM is dropped and undecodable
// bytes become U+FFFD.
func Open(path string, opts OpenOptions) (io.ReadCloser, error) {
	dec, err := decoder(opts.Encoding)
	if err != nil {
		return nil, err
	}

	var (
		r       io.Reader
		closers []io.Closer
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip":
		rc, err := OpenZIPSingle(path)
		if err != nil {
			return nil, err
		}
		r, closers = rc, []io.Closer{rc}
	case ".gz", ".gzip":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: open %s", path)
		}
		gz, err := gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, eris.Wrapf(err, "fetcher: gzip header %s", path)
		}
		r, closers = gz, []io.Closer{gz, f}
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: open %s", path)
		}
		r, closers = f, []io.Closer{f}
	}

	return &readCloser{
		Reader:  transform.NewReader(r, unicode.BOMOverride(dec)),
		closers: closers,
	}, nil
}

func decoder(name string) (transform.Transformer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return unicode.UTF8.NewDecoder(), nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: unknown encoding %q", name)
	}
	return enc.NewDecoder(), nil
}

// readCloser closes every layer of a decoded source, innermost last.
type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (rc *readCloser) Close() error {
	var first error
	for _, c := range rc.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

package sink

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/waitprep/internal/record"
)

// FileSink appends batches to a single delimited file. The header is taken
// from the first non-empty batch and written once. Each batch is encoded in
// memory and appended with one write, so the file only ever grows by whole
// batches. For .gz paths every batch is its own gzip member; readers treat
// the concatenation as one stream.
type FileSink struct {
	path    string
	f       appendFile
	gzip    bool
	header  []string
	written bool
	size    int64
	rows    int64
	// broken is set when a failed append could not be rolled back. The file
	// may end in a partial batch and every later write is refused.
	broken error
	// projections maps a source schema to header positions.
	projections map[*record.Schema][]int
}

// appendFile is the part of *os.File the sink uses.
type appendFile interface {
	io.WriteSeeker
	io.Closer
	Sync() error
	Truncate(size int64) error
}

// NewFile creates (or truncates) the file at path. Compression is inferred
// from a .gz extension.
func NewFile(path string) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "sink: create %s", dir)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, eris.Wrapf(err, "sink: open %s", path)
	}
	return &FileSink{
		path:        path,
		f:           f,
		gzip:        strings.HasSuffix(strings.ToLower(path), ".gz"),
		projections: make(map[*record.Schema][]int),
	}, nil
}

// Write appends the rows of b. Rows from a schema that differs from the
// header are projected onto it: missing columns are left empty and extra
// columns are dropped.
func (s *FileSink) Write(ctx context.Context, b *record.Batch) error {
	if b.Len() == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "sink: context cancelled")
	}
	if s.f == nil {
		return eris.Errorf("sink: %s is closed", s.path)
	}

	if s.header == nil {
		s.header = slices.Clone(b.Schema.Columns)
	}
	proj := s.projection(b.Schema)

	return s.appendChunk(func(w *csv.Writer) error {
		rec := make([]string, len(s.header))
		for _, row := range b.Rows {
			for i, src := range proj {
				rec[i] = ""
				if src >= 0 && src < len(row) {
					rec[i] = row[src].Raw
				}
			}
			if err := w.Write(rec); err != nil {
				return err
			}
		}
		return nil
	}, int64(b.Len()))
}

// WriteHeader fixes the header when nothing has been written yet and writes
// it, so an output with zero surviving rows still carries its columns.
func (s *FileSink) WriteHeader(columns []string) error {
	if s.written {
		return nil
	}
	if s.header == nil {
		s.header = slices.Clone(columns)
	}
	return s.appendChunk(func(*csv.Writer) error { return nil }, 0)
}

// appendChunk encodes one chunk (plus the header on first use) and appends
// it. A failed append truncates the file back to the last complete chunk.
func (s *FileSink) appendChunk(body func(*csv.Writer) error, rows int64) error {
	if s.broken != nil {
		return s.broken
	}

	var buf bytes.Buffer
	var gz *gzip.Writer
	w := csv.NewWriter(&buf)
	if s.gzip {
		gz = gzip.NewWriter(&buf)
		w = csv.NewWriter(gz)
	}

	if !s.written {
		if err := w.Write(s.header); err != nil {
			return eris.Wrap(err, "sink: encode header")
		}
	}
	if err := body(w); err != nil {
		return eris.Wrap(err, "sink: encode rows")
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "sink: encode rows")
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return eris.Wrap(err, "sink: gzip member")
		}
	}

	n, err := s.f.Write(buf.Bytes())
	if err == nil {
		err = s.f.Sync()
	}
	if err != nil {
		if n > 0 {
			if rerr := s.rollback(); rerr != nil {
				s.broken = eris.Wrapf(rerr, "sink: %s may hold a partial batch", s.path)
				zap.L().Error("sink: rollback failed", zap.String("path", s.path), zap.Error(rerr))
			}
		}
		return eris.Wrapf(err, "sink: append %s", s.path)
	}

	s.size += int64(n)
	s.written = true
	s.rows += rows
	return nil
}

// rollback cuts the file back to the end of the last complete chunk.
func (s *FileSink) rollback() error {
	if err := s.f.Truncate(s.size); err != nil {
		return err
	}
	_, err := s.f.Seek(s.size, io.SeekStart)
	return err
}

func (s *FileSink) projection(schema *record.Schema) []int {
	if p, ok := s.projections[schema]; ok {
		return p
	}
	p := make([]int, len(s.header))
	var missing []string
	for i, col := range s.header {
		idx, ok := schema.Index(col)
		if !ok {
			idx = -1
			missing = append(missing, col)
		}
		p[i] = idx
	}
	var extra []string
	for _, col := range schema.Columns {
		if !slices.Contains(s.header, col) {
			extra = append(extra, col)
		}
	}
	if len(missing) > 0 || len(extra) > 0 {
		zap.L().Warn("sink: schema differs from output header",
			zap.String("path", s.path),
			zap.Strings("missing", missing),
			zap.Strings("dropped", extra),
		)
	}
	s.projections[schema] = p
	return p
}

// Close closes the file. A file that never received a header is removed, so
// an output with no rows is absent rather than an empty, headerless file.
func (s *FileSink) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	if err != nil {
		return eris.Wrapf(err, "sink: close %s", s.path)
	}
	if !s.written {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return eris.Wrapf(err, "sink: remove empty %s", s.path)
		}
	}
	return nil
}

// Paths returns the output file once something has been written to it.
func (s *FileSink) Paths() []string {
	if !s.written {
		return nil
	}
	return []string{s.path}
}

// Path returns the output location.
func (s *FileSink) Path() string { return s.path }

// Rows returns the data rows written.
func (s *FileSink) Rows() int64 { return s.rows }

// Header returns the output columns, nil before the first write.
func (s *FileSink) Header() []string { return s.header }

// Package ingest turns delimited sources into bounded batches of typed rows.
package ingest

import (
	"context"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/waitprep/internal/fetcher"
	"github.com/sells-group/waitprep/internal/record"
)

// Options configures how sources are opened, parsed and batched.
type Options struct {
	BatchSize  int
	Encoding   string
	Delimiter  rune
	LazyQuotes bool
	Policy     record.Policy
}

// Stats counts what a source reader has consumed so far. Every data record
// is exactly one of good, malformed or empty.
type Stats struct {
	RowsRead  int64 `json:"rows_read" yaml:"rows_read"`
	Malformed int64 `json:"malformed" yaml:"malformed"`
	Empty     int64 `json:"empty" yaml:"empty"`
}

// Dropped returns the records that never reached a batch.
func (s Stats) Dropped() int64 { return s.Malformed + s.Empty }

// SourceReader reads one source file batch by batch. The schema is fixed by
// the header. Reopen the path to restart a source.
type SourceReader struct {
	path   string
	opts   Options
	rc     io.Closer
	csv    *fetcher.CSVReader
	schema *record.Schema
	stats  Stats
	done   bool
}

// OpenSource opens a source and reads its header.
func OpenSource(path string, opts Options) (*SourceReader, error) {
	if opts.BatchSize <= 0 {
		return nil, eris.Errorf("ingest: batch size must be positive, got %d", opts.BatchSize)
	}
	rc, err := fetcher.Open(path, fetcher.OpenOptions{Encoding: opts.Encoding})
	if err != nil {
		return nil, err
	}

	cr := fetcher.NewCSVReader(rc, fetcher.CSVOptions{
		Delimiter:  opts.Delimiter,
		LazyQuotes: opts.LazyQuotes,
	})
	header, err := cr.Header()
	if err != nil {
		_ = rc.Close()
		return nil, eris.Wrapf(err, "ingest: %s", path)
	}

	return &SourceReader{
		path:   path,
		opts:   opts,
		rc:     rc,
		csv:    cr,
		schema: opts.Policy.Schema(header),
	}, nil
}

// Path returns the source path.
func (s *SourceReader) Path() string { return s.path }

// Schema returns the source schema.
func (s *SourceReader) Schema() *record.Schema { return s.schema }

// Stats returns the running counts.
func (s *SourceReader) Stats() Stats { return s.stats }

// Next returns the next batch of up to BatchSize rows. It returns io.EOF once
// the source is exhausted. Malformed and fully empty records are counted and
// skipped; only I/O errors are returned.
func (s *SourceReader) Next(ctx context.Context) (*record.Batch, error) {
	if s.done {
		return nil, io.EOF
	}

	batch := &record.Batch{Source: s.path, Schema: s.schema}
	for len(batch.Rows) < s.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "ingest: context cancelled")
		}

		fields, err := s.csv.Read()
		if err == io.EOF {
			s.done = true
			break
		}
		if fetcher.IsMalformed(err) {
			s.stats.RowsRead++
			s.stats.Malformed++
			continue
		}
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: read %s", s.path)
		}

		s.stats.RowsRead++
		if isEmpty(fields) {
			s.stats.Empty++
			continue
		}
		batch.Rows = append(batch.Rows, record.CoerceRow(s.schema, fields))
	}

	if len(batch.Rows) == 0 && s.done {
		return nil, io.EOF
	}
	return batch, nil
}

// Close releases the source.
func (s *SourceReader) Close() error {
	if s.rc == nil {
		return nil
	}
	err := s.rc.Close()
	s.rc = nil
	return err
}

func isEmpty(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// Header opens a source only to read its column names.
func Header(path string, opts Options) ([]string, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	sr, err := OpenSource(path, opts)
	if err != nil {
		return nil, err
	}
	defer sr.Close() //nolint:errcheck
	return sr.Schema().Columns, nil
}

package ingest

import (
	"context"
	"io"

	"github.com/sells-group/waitprep/internal/record"
)

// Reader chains several sources into one lazy sequence of batches, in file
// order then row order. Each source keeps its own schema.
type Reader struct {
	paths   []string
	opts    Options
	next    int
	current *SourceReader
	stats   map[string]Stats
}

// NewReader reads the given paths in order.
func NewReader(paths []string, opts Options) *Reader {
	return &Reader{paths: paths, opts: opts, stats: make(map[string]Stats, len(paths))}
}

// Next returns the next batch from the current source, moving to the next
// source when one is exhausted. It returns io.EOF after the last source.
func (r *Reader) Next(ctx context.Context) (*record.Batch, error) {
	for {
		if r.current == nil {
			if r.next >= len(r.paths) {
				return nil, io.EOF
			}
			sr, err := OpenSource(r.paths[r.next], r.opts)
			r.next++
			if err != nil {
				return nil, err
			}
			r.current = sr
		}

		b, err := r.current.Next(ctx)
		if err == io.EOF {
			r.stats[r.current.Path()] = r.current.Stats()
			_ = r.current.Close()
			r.current = nil
			continue
		}
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

// Stats returns the counts of every fully read source.
func (r *Reader) Stats() map[string]Stats { return r.stats }

// Close releases the open source, if any.
func (r *Reader) Close() error {
	if r.current == nil {
		return nil
	}
	err := r.current.Close()
	r.current = nil
	return err
}

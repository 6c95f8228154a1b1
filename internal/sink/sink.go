// Package sink persists filtered batches as they arrive, one batch at a time.
package sink

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/waitprep/internal/record"
)

// ErrUnknownFormat is returned for an output format with no sink.
var ErrUnknownFormat = eris.New("unknown output format")

// Output formats.
const (
	FormatCSV     = "csv"
	FormatCSVGzip = "csv.gz"
	FormatParquet = "parquet"
)

// Sink receives batches in order. Empty batches are ignored. A failed Write
// leaves everything written by earlier calls intact.
type Sink interface {
	Write(ctx context.Context, b *record.Batch) error
	Close() error
	// Paths lists the files produced so far.
	Paths() []string
	// Rows is the number of data rows persisted.
	Rows() int64
}

// New opens the sink for a format under dir. Single-file formats write
// <base>.csv or <base>.csv.gz; parquet writes <base>_part-NNNNN.parquet.
func New(format, dir, base string) (Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "sink: create %s", dir)
	}
	switch format {
	case FormatCSV:
		return NewFile(filepath.Join(dir, base+".csv"))
	case FormatCSVGzip:
		return NewFile(filepath.Join(dir, base+".csv.gz"))
	case FormatParquet:
		return NewParts(dir, base)
	default:
		return nil, eris.Wrapf(ErrUnknownFormat, "sink: %q", format)
	}
}

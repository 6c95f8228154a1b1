package sink

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/compress"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/waitprep/internal/record"
)

var timestampType = &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}

// PartSink writes every batch as its own parquet file named
// <base>_part-NNNNN.parquet, numbered from 00001. A part is fully encoded
// before it is renamed into place, so completed parts are never touched by
// a later failure.
type PartSink struct {
	dir   string
	base  string
	mem   memory.Allocator
	props *parquet.WriterProperties
	next  int
	paths []string
	rows  int64
}

// NewParts prepares a part sink under dir. Parts left by an earlier run with
// the same base name are removed so a rerun yields the same file set.
func NewParts(dir, base string) (*PartSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "sink: create %s", dir)
	}
	if err := removeStaleParts(dir, base); err != nil {
		return nil, err
	}
	return &PartSink{
		dir:   dir,
		base:  base,
		mem:   memory.NewGoAllocator(),
		props: parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy)),
		next:  1,
	}, nil
}

// PartName returns the file name of part n.
func PartName(base string, n int) string {
	return fmt.Sprintf("%s_part-%05d.parquet", base, n)
}

func removeStaleParts(dir, base string) error {
	pattern := regexp.MustCompile("^" + regexp.QuoteMeta(base) + `_part-\d{5}\.parquet$`)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return eris.Wrapf(err, "sink: list %s", dir)
	}
	for _, e := range entries {
		if e.IsDir() || !pattern.MatchString(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return eris.Wrapf(err, "sink: remove stale part %s", e.Name())
		}
		zap.L().Debug("sink: removed stale part", zap.String("file", e.Name()))
	}
	return nil
}

// Write encodes b as the next part.
func (s *PartSink) Write(ctx context.Context, b *record.Batch) error {
	if b.Len() == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "sink: context cancelled")
	}

	var buf bytes.Buffer
	if err := s.encode(&buf, b); err != nil {
		return err
	}

	path := filepath.Join(s.dir, PartName(s.base, s.next))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "sink: write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "sink: rename %s", path)
	}

	s.next++
	s.paths = append(s.paths, path)
	s.rows += int64(b.Len())
	return nil
}

func (s *PartSink) encode(buf *bytes.Buffer, b *record.Batch) error {
	schema := ArrowSchema(b.Schema)
	rec := buildRecord(s.mem, schema, b)
	defer rec.Release()

	w, err := pqarrow.NewFileWriter(schema, buf, s.props, pqarrow.DefaultWriterProps())
	if err != nil {
		return eris.Wrap(err, "sink: parquet writer")
	}
	if err := w.Write(rec); err != nil {
		_ = w.Close()
		return eris.Wrap(err, "sink: parquet write")
	}
	if err := w.Close(); err != nil {
		return eris.Wrap(err, "sink: parquet close")
	}
	return nil
}

// ArrowSchema maps column kinds to nullable arrow fields.
func ArrowSchema(s *record.Schema) *arrow.Schema {
	fields := make([]arrow.Field, len(s.Columns))
	for i, col := range s.Columns {
		fields[i] = arrow.Field{Name: col, Type: arrowType(s.Kinds[i]), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

func arrowType(k record.Kind) arrow.DataType {
	switch k {
	case record.Int:
		return arrow.PrimitiveTypes.Int64
	case record.Float:
		return arrow.PrimitiveTypes.Float64
	case record.Timestamp:
		return timestampType
	default:
		return arrow.BinaryTypes.String
	}
}

func buildRecord(mem memory.Allocator, schema *arrow.Schema, b *record.Batch) arrow.Record {
	bldr := array.NewRecordBuilder(mem, schema)
	defer bldr.Release()

	for col := range schema.Fields() {
		fb := bldr.Field(col)
		for _, row := range b.Rows {
			var v record.Value
			if col < len(row) {
				v = row[col]
			}
			appendValue(fb, v)
		}
	}
	return bldr.NewRecord()
}

func appendValue(fb array.Builder, v record.Value) {
	switch bb := fb.(type) {
	case *array.StringBuilder:
		if v.IsMissing() {
			bb.AppendNull()
			return
		}
		bb.Append(v.Raw)
	case *array.Int64Builder:
		if i, ok := v.Int64(); ok {
			bb.Append(i)
			return
		}
		bb.AppendNull()
	case *array.Float64Builder:
		if f, ok := v.Float64(); ok {
			bb.Append(f)
			return
		}
		bb.AppendNull()
	case *array.TimestampBuilder:
		if t, ok := v.Time(); ok {
			bb.Append(arrow.Timestamp(t.UnixMicro()))
			return
		}
		bb.AppendNull()
	default:
		fb.AppendNull()
	}
}

// Close is a no-op; every part is complete once Write returns.
func (s *PartSink) Close() error { return nil }

// Paths returns the parts written, in order.
func (s *PartSink) Paths() []string { return s.paths }

// Rows returns the data rows written.
func (s *PartSink) Rows() int64 { return s.rows }

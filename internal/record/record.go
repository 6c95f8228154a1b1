// Package record defines loosely typed rows and the batches that carry them through the pipeline.
package record

import (
	"strconv"
	"time"
)

// Kind tags the representation held by a Value.
type Kind uint8

const (
	Missing Kind = iota
	Text
	Int
	Float
	Timestamp
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case Int:
		return "int"
	case Float:
		return "float"
	case Timestamp:
		return "timestamp"
	default:
		return "missing"
	}
}

// Value is a single cell. Raw always holds the text read from the source so
// consumers can normalize on demand without losing the original.
type Value struct {
	Kind Kind
	Raw  string
	I    int64
	F    float64
	T    time.Time
}

// MissingValue returns a missing cell that remembers its unparsable raw text.
func MissingValue(raw string) Value { return Value{Kind: Missing, Raw: raw} }

// TextValue returns a text cell.
func TextValue(s string) Value { return Value{Kind: Text, Raw: s} }

// IntValue returns an integer cell.
func IntValue(i int64) Value { return Value{Kind: Int, Raw: strconv.FormatInt(i, 10), I: i} }

// FloatValue returns a floating point cell.
func FloatValue(f float64) Value {
	return Value{Kind: Float, Raw: strconv.FormatFloat(f, 'f', -1, 64), F: f}
}

// TimeValue returns a timestamp cell rendered as RFC 3339.
func TimeValue(t time.Time) Value {
	t = t.UTC()
	return Value{Kind: Timestamp, Raw: t.Format(time.RFC3339), T: t}
}

// IsMissing reports whether the cell carries no usable value.
func (v Value) IsMissing() bool { return v.Kind == Missing }

// String returns the raw text of the cell.
func (v Value) String() string { return v.Raw }

// Int64 returns the cell as an integer when it holds a whole number.
func (v Value) Int64() (int64, bool) {
	switch v.Kind {
	case Int:
		return v.I, true
	case Float:
		if v.F == float64(int64(v.F)) {
			return int64(v.F), true
		}
	}
	return 0, false
}

// Float64 returns the cell as a float when it holds a number.
func (v Value) Float64() (float64, bool) {
	switch v.Kind {
	case Int:
		return float64(v.I), true
	case Float:
		return v.F, true
	}
	return 0, false
}

// Time returns the cell as a timestamp.
func (v Value) Time() (time.Time, bool) {
	if v.Kind == Timestamp {
		return v.T, true
	}
	return time.Time{}, false
}

// Row is an ordered set of cells aligned with a Schema.
type Row []Value

// Batch is a bounded group of rows from one source sharing one schema.
type Batch struct {
	Source string
	Schema *Schema
	Rows   []Row
}

// Len returns the number of rows in the batch.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Rows)
}

// Value returns the named cell of row i, or a missing value when the column is absent.
func (b *Batch) Value(i int, column string) Value {
	idx, ok := b.Schema.Index(column)
	if !ok || idx >= len(b.Rows[i]) {
		return Value{}
	}
	return b.Rows[i][idx]
}

// Subset returns a batch holding the rows at the given indexes, sharing the schema.
func (b *Batch) Subset(idx []int) *Batch {
	out := &Batch{Source: b.Source, Schema: b.Schema, Rows: make([]Row, 0, len(idx))}
	for _, i := range idx {
		out.Rows = append(out.Rows, b.Rows[i])
	}
	return out
}

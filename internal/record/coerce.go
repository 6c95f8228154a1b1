package record

import (
	"strconv"
	"strings"
	"time"
)

// Policy decides how each column of a source is coerced.
type Policy struct {
	// Timestamps are parsed opportunistically; failures become missing.
	Timestamps []string
	// Numerics are parsed as integers or floats; failures become missing.
	Numerics []string
	// PostalHints mark columns kept as raw text whatever else matches.
	PostalHints []string
}

// DefaultPolicy covers the wait-time extract columns.
func DefaultPolicy() Policy {
	return Policy{
		Timestamps:  []string{"activitydatetime", "dta", "dts", "dtc"},
		Numerics:    []string{"dtot", "stopcode", "year", "month", "non_va", "sta3n"},
		PostalHints: []string{"zip", "postal"},
	}
}

// IsPostal reports whether a column looks like a postal code column.
func (p Policy) IsPostal(column string) bool {
	lc := strings.ToLower(column)
	for _, h := range p.PostalHints {
		if strings.Contains(lc, h) {
			return true
		}
	}
	return false
}

// KindOf returns the declared kind for a column name.
func (p Policy) KindOf(column string) Kind {
	if p.IsPostal(column) {
		return Text
	}
	lc := strings.ToLower(column)
	for _, c := range p.Timestamps {
		if lc == c {
			return Timestamp
		}
	}
	for _, c := range p.Numerics {
		if lc == c {
			return Float
		}
	}
	return Text
}

// Schema builds a schema whose kinds follow the policy.
func (p Policy) Schema(columns []string) *Schema {
	kinds := make([]Kind, len(columns))
	for i, c := range columns {
		kinds[i] = p.KindOf(c)
	}
	return NewSchema(columns, kinds)
}

// timeLayouts are tried in order by ParseTime.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"01/02/2006",
	"1/2/2006",
}

// ParseTime parses a timestamp in any of the layouts seen in the extracts, as UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Coerce converts raw text into a value of the declared kind. Empty text and
// unparsable text both become missing; the raw text is kept either way.
func Coerce(raw string, kind Kind) Value {
	s := strings.TrimSpace(raw)
	if s == "" {
		return MissingValue(raw)
	}
	switch kind {
	case Timestamp:
		t, ok := ParseTime(s)
		if !ok {
			return MissingValue(raw)
		}
		return Value{Kind: Timestamp, Raw: raw, T: t}
	case Int, Float:
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			if kind == Float {
				return Value{Kind: Float, Raw: raw, F: float64(i)}
			}
			return Value{Kind: Int, Raw: raw, I: i}
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return MissingValue(raw)
		}
		if kind == Int {
			if f != float64(int64(f)) {
				return MissingValue(raw)
			}
			return Value{Kind: Int, Raw: raw, I: int64(f)}
		}
		return Value{Kind: Float, Raw: raw, F: f}
	default:
		return TextValue(raw)
	}
}

// CoerceRow converts a raw record into a row under the schema.
func CoerceRow(s *Schema, fields []string) Row {
	row := make(Row, len(s.Columns))
	for i := range s.Columns {
		if i < len(fields) {
			row[i] = Coerce(fields[i], s.Kinds[i])
		}
	}
	return row
}

package record

import "slices"

// Schema is the fixed column layout of one source file.
type Schema struct {
	Columns []string
	Kinds   []Kind
	index   map[string]int
}

// NewSchema builds a schema. Kinds declares the coerced type of each column; a
// short or nil slice leaves the remaining columns as text.
func NewSchema(columns []string, kinds []Kind) *Schema {
	s := &Schema{
		Columns: slices.Clone(columns),
		Kinds:   make([]Kind, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range s.Columns {
		s.Kinds[i] = Text
		if i < len(kinds) && kinds[i] != Missing {
			s.Kinds[i] = kinds[i]
		}
		// First occurrence wins for duplicated header names.
		if _, dup := s.index[c]; !dup {
			s.index[c] = i
		}
	}
	return s
}

// Index returns the position of a column.
func (s *Schema) Index(column string) (int, bool) {
	if s == nil {
		return 0, false
	}
	i, ok := s.index[column]
	return i, ok
}

// Has reports whether the schema contains a column.
func (s *Schema) Has(column string) bool {
	_, ok := s.Index(column)
	return ok
}

// Len returns the number of columns.
func (s *Schema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Columns)
}

// Kind returns the declared kind of a column.
func (s *Schema) Kind(column string) Kind {
	if i, ok := s.Index(column); ok {
		return s.Kinds[i]
	}
	return Missing
}

// Equal reports whether two schemas have the same columns in the same order.
func (s *Schema) Equal(o *Schema) bool {
	if s == nil || o == nil {
		return s == o
	}
	return slices.Equal(s.Columns, o.Columns)
}

// Extend returns a new schema with additional columns appended. Existing
// columns are not duplicated.
func (s *Schema) Extend(columns []string, kinds []Kind) *Schema {
	cols := slices.Clone(s.Columns)
	ks := slices.Clone(s.Kinds)
	for i, c := range columns {
		if s.Has(c) {
			continue
		}
		cols = append(cols, c)
		k := Text
		if i < len(kinds) {
			k = kinds[i]
		}
		ks = append(ks, k)
	}
	return NewSchema(cols, ks)
}

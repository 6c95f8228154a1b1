package clean

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/waitprep/internal/record"
)

// yearSources are consulted in order when a row has no usable year column.
var yearSources = []string{"dta", "activitydatetime", "dtc"}

// YearWindow keeps rows whose year lies in [Min, Max].
type YearWindow struct {
	Min int
	Max int
}

// NewYearWindow validates the bounds.
func NewYearWindow(lo, hi int) (YearWindow, error) {
	if lo > hi {
		return YearWindow{}, eris.Errorf("clean: year window %d-%d is inverted", lo, hi)
	}
	return YearWindow{Min: lo, Max: hi}, nil
}

// RowYear returns the year of a row: the year column when it holds a whole
// number, else the year of the first parsed timestamp among dta,
// activitydatetime and dtc.
func RowYear(s *record.Schema, row record.Row) (int, bool) {
	if i, ok := s.Index("year"); ok && i < len(row) {
		if y, ok := row[i].Int64(); ok {
			return int(y), true
		}
	}
	for _, col := range yearSources {
		if i, ok := s.Index(col); ok && i < len(row) {
			if t, ok := row[i].Time(); ok {
				return t.Year(), true
			}
		}
	}
	return 0, false
}

// Keep reports whether a row falls inside the window. Rows without a year
// are outside it.
func (w YearWindow) Keep(s *record.Schema, row record.Row) bool {
	y, ok := RowYear(s, row)
	return ok && y >= w.Min && y <= w.Max
}

// Apply returns the rows of b inside the window.
func (w YearWindow) Apply(b *record.Batch) *record.Batch {
	keep := make([]int, 0, b.Len())
	for i, row := range b.Rows {
		if w.Keep(b.Schema, row) {
			keep = append(keep, i)
		}
	}
	return b.Subset(keep)
}

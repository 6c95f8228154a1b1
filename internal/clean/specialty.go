// Package clean holds the per-row steps of the cleaning stage: the year
// window, de-duplication and the derived analytic fields.
package clean

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/waitprep/internal/fetcher"
)

// SpecialtyMap maps a clinic stop code to a lowercase specialty category.
type SpecialtyMap map[int64]string

// Category returns the category for a stop code, or "unknown".
func (m SpecialtyMap) Category(stopcode int64) string {
	if c, ok := m[stopcode]; ok {
		return c
	}
	return UnknownSpecialty
}

// UnknownSpecialty is the category of unmapped stop codes.
const UnknownSpecialty = "unknown"

// LoadSpecialtyMap reads a stopcode,specialty_category table from CSV or
// XLSX. A missing file is reported as fetcher.ErrNoInput. Rows with an
// unparsable stop code or an empty category are skipped.
func LoadSpecialtyMap(path string) (SpecialtyMap, error) {
	t, err := fetcher.ReadTable(path, fetcher.TableOptions{})
	if err != nil {
		return nil, eris.Wrapf(err, "clean: specialty map %s", path)
	}
	cols, err := t.Columns("stopcode", "specialty_category")
	if err != nil {
		return nil, eris.Wrapf(err, "clean: specialty map %s needs stopcode and specialty_category columns", path)
	}

	m := make(SpecialtyMap, len(t.Rows))
	for _, r := range t.Rows {
		code, ok := parseCode(r[cols[0]])
		cat := strings.ToLower(r[cols[1]])
		if !ok || cat == "" {
			continue
		}
		m[code] = cat
	}
	return m, nil
}

func parseCode(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}

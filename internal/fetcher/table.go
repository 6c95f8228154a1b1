package fetcher

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Table is a small reference sheet held in memory. Every row has exactly the
// header's width.
type Table struct {
	Header []string
	Rows   [][]string
}

// TableOptions selects the sheet of an XLSX table. CSV tables ignore it.
type TableOptions struct {
	Sheet string // first sheet when empty
}

// ReadTable loads a reference table from CSV (plain, gzip or zip-wrapped) or
// XLSX, chosen by extension. Cells are trimmed, blank rows are skipped and
// malformed CSV records are dropped. A missing file is ErrNoInput.
func ReadTable(path string, opts TableOptions) (*Table, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, eris.Wrapf(ErrNoInput, "table %s", path)
	}

	var rows [][]string
	var err error
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		rows, err = xlsxRows(path, opts.Sheet)
	} else {
		rows, err = csvRows(path)
	}
	if err != nil {
		return nil, err
	}

	t := &Table{}
	for _, r := range rows {
		for i := range r {
			r[i] = strings.TrimSpace(r[i])
		}
		if !slices.ContainsFunc(r, func(s string) bool { return s != "" }) {
			continue
		}
		if t.Header == nil {
			t.Header = r
			continue
		}
		row := make([]string, len(t.Header))
		copy(row, r)
		t.Rows = append(t.Rows, row)
	}
	if t.Header == nil {
		return nil, eris.Errorf("table: %s is empty", path)
	}
	return t, nil
}

// Columns returns the positions of the named columns, matched without regard
// to case.
func (t *Table) Columns(names ...string) ([]int, error) {
	idx := make([]int, len(names))
	var missing []string
	for i, name := range names {
		idx[i] = slices.IndexFunc(t.Header, func(h string) bool { return strings.EqualFold(h, name) })
		if idx[i] < 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("table: missing column %s", strings.Join(missing, ", "))
	}
	return idx, nil
}

func xlsxRows(path, sheetName string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}

	var sheet *xlsx.Sheet
	switch {
	case sheetName != "":
		s, ok := f.Sheet[sheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", sheetName)
		}
		sheet = s
	case len(f.Sheets) == 0:
		return nil, eris.Errorf("xlsx: %s has no sheets", path)
	default:
		sheet = f.Sheets[0]
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		if row == nil {
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func csvRows(path string) ([][]string, error) {
	rc, err := Open(path, OpenOptions{})
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	cr := NewCSVReader(rc, CSVOptions{LazyQuotes: true})
	header, err := cr.Header()
	if err != nil {
		return nil, eris.Wrapf(err, "table %s", path)
	}
	rows := [][]string{header}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return rows, nil
		}
		if IsMalformed(err) {
			continue
		}
		if err != nil {
			return nil, eris.Wrapf(err, "table %s", path)
		}
		rows = append(rows, rec)
	}
}

package clean

import (
	"hash"
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/sells-group/waitprep/internal/record"
)

// DedupKeys are the columns that identify a consult when present.
var DedupKeys = []string{"patientsid", "activitydatetime", "sta3n", "stopcode", "non_va", "dtot"}

// Deduper drops rows whose key was already seen, first occurrence wins. It
// keeps a 128-bit digest per distinct key, so memory grows with the number
// of distinct rows rather than their width.
type Deduper struct {
	seen    map[[16]byte]struct{}
	keys    map[*record.Schema][]int
	h       hash.Hash
	Removed int64
}

// NewDeduper returns an empty deduper.
func NewDeduper() *Deduper {
	return &Deduper{
		seen: make(map[[16]byte]struct{}),
		keys: make(map[*record.Schema][]int),
		h:    fnv.New128a(),
	}
}

// keyColumns returns the positions of the key columns present in s, or
// every column when none are.
func (d *Deduper) keyColumns(s *record.Schema) []int {
	if idx, ok := d.keys[s]; ok {
		return idx
	}
	var idx []int
	for _, c := range DedupKeys {
		if i, ok := s.Index(c); ok {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		for i := range s.Columns {
			idx = append(idx, i)
		}
	}
	d.keys[s] = idx
	return idx
}

// Apply returns the rows of b not seen before.
func (d *Deduper) Apply(b *record.Batch) *record.Batch {
	cols := d.keyColumns(b.Schema)
	keep := make([]int, 0, b.Len())
	for i, row := range b.Rows {
		key := d.digest(row, cols)
		if _, dup := d.seen[key]; dup {
			d.Removed++
			continue
		}
		d.seen[key] = struct{}{}
		keep = append(keep, i)
	}
	return b.Subset(keep)
}

func (d *Deduper) digest(row record.Row, cols []int) [16]byte {
	d.h.Reset()
	for _, c := range cols {
		var v record.Value
		if c < len(row) {
			v = row[c]
		}
		d.h.Write([]byte(keyText(v)))
		d.h.Write([]byte{0x1f})
	}
	var out [16]byte
	copy(out[:], d.h.Sum(nil))
	return out
}

// keyText renders a value so that equal numbers and instants compare equal
// whatever their source spelling.
func keyText(v record.Value) string {
	switch v.Kind {
	case record.Int, record.Float:
		f, _ := v.Float64()
		return "n" + strconv.FormatFloat(f, 'g', -1, 64)
	case record.Timestamp:
		return "t" + strconv.FormatInt(v.T.UnixNano(), 10)
	case record.Missing:
		return "m"
	default:
		return "s" + strings.TrimSpace(v.Raw)
	}
}

package filter

// Counters are the running, increment-only row counts for one source or for
// a whole run. Every row read lands in exactly one of Matched,
// OtherJurisdiction, Unrecognized or Malformed.
type Counters struct {
	RowsRead          int64 `json:"rows_read" yaml:"rows_read"`
	Matched           int64 `json:"matched" yaml:"matched"`
	OtherJurisdiction int64 `json:"other_jurisdiction" yaml:"other_jurisdiction"`
	Unrecognized      int64 `json:"unrecognized" yaml:"unrecognized"`
	Malformed         int64 `json:"malformed" yaml:"malformed"`
}

// Unmatched returns the well-formed rows that were not selected.
func (c Counters) Unmatched() int64 { return c.OtherJurisdiction + c.Unrecognized }

// AddMalformed counts rows the reader dropped before they reached a batch.
func (c *Counters) AddMalformed(n int64) {
	c.RowsRead += n
	c.Malformed += n
}

// Add accumulates o into c.
func (c *Counters) Add(o Counters) {
	c.RowsRead += o.RowsRead
	c.Matched += o.Matched
	c.OtherJurisdiction += o.OtherJurisdiction
	c.Unrecognized += o.Unrecognized
	c.Malformed += o.Malformed
}

// Balanced reports whether rows read equals matched plus unmatched plus
// malformed.
func (c Counters) Balanced() bool {
	return c.RowsRead == c.Matched+c.Unmatched()+c.Malformed
}

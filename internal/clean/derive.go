package clean

import (
	"math"

	"github.com/sells-group/waitprep/internal/jurisdiction"
	"github.com/sells-group/waitprep/internal/record"
)

// Derived column names, in output order.
const (
	ColCareSetting       = "care_setting"
	ColVeteranZIP3       = "veteran_zip3"
	ColWaitDays          = "wait_days"
	ColSpecialtyCategory = "specialty_category"
	ColMetAccessStandard = "met_access_standard"
)

// DerivedColumns lists the columns Derive appends.
var DerivedColumns = []string{
	ColCareSetting, ColVeteranZIP3, ColWaitDays, ColSpecialtyCategory, ColMetAccessStandard,
}

var derivedKinds = []record.Kind{record.Text, record.Int, record.Float, record.Text, record.Int}

// Access standards in days. Primary and mental health care must be seen
// within 20 days, everything else within 28.
const (
	primaryStandardDays = 20
	defaultStandardDays = 28
)

// Deriver computes the derived fields for rows of one input schema.
type Deriver struct {
	in, out   *record.Schema
	specialty SpecialtyMap
	outIdx    []int
	// waitFromDtot is set when the schema has dtot; otherwise wait days come
	// from dtc - dta when both exist.
	waitFromDtot bool
}

// NewDeriver prepares a deriver for rows of schema in. A nil map leaves every
// category unknown.
func NewDeriver(in *record.Schema, specialty SpecialtyMap) *Deriver {
	out := in.Extend(DerivedColumns, derivedKinds)
	d := &Deriver{in: in, out: out, specialty: specialty, waitFromDtot: in.Has("dtot")}
	for _, c := range DerivedColumns {
		i, _ := out.Index(c)
		d.outIdx = append(d.outIdx, i)
	}
	return d
}

// Schema returns the output schema.
func (d *Deriver) Schema() *record.Schema { return d.out }

// Derive returns a new row carrying the input values plus the derived
// fields. The input row is not modified.
func (d *Deriver) Derive(row record.Row) record.Row {
	out := make(record.Row, d.out.Len())
	copy(out, row)

	get := func(col string) record.Value {
		if i, ok := d.in.Index(col); ok && i < len(row) {
			return row[i]
		}
		return record.Value{}
	}

	care := "VA"
	if n, ok := get("non_va").Int64(); ok && n == 1 {
		care = "Community"
	}

	zip3 := record.MissingValue("")
	if z, ok := jurisdiction.ParseZIP(get("zip").Raw); ok {
		zip3 = record.IntValue(int64(z / 100))
	}

	wait := d.waitDays(get)

	category := UnknownSpecialty
	if code, ok := get("stopcode").Int64(); ok {
		category = d.specialty.Category(code)
	}

	met := record.MissingValue("")
	if w, ok := wait.Float64(); ok {
		limit := float64(defaultStandardDays)
		if category == "primary" || category == "mental_health" {
			limit = primaryStandardDays
		}
		met = record.IntValue(0)
		if w <= limit {
			met = record.IntValue(1)
		}
	}

	values := []record.Value{record.TextValue(care), zip3, wait, record.TextValue(category), met}
	for i, v := range values {
		out[d.outIdx[i]] = v
	}
	return out
}

func (d *Deriver) waitDays(get func(string) record.Value) record.Value {
	if d.waitFromDtot {
		if f, ok := get("dtot").Float64(); ok {
			return record.FloatValue(f)
		}
		return record.MissingValue("")
	}
	dta, okA := get("dta").Time()
	dtc, okC := get("dtc").Time()
	if !okA || !okC {
		return record.MissingValue("")
	}
	return record.FloatValue(math.Floor(dtc.Sub(dta).Hours() / 24))
}

// DeriveBatch applies Derive to every row of b.
func (d *Deriver) DeriveBatch(b *record.Batch) *record.Batch {
	out := &record.Batch{Source: b.Source, Schema: d.out, Rows: make([]record.Row, len(b.Rows))}
	for i, row := range b.Rows {
		out.Rows[i] = d.Derive(row)
	}
	return out
}

// Package filter keeps the rows of a batch whose jurisdiction is in an
// allow-list, with a postal-code proxy for sources whose jurisdiction column
// is unusable.
package filter

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/waitprep/internal/jurisdiction"
	"github.com/sells-group/waitprep/internal/record"
)

// ErrMissingColumn is returned when a batch lacks the jurisdiction column.
// A missing column is never reported as zero matches.
var ErrMissingColumn = eris.New("missing required column")

// Mode selects how jurisdiction values are compared with the allow-list.
type Mode string

const (
	// ModeNormalize maps codes, names, name tokens and FIPS codes to a code.
	ModeNormalize Mode = "normalize"
	// ModeMembership accepts exact synonyms of each allowed code only.
	ModeMembership Mode = "membership"
)

// Strategy records how the rows of a source were selected.
type Strategy string

const (
	StrategyJurisdiction Strategy = "jurisdiction-match"
	StrategyProxy        Strategy = "proxy-range"
	StrategyNone         Strategy = "none"
)

// Spec is the immutable filter rule for a run.
type Spec struct {
	Codes       []string
	Mode        Mode
	Fallback    bool
	AcceptFIPS  bool
	ProxyColumn string
}

// Filter applies a Spec to batches.
type Filter struct {
	spec   Spec
	allow  map[string]bool
	norm   jurisdiction.Normalizer
	member jurisdiction.Membership
	proxy  *jurisdiction.PostalRange
}

// New validates the rule and builds a filter. Codes may be given as codes or
// full names. The proxy range is only set up for a single target code.
func New(spec Spec) (*Filter, error) {
	if spec.Mode == "" {
		spec.Mode = ModeNormalize
	}
	if spec.Mode != ModeNormalize && spec.Mode != ModeMembership {
		return nil, eris.Errorf("filter: unknown mode %q", spec.Mode)
	}

	norm := jurisdiction.Normalizer{AcceptFIPS: spec.AcceptFIPS}
	var codes []string
	for _, c := range spec.Codes {
		if strings.TrimSpace(c) == "" {
			continue
		}
		code, ok := norm.Normalize(c)
		if !ok {
			return nil, eris.Errorf("filter: unknown jurisdiction %q", c)
		}
		if !slices.Contains(codes, code) {
			codes = append(codes, code)
		}
	}
	if len(codes) == 0 {
		return nil, eris.New("filter: no target jurisdictions")
	}
	spec.Codes = codes

	f := &Filter{
		spec:   spec,
		allow:  make(map[string]bool, len(codes)),
		norm:   norm,
		member: jurisdiction.NewMembership(codes...),
	}
	for _, c := range codes {
		f.allow[c] = true
	}
	if spec.Fallback && len(codes) == 1 && spec.ProxyColumn != "" {
		if r, ok := jurisdiction.ProxyRange(codes[0]); ok {
			f.proxy = &r
		}
	}
	return f, nil
}

// Spec returns the normalized rule.
func (f *Filter) Spec() Spec { return f.spec }

// HasProxy reports whether a source with this schema can use the proxy
// fallback.
func (f *Filter) HasProxy(schema *record.Schema) bool {
	return f.proxy != nil && schema.Has(f.spec.ProxyColumn)
}

// Apply returns the rows of b whose jurisdiction column is in the allow-list
// and adds the batch to c.
func (f *Filter) Apply(b *record.Batch, column string, c *Counters) (*record.Batch, error) {
	idx, ok := b.Schema.Index(column)
	if !ok {
		return nil, eris.Wrapf(ErrMissingColumn, "filter: column %q not in %s", column, b.Source)
	}

	keep := make([]int, 0, b.Len())
	for i, row := range b.Rows {
		raw := cell(row, idx)
		if f.matches(raw) {
			keep = append(keep, i)
			c.Matched++
		} else {
			f.countUnmatched(raw, c)
		}
		c.RowsRead++
	}
	return b.Subset(keep), nil
}

// ApplyProxy returns the rows of b whose proxy column falls in the target's
// postal range. Rows outside the range are classified by the jurisdiction
// column when the batch has one.
func (f *Filter) ApplyProxy(b *record.Batch, column string, c *Counters) (*record.Batch, error) {
	if f.proxy == nil {
		return nil, eris.New("filter: no proxy range for this rule")
	}
	pidx, ok := b.Schema.Index(f.spec.ProxyColumn)
	if !ok {
		return nil, eris.Wrapf(ErrMissingColumn, "filter: proxy column %q not in %s", f.spec.ProxyColumn, b.Source)
	}
	jidx, hasJurisdiction := b.Schema.Index(column)

	keep := make([]int, 0, b.Len())
	for i, row := range b.Rows {
		switch {
		case f.proxy.Contains(cell(row, pidx)):
			keep = append(keep, i)
			c.Matched++
		case hasJurisdiction:
			f.countUnmatched(cell(row, jidx), c)
		default:
			c.Unrecognized++
		}
		c.RowsRead++
	}
	return b.Subset(keep), nil
}

// Passthrough keeps every row. It is used when neither the jurisdiction
// match nor a proxy selected anything and the caller wants the input as is.
func (f *Filter) Passthrough(b *record.Batch, c *Counters) *record.Batch {
	n := int64(b.Len())
	c.RowsRead += n
	c.Matched += n
	return b
}

func (f *Filter) matches(raw string) bool {
	if f.spec.Mode == ModeMembership {
		return f.member.Contains(raw)
	}
	code, ok := f.norm.Normalize(raw)
	return ok && f.allow[code]
}

func (f *Filter) countUnmatched(raw string, c *Counters) {
	if _, ok := f.norm.Normalize(raw); ok {
		c.OtherJurisdiction++
		return
	}
	c.Unrecognized++
}

// Describe renders the rule for the provenance note.
func (f *Filter) Describe(column string) string {
	var b strings.Builder
	switch f.spec.Mode {
	case ModeMembership:
		syn := f.member.Synonyms()
		slices.Sort(syn)
		fmt.Fprintf(&b, "%s in {%s}", column, strings.Join(syn, ", "))
	default:
		fmt.Fprintf(&b, "normalized %s in {%s}", column, strings.Join(f.spec.Codes, ", "))
		if f.spec.AcceptFIPS {
			b.WriteString(" (codes, names and FIPS)")
		} else {
			b.WriteString(" (codes and names)")
		}
	}
	if f.proxy != nil {
		fmt.Fprintf(&b, "; fallback %s in %s when no rows match", f.spec.ProxyColumn, f.proxy)
	}
	return b.String()
}

// ChooseStrategy decides how a fully read source is selected: by its
// jurisdiction column when that matched anything, else by the proxy when
// one is usable.
func (f *Filter) ChooseStrategy(matched int64, schema *record.Schema) Strategy {
	switch {
	case matched > 0:
		return StrategyJurisdiction
	case f.HasProxy(schema):
		return StrategyProxy
	default:
		return StrategyNone
	}
}

func cell(row record.Row, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return row[idx].Raw
}

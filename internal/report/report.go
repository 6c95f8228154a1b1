// Package report writes the run summary table, the provenance note and the
// run manifest.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/waitprep/internal/filter"
)

// Metric is one row of the summary table.
type Metric struct {
	Label string
	Count int64
}

// Source is the outcome for one input file.
type Source struct {
	Path     string          `yaml:"path"`
	Column   string          `yaml:"column,omitempty"`
	Strategy filter.Strategy `yaml:"strategy,omitempty"`
	Counts   filter.Counters `yaml:"counts"`
	Error    string          `yaml:"error,omitempty"`
}

// Summary aggregates a prepare run.
type Summary struct {
	RunID      string
	Sources    []Source
	Total      filter.Counters
	FilterRule string
	Method     string
	Format     string
	Outputs    []string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Add records a finished source and folds its counts into the total.
func (s *Summary) Add(src Source) {
	s.Sources = append(s.Sources, src)
	s.Total.Add(src.Counts)
}

// StrategyCounts returns how many sources used each strategy.
func (s *Summary) StrategyCounts() map[filter.Strategy]int64 {
	out := make(map[filter.Strategy]int64)
	for _, src := range s.Sources {
		if src.Strategy != "" {
			out[src.Strategy]++
		}
	}
	return out
}

// StrategySummary renders the strategy counts in a stable order, e.g.
// "jurisdiction-match=2, proxy-range=1".
func (s *Summary) StrategySummary() string {
	counts := s.StrategyCounts()
	var parts []string
	for _, st := range []filter.Strategy{filter.StrategyJurisdiction, filter.StrategyProxy, filter.StrategyNone} {
		if n := counts[st]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", st, n))
		}
	}
	return strings.Join(parts, ", ")
}

// Failed returns the sources that could not be read.
func (s *Summary) Failed() []Source {
	var out []Source
	for _, src := range s.Sources {
		if src.Error != "" {
			out = append(out, src)
		}
	}
	return out
}

// Metrics returns the fixed summary table.
func (s *Summary) Metrics() []Metric {
	strategies := s.StrategyCounts()
	return []Metric{
		{Label: "Input files", Count: int64(len(s.Sources))},
		{Label: "Rows read", Count: s.Total.RowsRead},
		{Label: "Rows matched", Count: s.Total.Matched},
		{Label: "Rows other jurisdiction", Count: s.Total.OtherJurisdiction},
		{Label: "Rows unrecognized jurisdiction", Count: s.Total.Unrecognized},
		{Label: "Rows malformed or empty", Count: s.Total.Malformed},
		{Label: "Sources matched by jurisdiction", Count: strategies[filter.StrategyJurisdiction]},
		{Label: "Sources matched by proxy range", Count: strategies[filter.StrategyProxy]},
		{Label: "Sources with no match", Count: strategies[filter.StrategyNone]},
		{Label: "Sources failed", Count: int64(len(s.Failed()))},
	}
}

// WriteMetrics writes a two-column Metric,Count table.
func WriteMetrics(path string, metrics []Metric) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"Metric", "Count"}); err != nil {
		return eris.Wrap(err, "report: write header")
	}
	for _, m := range metrics {
		if err := w.Write([]string{m.Label, strconv.FormatInt(m.Count, 10)}); err != nil {
			return eris.Wrap(err, "report: write metric")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "report: flush")
	}
	return writeFile(path, buf.Bytes())
}

// FormatProvenance renders the plain-text provenance note.
func FormatProvenance(s *Summary) string {
	var b strings.Builder
	b.WriteString("Provenance for state subset\n")
	b.WriteString("---------------------------\n")
	fmt.Fprintf(&b, "Inputs: %d source file(s)\n", len(s.Sources))
	for _, src := range s.Sources {
		if src.Error != "" {
			fmt.Fprintf(&b, "  - %s: failed (%s)\n", src.Path, src.Error)
			continue
		}
		fmt.Fprintf(&b, "  - %s: column %s, %s, %d of %d rows kept\n",
			src.Path, src.Column, src.Strategy, src.Counts.Matched, src.Counts.RowsRead)
	}
	fmt.Fprintf(&b, "Filter: %s\n", s.FilterRule)
	if summary := s.StrategySummary(); summary != "" {
		fmt.Fprintf(&b, "Strategy: %s\n", summary)
	}
	fmt.Fprintf(&b, "Method: %s\n", s.Method)
	fmt.Fprintf(&b, "Output: %s\n", s.Format)
	for _, o := range s.Outputs {
		fmt.Fprintf(&b, "  - %s\n", filepath.Base(o))
	}
	if s.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n", s.RunID)
	}
	return b.String()
}

// WriteProvenance writes the provenance note.
func WriteProvenance(path string, s *Summary) error {
	return writeFile(path, []byte(FormatProvenance(s)))
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "report: create dir for %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "report: write %s", path)
	}
	return nil
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/waitprep/internal/clean"
	"github.com/sells-group/waitprep/internal/fetcher"
	"github.com/sells-group/waitprep/internal/filter"
	"github.com/sells-group/waitprep/internal/ingest"
	"github.com/sells-group/waitprep/internal/jurisdiction"
	"github.com/sells-group/waitprep/internal/record"
	"github.com/sells-group/waitprep/internal/report"
	"github.com/sells-group/waitprep/internal/sink"
)

// CleanOptions configures a clean run.
type CleanOptions struct {
	// Input is an explicit input path. When empty the first existing
	// Candidates entry is used.
	Input        string
	Candidates   []string
	Output       string
	SummaryPath  string
	SpecialtyMap string
	Column       string // jurisdiction column hint
	Filter       filter.Spec
	Window       clean.YearWindow
	Dedup        bool
	Ingest       ingest.Options
}

// CleanResult is the outcome of a clean run.
type CleanResult struct {
	Input        string
	Output       string
	Strategy     filter.Strategy
	Counts       filter.Counters
	AfterWindow  int64
	Duplicates   int64
	Final        int64
	RawColumns   int
	FinalColumns int
	Metrics      []report.Metric
}

// Clean filters, windows, de-duplicates and enriches the prepared subset,
// streaming batch by batch into one output file.
type Clean struct {
	opts      CleanOptions
	filter    *filter.Filter
	specialty clean.SpecialtyMap
	progress  *rate.Sometimes

	out      *sink.FileSink
	dedup    *clean.Deduper
	derivers map[*record.Schema]*clean.Deriver
	after    int64
}

// NewClean validates the filter rule.
func NewClean(opts CleanOptions) (*Clean, error) {
	f, err := filter.New(opts.Filter)
	if err != nil {
		return nil, eris.Wrap(err, "clean: filter")
	}
	return &Clean{
		opts:     opts,
		filter:   f,
		progress: &rate.Sometimes{First: 1, Interval: 10 * time.Second},
		derivers: make(map[*record.Schema]*clean.Deriver),
	}, nil
}

func (c *Clean) resolveInput() (string, error) {
	if c.opts.Input != "" {
		if _, err := os.Stat(c.opts.Input); err != nil {
			return "", eris.Wrapf(fetcher.ErrNoInput, "clean: input not found: %s", c.opts.Input)
		}
		return c.opts.Input, nil
	}
	path, err := fetcher.FirstExisting(c.opts.Candidates)
	if err != nil {
		return "", eris.Wrap(err, "clean: pass an input path")
	}
	return path, nil
}

// Run executes the clean stage. The output file is always created, holding
// only a header when no rows survive.
func (c *Clean) Run(ctx context.Context) (*CleanResult, error) {
	input, err := c.resolveInput()
	if err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("source", input))

	if c.opts.SpecialtyMap != "" {
		m, err := clean.LoadSpecialtyMap(c.opts.SpecialtyMap)
		switch {
		case errors.Is(err, fetcher.ErrNoInput):
			log.Info("clean: no specialty map found; specialty_category stays unknown (28 day standard)",
				zap.String("path", c.opts.SpecialtyMap))
		case err != nil:
			return nil, err
		default:
			c.specialty = m
			log.Info("clean: loaded specialty map", zap.Int("codes", len(m)))
		}
	}

	header, err := ingest.Header(input, c.opts.Ingest)
	if err != nil {
		return nil, eris.Wrap(err, "clean: read header")
	}
	policy := c.opts.Ingest.Policy
	rawSchema := policy.Schema(header)
	log.Info("clean: reading", zap.Int("columns", len(header)))

	column, err := jurisdiction.InferColumn(input, header, c.opts.Column)
	if err != nil {
		log.Warn("clean: no jurisdiction column, trying the postal proxy", zap.Error(err))
		column = ""
	}

	c.out, err = sink.NewFile(c.opts.Output)
	if err != nil {
		return nil, err
	}
	defer c.out.Close() //nolint:errcheck

	res := &CleanResult{Input: input, Output: c.opts.Output, RawColumns: len(header)}
	c.reset()

	if column != "" {
		var counts filter.Counters
		if err := c.pass(ctx, input, &counts, func(b *record.Batch) (*record.Batch, error) {
			return c.filter.Apply(b, column, &counts)
		}); err != nil {
			return nil, err
		}
		res.Counts = counts
		log.Info("clean: normalized jurisdiction filter", zap.Int64("matched", counts.Matched))
	}

	if res.Counts.Matched > 0 {
		res.Strategy = filter.StrategyJurisdiction
	} else {
		res.Strategy = c.filter.ChooseStrategy(0, rawSchema)
		var counts filter.Counters
		apply := func(b *record.Batch) (*record.Batch, error) {
			return c.filter.ApplyProxy(b, column, &counts)
		}
		if res.Strategy == filter.StrategyProxy {
			log.Warn("clean: no rows matched the jurisdiction, filtering by postal range",
				zap.String("column", c.filter.Spec().ProxyColumn))
		} else {
			log.Warn("clean: no usable jurisdiction filter; keeping every row")
			apply = func(b *record.Batch) (*record.Batch, error) {
				return c.filter.Passthrough(b, &counts), nil
			}
		}
		c.reset()
		if err := c.pass(ctx, input, &counts, apply); err != nil {
			return nil, err
		}
		res.Counts = counts
	}

	final := clean.NewDeriver(rawSchema, nil).Schema()
	if err := c.out.WriteHeader(final.Columns); err != nil {
		return nil, err
	}
	if err := c.out.Close(); err != nil {
		return nil, err
	}

	res.AfterWindow = c.after
	res.Duplicates = c.dedup.Removed
	res.Final = c.out.Rows()
	res.FinalColumns = len(c.out.Header())
	res.Metrics = c.metrics(res)

	if c.opts.SummaryPath != "" {
		if err := report.WriteMetrics(c.opts.SummaryPath, res.Metrics); err != nil {
			return nil, err
		}
	}

	log.Info("clean: complete",
		zap.String("strategy", string(res.Strategy)),
		zap.Int64("raw", res.Counts.RowsRead-res.Counts.Malformed),
		zap.Int64("after_window", res.AfterWindow),
		zap.Int64("duplicates", res.Duplicates),
		zap.Int64("final", res.Final),
		zap.String("output", res.Output),
	)
	return res, nil
}

// reset clears the per-pass state.
func (c *Clean) reset() {
	c.dedup = clean.NewDeduper()
	c.after = 0
}

func (c *Clean) pass(ctx context.Context, input string, counts *filter.Counters,
	apply func(*record.Batch) (*record.Batch, error),
) error {
	r := ingest.NewReader([]string{input}, c.opts.Ingest)
	defer r.Close() //nolint:errcheck

	for {
		b, err := r.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return eris.Wrap(err, "clean: read")
		}
		kept, err := apply(b)
		if err != nil {
			return err
		}
		if err := c.process(ctx, kept); err != nil {
			return err
		}
		c.progress.Do(func() {
			zap.L().Info("clean: progress",
				zap.Int64("rows_read", counts.RowsRead),
				zap.Int64("kept", c.out.Rows()),
			)
		})
	}
	for _, st := range r.Stats() {
		counts.AddMalformed(st.Dropped())
	}
	return nil
}

// process applies the year window, de-duplication and derived fields to
// the rows that passed the jurisdiction filter, then writes them.
func (c *Clean) process(ctx context.Context, b *record.Batch) error {
	if b.Len() == 0 {
		return nil
	}
	b = c.opts.Window.Apply(b)
	c.after += int64(b.Len())
	if c.opts.Dedup {
		b = c.dedup.Apply(b)
	}
	if b.Len() == 0 {
		return nil
	}

	d, ok := c.derivers[b.Schema]
	if !ok {
		d = clean.NewDeriver(b.Schema, c.specialty)
		c.derivers[b.Schema] = d
	}
	if err := c.out.Write(ctx, d.DeriveBatch(b)); err != nil {
		return &OutputError{Err: err}
	}
	return nil
}

func (c *Clean) metrics(res *CleanResult) []report.Metric {
	w := c.opts.Window
	return []report.Metric{
		{Label: "Records (raw state subset)", Count: res.Counts.RowsRead - res.Counts.Malformed},
		{Label: fmt.Sprintf("Records after %d-%d filter", w.Min, w.Max), Count: res.AfterWindow},
		{Label: "Exact duplicates removed", Count: res.Duplicates},
		{Label: "Final records (analysis-ready)", Count: res.Final},
		{Label: "Attributes (raw)", Count: int64(res.RawColumns)},
		{Label: "Attributes (analysis-ready)", Count: int64(res.FinalColumns)},
		{Label: "Malformed or empty rows dropped", Count: res.Counts.Malformed},
	}
}

// Package pipeline runs the prepare and clean stages end to end.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/waitprep/internal/fetcher"
	"github.com/sells-group/waitprep/internal/filter"
	"github.com/sells-group/waitprep/internal/ingest"
	"github.com/sells-group/waitprep/internal/jurisdiction"
	"github.com/sells-group/waitprep/internal/record"
	"github.com/sells-group/waitprep/internal/report"
	"github.com/sells-group/waitprep/internal/sink"
)

// PrepareOptions configures a prepare run.
type PrepareOptions struct {
	RunID    string
	Inputs   []string // paths or glob patterns
	Column   string   // jurisdiction column hint
	Filter   filter.Spec
	Format   string
	OutDir   string
	Basename string
	Ingest   ingest.Options
	// ProgressInterval throttles progress logs; zero uses 10s.
	ProgressInterval time.Duration
}

// PrepareResult is the outcome of a prepare run.
type PrepareResult struct {
	Summary    *report.Summary
	Outputs    []string
	Summaries  []string // summary table, provenance note and manifest
	RowsStored int64
}

// source is one resolved input with its inferred column.
type source struct {
	path   string
	column string
	err    error
}

// Prepare extracts the rows of the target jurisdictions from every input
// into one sink. Sources are drained one at a time, batch by batch.
type Prepare struct {
	opts     PrepareOptions
	filter   *filter.Filter
	sink     sink.Sink
	summary  *report.Summary
	progress *rate.Sometimes
	now      func() time.Time
}

// NewPrepare validates the filter rule.
func NewPrepare(opts PrepareOptions) (*Prepare, error) {
	f, err := filter.New(opts.Filter)
	if err != nil {
		return nil, eris.Wrap(err, "prepare: filter")
	}
	interval := opts.ProgressInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Prepare{
		opts:     opts,
		filter:   f,
		progress: &rate.Sometimes{First: 1, Interval: interval},
		now:      time.Now,
	}, nil
}

// Run executes INIT, STREAMING and FINALIZE. Fatal errors (see IsFatal) are
// returned; per-source read errors are recorded in the summary instead.
func (p *Prepare) Run(ctx context.Context) (*PrepareResult, error) {
	p.summary = &report.Summary{
		RunID:      p.opts.RunID,
		FilterRule: p.filter.Describe(p.columnLabel()),
		Method: fmt.Sprintf("Chunked read in batches of %d rows; rows are written unchanged, no transformation beyond filtering.",
			p.opts.Ingest.BatchSize),
		Format:    p.opts.Format,
		StartedAt: p.now(),
	}

	sources, err := p.init()
	if err != nil {
		return nil, err
	}

	if err := p.stream(ctx, sources); err != nil {
		_ = p.sink.Close()
		return nil, err
	}

	return p.finalize()
}

func (p *Prepare) columnLabel() string {
	if p.opts.Column != "" {
		return p.opts.Column
	}
	return "jurisdiction"
}

// init resolves sources, infers the jurisdiction column of every header and
// opens the sink. A source whose header cannot be read is skipped; a source
// without a jurisdiction column fails the run.
func (p *Prepare) init() ([]source, error) {
	paths, err := fetcher.ResolveSources(p.opts.Inputs)
	if err != nil {
		return nil, eris.Wrap(err, "prepare: resolve inputs")
	}
	zap.L().Info("prepare: resolved inputs", zap.Int("files", len(paths)))

	sources := make([]source, 0, len(paths))
	for _, path := range paths {
		header, err := ingest.Header(path, p.opts.Ingest)
		if err != nil {
			zap.L().Warn("prepare: cannot read header", zap.String("source", path), zap.Error(err))
			sources = append(sources, source{path: path, err: err})
			continue
		}
		column, err := jurisdiction.InferColumn(path, header, p.opts.Column)
		if err != nil {
			return nil, eris.Wrap(err, "prepare: inspect headers")
		}
		zap.L().Info("prepare: using jurisdiction column", zap.String("source", path), zap.String("column", column))
		sources = append(sources, source{path: path, column: column})
	}

	s, err := sink.New(p.opts.Format, p.opts.OutDir, p.opts.Basename)
	if err != nil {
		return nil, eris.Wrap(err, "prepare: open output")
	}
	p.sink = s
	return sources, nil
}

func (p *Prepare) stream(ctx context.Context, sources []source) error {
	for _, src := range sources {
		if src.err != nil {
			p.summary.Add(report.Source{Path: src.path, Error: src.err.Error()})
			continue
		}
		res, err := p.processSource(ctx, src)
		if err != nil {
			if IsFatal(err) || ctx.Err() != nil {
				return err
			}
			zap.L().Error("prepare: source failed", zap.String("source", src.path), zap.Error(err))
			res.Error = err.Error()
		}
		p.summary.Add(res)
	}
	return nil
}

// processSource filters one source by its jurisdiction column and, when that
// matched nothing, reopens it and filters by the postal proxy.
func (p *Prepare) processSource(ctx context.Context, src source) (report.Source, error) {
	log := zap.L().With(zap.String("source", src.path))
	res := report.Source{Path: src.path, Column: src.column}

	var counts filter.Counters
	schema, err := p.pass(ctx, src.path, &counts, func(b *record.Batch) (*record.Batch, error) {
		return p.filter.Apply(b, src.column, &counts)
	})
	res.Counts = counts
	if err != nil {
		return res, err
	}

	res.Strategy = p.filter.ChooseStrategy(counts.Matched, schema)
	switch res.Strategy {
	case filter.StrategyProxy:
		log.Warn("prepare: no rows matched the jurisdiction column, filtering by postal range",
			zap.String("column", p.filter.Spec().ProxyColumn))
		var proxied filter.Counters
		_, err := p.pass(ctx, src.path, &proxied, func(b *record.Batch) (*record.Batch, error) {
			return p.filter.ApplyProxy(b, src.column, &proxied)
		})
		res.Counts = proxied
		if err != nil {
			return res, err
		}
	case filter.StrategyNone:
		log.Warn("prepare: no rows matched and no proxy is available")
	}

	log.Info("prepare: source done",
		zap.String("strategy", string(res.Strategy)),
		zap.Int64("rows_read", res.Counts.RowsRead),
		zap.Int64("matched", res.Counts.Matched),
		zap.Int64("malformed", res.Counts.Malformed),
	)
	return res, nil
}

// pass drains one source through apply, writing what it keeps. It returns
// the source schema.
func (p *Prepare) pass(ctx context.Context, path string, counts *filter.Counters,
	apply func(*record.Batch) (*record.Batch, error),
) (*record.Schema, error) {
	sr, err := ingest.OpenSource(path, p.opts.Ingest)
	if err != nil {
		return nil, err
	}
	defer sr.Close() //nolint:errcheck

	for {
		b, err := sr.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return sr.Schema(), err
		}
		kept, err := apply(b)
		if err != nil {
			return sr.Schema(), err
		}
		if err := p.sink.Write(ctx, kept); err != nil {
			return sr.Schema(), &OutputError{Err: err}
		}
		p.progress.Do(func() {
			zap.L().Info("prepare: progress",
				zap.String("source", path),
				zap.Int64("rows_read", counts.RowsRead),
				zap.Int64("matched", counts.Matched),
				zap.Int64("rows_stored", p.sink.Rows()),
			)
		})
	}
	counts.AddMalformed(sr.Stats().Dropped())
	return sr.Schema(), nil
}

func (p *Prepare) finalize() (*PrepareResult, error) {
	if err := p.sink.Close(); err != nil {
		return nil, eris.Wrap(err, "prepare: close output")
	}
	p.summary.Outputs = p.sink.Paths()
	p.summary.FinishedAt = p.now()

	if p.summary.Total.Matched == 0 {
		zap.L().Warn("prepare: no rows matched any target jurisdiction; no data output written",
			zap.Strings("targets", p.filter.Spec().Codes))
	}

	base := filepath.Join(p.opts.OutDir, p.opts.Basename)
	files := []string{base + "_summary.csv", base + "_PROVENANCE.txt", base + "_manifest.yaml"}
	if err := report.WriteMetrics(files[0], p.summary.Metrics()); err != nil {
		return nil, err
	}
	if err := report.WriteProvenance(files[1], p.summary); err != nil {
		return nil, err
	}
	if err := report.WriteManifest(files[2], p.summary); err != nil {
		return nil, err
	}

	zap.L().Info("prepare: complete",
		zap.Int("inputs", len(p.summary.Sources)),
		zap.Int64("rows_read", p.summary.Total.RowsRead),
		zap.Int64("matched", p.summary.Total.Matched),
		zap.Int64("malformed", p.summary.Total.Malformed),
		zap.String("strategy", p.summary.StrategySummary()),
		zap.Strings("outputs", p.summary.Outputs),
	)

	return &PrepareResult{
		Summary:    p.summary,
		Outputs:    p.summary.Outputs,
		Summaries:  files,
		RowsStored: p.sink.Rows(),
	}, nil
}

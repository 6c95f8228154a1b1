package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sells-group/waitprep/internal/config"
	"github.com/sells-group/waitprep/internal/filter"
	"github.com/sells-group/waitprep/internal/ingest"
	"github.com/sells-group/waitprep/internal/pipeline"
	"github.com/sells-group/waitprep/internal/record"
	"github.com/sells-group/waitprep/internal/report"
	"github.com/sells-group/waitprep/internal/store"
)

var prepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Extract the target-state subset from wait-time extracts",
	Long: `Streams every input in batches, keeps the rows whose jurisdiction column names a
target state (falling back to a ZIP range when a source has no usable state values)
and writes them to one output with a summary table, provenance note and manifest.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyPrepareFlags(cmd.Flags(), cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		ledger := beginRun(ctx, cfg.Ledger, "prepare")
		defer ledger.close()

		p, err := pipeline.NewPrepare(pipeline.PrepareOptions{
			RunID:    ledger.runID,
			Inputs:   cfg.Input.Paths,
			Column:   cfg.Filter.Column,
			Filter:   filterSpec(cfg.Filter, cfg.Filter.States),
			Format:   cfg.Output.Format,
			OutDir:   cfg.Output.Dir,
			Basename: cfg.Output.Basename,
			Ingest:   ingestOptions(cfg.Input),
		})
		if err != nil {
			ledger.fail(ctx, err)
			return err
		}

		res, err := p.Run(ctx)
		if err != nil {
			ledger.fail(ctx, err)
			return eris.Wrap(err, "prepare")
		}

		s := res.Summary
		ledger.complete(ctx, store.RunResult{
			Inputs:   int64(len(s.Sources)),
			RowsRead: s.Total.RowsRead,
			RowsKept: s.Total.Matched,
			Strategy: s.StrategySummary(),
			Metrics:  metricMap(s.Metrics()),
		})

		printMetrics(os.Stdout, s.Metrics())
		for _, path := range append(res.Outputs, res.Summaries...) {
			fmt.Fprintln(os.Stdout, path)
		}
		return nil
	},
}

func init() {
	f := prepareCmd.Flags()
	f.StringSlice("input", nil, "input path or glob pattern (repeatable)")
	f.String("outdir", "", "output directory")
	f.String("basename", "", "output base name")
	f.String("to", "", "output format: csv, csv.gz or parquet")
	f.StringSlice("state", nil, "target state code, name or FIPS code (repeatable)")
	f.String("state-col", "", "jurisdiction column name; inferred when empty")
	f.Int("chunksize", 0, "rows per batch")
	f.String("encoding", "", "input character encoding")
	f.String("mode", "", "filter mode: normalize or membership")
	rootCmd.AddCommand(prepareCmd)
}

// applyPrepareFlags overrides configuration with the flags that were set.
func applyPrepareFlags(f *pflag.FlagSet, c *config.Config) {
	if f.Changed("input") {
		c.Input.Paths, _ = f.GetStringSlice("input")
	}
	if f.Changed("outdir") {
		c.Output.Dir, _ = f.GetString("outdir")
	}
	if f.Changed("basename") {
		c.Output.Basename, _ = f.GetString("basename")
	}
	if f.Changed("to") {
		c.Output.Format, _ = f.GetString("to")
	}
	if f.Changed("state") {
		c.Filter.States, _ = f.GetStringSlice("state")
	}
	if f.Changed("state-col") {
		c.Filter.Column, _ = f.GetString("state-col")
	}
	if f.Changed("chunksize") {
		c.Input.BatchSize, _ = f.GetInt("chunksize")
	}
	if f.Changed("encoding") {
		c.Input.Encoding, _ = f.GetString("encoding")
	}
	if f.Changed("mode") {
		c.Filter.Mode, _ = f.GetString("mode")
	}
}

func filterSpec(c config.FilterConfig, states []string) filter.Spec {
	return filter.Spec{
		Codes:       states,
		Mode:        filter.Mode(c.Mode),
		Fallback:    c.Fallback,
		AcceptFIPS:  c.AcceptFIPS,
		ProxyColumn: c.ProxyColumn,
	}
}

func ingestOptions(c config.InputConfig) ingest.Options {
	return ingest.Options{
		BatchSize:  c.BatchSize,
		Encoding:   c.Encoding,
		Delimiter:  c.DelimiterRune(),
		LazyQuotes: c.LazyQuotes,
		Policy:     record.DefaultPolicy(),
	}
}

func metricMap(metrics []report.Metric) map[string]any {
	m := make(map[string]any, len(metrics))
	for _, x := range metrics {
		m[x.Label] = x.Count
	}
	return m
}

// printMetrics writes a two-column metric table to w.
func printMetrics(out io.Writer, metrics []report.Metric) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "METRIC\tCOUNT")
	for _, m := range metrics {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", m.Label, m.Count)
	}
	_ = w.Flush()
}

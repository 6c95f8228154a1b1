package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sells-group/waitprep/internal/clean"
	"github.com/sells-group/waitprep/internal/config"
	"github.com/sells-group/waitprep/internal/pipeline"
	"github.com/sells-group/waitprep/internal/store"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Produce the analysis-ready dataset from the state subset",
	Long: `Re-applies the state filter, keeps rows inside the year window, drops exact
duplicates and adds care_setting, veteran_zip3, wait_days, specialty_category and
met_access_standard. Writes the cleaned file and a cleaning summary table.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		input := applyCleanFlags(cmd.Flags(), cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		window, err := clean.NewYearWindow(cfg.Clean.YearMin, cfg.Clean.YearMax)
		if err != nil {
			return err
		}

		ledger := beginRun(ctx, cfg.Ledger, "clean")
		defer ledger.close()

		c, err := pipeline.NewClean(pipeline.CleanOptions{
			Input:        input,
			Candidates:   cfg.Clean.Inputs,
			Output:       cfg.Clean.Output,
			SummaryPath:  cfg.Clean.Summary,
			SpecialtyMap: cfg.Clean.SpecialtyMap,
			Column:       cfg.Filter.Column,
			Filter:       filterSpec(cfg.Filter, []string{cfg.Clean.State}),
			Window:       window,
			Dedup:        cfg.Clean.Dedup,
			Ingest:       ingestOptions(cfg.Input),
		})
		if err != nil {
			ledger.fail(ctx, err)
			return err
		}

		res, err := c.Run(ctx)
		if err != nil {
			ledger.fail(ctx, err)
			return eris.Wrap(err, "clean")
		}

		ledger.complete(ctx, store.RunResult{
			Inputs:   1,
			RowsRead: res.Counts.RowsRead,
			RowsKept: res.Final,
			Strategy: string(res.Strategy),
			Metrics:  metricMap(res.Metrics),
		})

		printMetrics(os.Stdout, res.Metrics)
		fmt.Fprintln(os.Stdout, res.Output)
		if cfg.Clean.Summary != "" {
			fmt.Fprintln(os.Stdout, cfg.Clean.Summary)
		}
		return nil
	},
}

func init() {
	f := cleanCmd.Flags()
	f.String("input", "", "input CSV or CSV.gz; the first existing default candidate when empty")
	f.String("output", "", "cleaned output path (.csv or .csv.gz)")
	f.String("summary", "", "cleaning summary path")
	f.String("state", "", "target state")
	f.String("state-col", "", "jurisdiction column name; inferred when empty")
	f.Int("year-min", 0, "first year kept, inclusive")
	f.Int("year-max", 0, "last year kept, inclusive")
	f.Bool("no-dedup", false, "skip de-duplication")
	f.String("specialty-map", "", "stopcode to specialty table (.csv or .xlsx)")
	f.Int("chunksize", 0, "rows per batch")
	rootCmd.AddCommand(cleanCmd)
}

// applyCleanFlags overrides configuration with the flags that were set and
// returns the explicit input path, if any.
func applyCleanFlags(f *pflag.FlagSet, c *config.Config) string {
	input, _ := f.GetString("input")
	if f.Changed("output") {
		c.Clean.Output, _ = f.GetString("output")
	}
	if f.Changed("summary") {
		c.Clean.Summary, _ = f.GetString("summary")
	}
	if f.Changed("state") {
		c.Clean.State, _ = f.GetString("state")
	}
	if f.Changed("state-col") {
		c.Filter.Column, _ = f.GetString("state-col")
	}
	if f.Changed("year-min") {
		c.Clean.YearMin, _ = f.GetInt("year-min")
	}
	if f.Changed("year-max") {
		c.Clean.YearMax, _ = f.GetInt("year-max")
	}
	if noDedup, _ := f.GetBool("no-dedup"); noDedup {
		c.Clean.Dedup = false
	}
	if f.Changed("specialty-map") {
		c.Clean.SpecialtyMap, _ = f.GetString("specialty-map")
	}
	if f.Changed("chunksize") {
		c.Input.BatchSize, _ = f.GetInt("chunksize")
	}
	return input
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/waitprep/internal/fetcher"
	"github.com/sells-group/waitprep/internal/ingest"
)

var countConcurrency int

var countCmd = &cobra.Command{
	Use:   "count [path or pattern...]",
	Short: "Count data rows and columns of CSV inputs",
	Long:  "Counts data rows (excluding the header and malformed lines) and columns per file. Defaults to the prepared subset.",
	RunE: func(cmd *cobra.Command, args []string) error {
		var paths []string
		var err error
		if len(args) == 0 {
			var p string
			p, err = fetcher.FirstExisting(cfg.Clean.Inputs)
			paths = []string{p}
		} else {
			paths, err = fetcher.ResolveSources(args)
		}
		if err != nil {
			return err
		}

		results, err := countFiles(cmd.Context(), paths, ingestOptions(cfg.Input), countConcurrency)
		if err != nil {
			return err
		}
		formatCounts(os.Stdout, results)
		return nil
	},
}

func init() {
	countCmd.Flags().IntVar(&countConcurrency, "concurrency", runtime.NumCPU(), "files counted in parallel")
	rootCmd.AddCommand(countCmd)
}

// fileCount is the shape of one input file.
type fileCount struct {
	Path      string
	Rows      int64
	Columns   int
	Malformed int64
	Err       error
}

// countFiles counts every file, at most limit at a time. A file that cannot
// be read is reported in its result; only cancellation fails the call.
func countFiles(ctx context.Context, paths []string, opts ingest.Options, limit int) ([]fileCount, error) {
	results := make([]fileCount, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, path := range paths {
		g.Go(func() error {
			results[i] = countFile(gctx, path, opts)
			if results[i].Err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				zap.L().Warn("count: file failed", zap.String("source", path), zap.Error(results[i].Err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func countFile(ctx context.Context, path string, opts ingest.Options) fileCount {
	fc := fileCount{Path: path}
	sr, err := ingest.OpenSource(path, opts)
	if err != nil {
		fc.Err = err
		return fc
	}
	defer sr.Close() //nolint:errcheck

	fc.Columns = len(sr.Schema().Columns)
	for {
		b, err := sr.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			fc.Err = err
			return fc
		}
		fc.Rows += int64(b.Len())
	}
	fc.Malformed = sr.Stats().Dropped()
	return fc
}

// formatCounts writes the count table to w.
func formatCounts(out io.Writer, results []fileCount) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FILE\tROWS\tCOLUMNS\tMALFORMED")
	for _, r := range results {
		if r.Err != nil {
			_, _ = fmt.Fprintf(w, "%s\terror: %v\t\t\n", r.Path, r.Err)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", r.Path, r.Rows, r.Columns, r.Malformed)
	}
	_ = w.Flush()
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/waitprep/internal/config"
)

var (
	cfg     *config.Config
	verbose int
)

var rootCmd = &cobra.Command{
	Use:   "waitprep",
	Short: "State-subset preparation for healthcare wait-time extracts",
	Long:  "Streams large wait-time CSV extracts, keeps the rows of the target states and writes an analysis-ready subset with a summary and provenance note.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
		if verbose > 0 {
			cfg.Log.Level = "debug"
		}

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.SilenceUsage = true
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "raise the log level to debug")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

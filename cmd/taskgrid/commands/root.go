package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "taskgrid",
		Short: "TaskGrid - Task graph orchestration and optimization engine",
		Long: `TaskGrid schedules directed acyclic graphs of tasks through a
five-pass optimization pipeline and a bounded worker pool.

Features:
  - YAML graph submissions with dependency and failure policies
  - Structural and schema validation with aggregated findings
  - Critical-path reordering, deduplication, batching, and cost-based sorting
  - Three-tier priority scheduling with starvation-proof aging
  - Retry with exponential backoff and failure propagation
  - SQLite-backed run history`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newOptimizeCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskgrid/taskgrid/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		dbPath     string
		limit      int
		offset     int
		showEvents bool
	)

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Inspect archived runs",
		Long: `List archived runs from the history database, or show the unit
details of a single run when a run id is given.`,
		Example: `  # List recent runs
  taskgrid history --db taskgrid.db

  # Show one run with its units
  taskgrid history --db taskgrid.db 3f2a9c1e

  # Include archived events
  taskgrid history --db taskgrid.db --events 3f2a9c1e`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := stores.NewSQLiteStore(stores.Config{Path: dbPath})
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := store.Init(ctx); err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(ctx); err != nil {
				return err
			}

			if len(args) == 1 {
				return showRun(ctx, store, args[0], limit, offset, showEvents)
			}
			return listRuns(ctx, store, limit, offset)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "taskgrid.db", "history database path")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "entries to skip")
	cmd.Flags().BoolVar(&showEvents, "events", false, "include archived events")

	return cmd
}

func listRuns(ctx context.Context, store stores.Store, limit, offset int) error {
	runs, err := store.ListRuns(ctx, limit, offset)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	if len(runs) == 0 {
		fmt.Println("No archived runs.")
		return nil
	}

	fmt.Printf("%-36s %-20s %-10s %-20s %s\n", "RUN", "NAME", "STATUS", "STARTED", "UNITS")
	for _, run := range runs {
		fmt.Printf("%-36s %-20s %-10s %-20s %d/%d\n",
			run.ID,
			run.Name,
			run.Status,
			run.StartedAt.Format("2006-01-02 15:04:05"),
			run.Completed,
			run.TotalUnits,
		)
	}
	return nil
}

func showRun(ctx context.Context, store stores.Store, runID string, limit, offset int, showEvents bool) error {
	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	units, err := store.ListUnitsByRun(ctx, runID)
	if err != nil {
		return err
	}

	if jsonOutput {
		out := map[string]interface{}{"run": run, "units": units}
		if showEvents {
			events, err := store.ListEventsByRun(ctx, runID, limit, offset)
			if err != nil {
				return err
			}
			out["events"] = events
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("Run %s (%s): %s\n", run.ID, run.Name, run.Status)
	fmt.Printf("  started %s", run.StartedAt.Format("2006-01-02 15:04:05"))
	if run.CompletedAt != nil {
		fmt.Printf(", completed %s", run.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("\n  total %d, completed %d, failed %d, blocked %d, cancelled %d, short-circuited %d\n\n",
		run.TotalUnits, run.Completed, run.Failed, run.Blocked, run.Cancelled, run.ShortCircuited)

	for _, unit := range units {
		line := fmt.Sprintf("  %-20s %-10s %-8s retries=%d duration=%dms",
			unit.NodeID, unit.Status, unit.Type, unit.RetryCount, unit.Duration)
		if unit.FromCache {
			line += " (cached)"
		}
		if unit.Error != nil {
			line += " error=" + *unit.Error
		}
		fmt.Println(line)
	}

	if showEvents {
		events, err := store.ListEventsByRun(ctx, runID, limit, offset)
		if err != nil {
			return err
		}
		fmt.Println()
		for _, event := range events {
			node := ""
			if event.NodeID != nil {
				node = " " + *event.NodeID
			}
			fmt.Printf("  %s %-7s %-16s%s %s\n",
				event.Timestamp.Format("15:04:05.000"),
				event.Level,
				event.Type,
				node,
				event.Message,
			)
		}
	}
	return nil
}

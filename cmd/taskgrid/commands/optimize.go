package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/taskgrid/taskgrid/pkg/config"
	"github.com/taskgrid/taskgrid/pkg/engine"
)

func newOptimizeCommand() *cobra.Command {
	var (
		dotPath string
		boost   int
	)

	cmd := &cobra.Command{
		Use:   "optimize <submission>",
		Short: "Run the optimization pipeline and report the changes",
		Long: `Run the five-pass optimization pipeline over a submission and print
the optimization report without executing anything.

Passes, in order:
  1. reorder        - boost critical-path node priorities
  2. dedupe         - merge structurally equivalent nodes
  3. batch          - assign shared batch ids per level and type
  4. short_circuit  - mark cached idempotent nodes skippable
  5. cost_sort      - compute dispatch costs from the weights`,
		Example: `  # Show the optimization report
  taskgrid optimize pipeline.yaml

  # Write the optimized graph as Graphviz DOT
  taskgrid optimize --dot optimized.dot pipeline.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sub, err := config.NewParser().ParseFile(args[0])
			if err != nil {
				return err
			}
			g, err := sub.BuildGraph()
			if err != nil {
				return err
			}

			cfg := engine.DefaultPipelineConfig()
			cfg.Weights = sub.CostWeights()
			if boost >= 0 {
				cfg.CriticalPathBoost = boost
			}

			pipelineLogger := zerolog.Nop()
			if verbose {
				pipelineLogger = log.Logger
			}
			pipeline := engine.NewPipeline(cfg, pipelineLogger)

			optimized, report, err := pipeline.Optimize(cmd.Context(), g)
			if err != nil {
				return err
			}

			if dotPath != "" {
				if err := os.WriteFile(dotPath, []byte(optimized.ToDOT()), 0o644); err != nil {
					return fmt.Errorf("writing DOT file: %w", err)
				}
				log.Info().Str("path", dotPath).Msg("Wrote optimized graph")
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			printReport(report)
			return nil
		},
	}

	cmd.Flags().StringVar(&dotPath, "dot", "", "write the optimized graph as Graphviz DOT to this path")
	cmd.Flags().IntVar(&boost, "boost", -1, "critical-path priority boost (default 5)")

	return cmd
}

func printReport(report *engine.OptimizationReport) {
	fmt.Printf("Optimization finished in %s\n\n", report.Elapsed)
	fmt.Printf("  Nodes:            %d -> %d (%+d)\n", report.NodesBefore, report.NodesAfter, report.NodeDelta)
	fmt.Printf("  Edges:            %d -> %d (%+d)\n", report.EdgesBefore, report.EdgesAfter, report.EdgeDelta)
	fmt.Printf("  Critical path:    %s -> %s (%.1f%% saved)\n",
		report.DurationBefore, report.DurationAfter, report.TimeSavingsPct)
	fmt.Printf("  Estimated cost:   %.2f -> %.2f (%.1f%% saved)\n",
		report.CostBefore, report.CostAfter, report.CostSavingsPct)
	fmt.Printf("  Parallelization:  %.2f -> %.2f\n\n",
		report.ParallelizationBefore, report.ParallelizationAfter)

	for _, delta := range report.Passes {
		if delta.Empty() {
			fmt.Printf("  pass %-14s no changes\n", delta.Pass)
			continue
		}
		fmt.Printf("  pass %-14s nodes %+d, edges %+d, modified %d\n",
			delta.Pass,
			delta.NodesAdded-delta.NodesRemoved,
			delta.EdgesAdded-delta.EdgesRemoved,
			delta.NodesModified)
	}
}

package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/taskgrid/taskgrid/pkg/config"
	"github.com/taskgrid/taskgrid/pkg/engine"
)

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <submission>",
		Short: "Revalidate and reoptimize a submission on every change",
		Long: `Watch a submission file and rerun validation and the optimization
pipeline whenever it changes. Useful while authoring graph submissions:
errors and optimization effects show up as soon as the file is saved.`,
		Example: `  taskgrid watch pipeline.yaml`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return watchSubmission(cmd, args[0])
		},
	}

	return cmd
}

func watchSubmission(cmd *cobra.Command, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors replace files on save, which
	// drops a direct file watch.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	checkSubmission(path)

	ctx := cmd.Context()
	var reloadTimer *time.Timer
	reloadDelay := 300 * time.Millisecond

	log.Info().Str("path", path).Msg("Watching submission")
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			name, err := filepath.Abs(event.Name)
			if err != nil || name != target {
				continue
			}

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(reloadDelay, func() {
				checkSubmission(path)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("Watcher error")
		}
	}
}

// checkSubmission validates and optimizes a submission, printing a compact
// result line plus any findings.
func checkSubmission(path string) {
	sub, err := config.NewParser().ParseFile(path)
	if err != nil {
		fmt.Printf("[%s] parse error: %v\n", time.Now().Format("15:04:05"), err)
		return
	}
	g, err := sub.BuildGraph()
	if err != nil {
		fmt.Printf("[%s] graph error: %v\n", time.Now().Format("15:04:05"), err)
		return
	}

	report := engine.NewValidator().Validate(g)
	if !report.OK() {
		fmt.Printf("[%s] %s: %d error(s)\n", time.Now().Format("15:04:05"), sub.Name, len(report.Errors))
		printFindings(report)
		return
	}

	cfg := engine.DefaultPipelineConfig()
	cfg.Weights = sub.CostWeights()
	_, optReport, err := engine.NewPipeline(cfg, zerolog.Nop()).Optimize(context.Background(), g)
	if err != nil {
		fmt.Printf("[%s] optimize error: %v\n", time.Now().Format("15:04:05"), err)
		return
	}

	fmt.Printf("[%s] %s: ok, %d node(s), %+d after optimization, %.1f%% cost saved\n",
		time.Now().Format("15:04:05"),
		sub.Name,
		optReport.NodesBefore,
		optReport.NodeDelta,
		optReport.CostSavingsPct,
	)
}

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskgrid/taskgrid/pkg/config"
	"github.com/taskgrid/taskgrid/pkg/engine"
	"github.com/taskgrid/taskgrid/pkg/stores"
	"github.com/taskgrid/taskgrid/pkg/telemetry"
)

var allTaskTypes = []engine.TaskType{
	engine.TaskTypeCompute,
	engine.TaskTypeIO,
	engine.TaskTypeNetwork,
	engine.TaskTypeModel,
	engine.TaskTypeData,
	engine.TaskTypeGeneric,
}

func newRunCommand() *cobra.Command {
	var (
		workers     int
		retries     int
		noOptimize  bool
		dbPath      string
		simScale    float64
		metricsAddr string
		traceExport string
	)

	cmd := &cobra.Command{
		Use:   "run <submission>",
		Short: "Execute a graph submission with the simulation executor",
		Long: `Optimize and execute a graph submission.

Each node is executed by a built-in simulation executor that sleeps for a
scaled fraction of the node's estimated duration. The run is archived to the
history database when --db is set. Interrupting the process cancels the run
cooperatively.`,
		Example: `  # Run with defaults (4 workers, 3 retries)
  taskgrid run pipeline.yaml

  # Run serially without optimization, archiving history
  taskgrid run --workers 1 --no-optimize --db taskgrid.db pipeline.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmission(cmd.Context(), args[0], runOptions{
				workers:     workers,
				retries:     retries,
				noOptimize:  noOptimize,
				dbPath:      dbPath,
				simScale:    simScale,
				metricsAddr: metricsAddr,
				traceExport: traceExport,
			})
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 4, "maximum concurrent node executions")
	cmd.Flags().IntVar(&retries, "retries", 3, "maximum retries per node")
	cmd.Flags().BoolVar(&noOptimize, "no-optimize", false, "skip the optimization pipeline")
	cmd.Flags().StringVar(&dbPath, "db", "", "archive the run to this SQLite database")
	cmd.Flags().Float64Var(&simScale, "sim-scale", 0.01, "fraction of estimated duration the simulation executor sleeps")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	cmd.Flags().StringVar(&traceExport, "trace", "", "trace exporter (stdout or otlp)")

	return cmd
}

type runOptions struct {
	workers     int
	retries     int
	noOptimize  bool
	dbPath      string
	simScale    float64
	metricsAddr string
	traceExport string
}

func runSubmission(ctx context.Context, path string, opts runOptions) error {
	sub, err := config.NewParser().ParseFile(path)
	if err != nil {
		return err
	}
	g, err := sub.BuildGraph()
	if err != nil {
		return err
	}

	if !opts.noOptimize {
		pipelineLogger := zerolog.Nop()
		if verbose {
			pipelineLogger = log.Logger
		}
		cfg := engine.DefaultPipelineConfig()
		cfg.Weights = sub.CostWeights()
		optimized, report, err := engine.NewPipeline(cfg, pipelineLogger).Optimize(ctx, g)
		if err != nil {
			return err
		}
		g = optimized
		log.Info().
			Int("nodes", report.NodesAfter).
			Int("node_delta", report.NodeDelta).
			Float64("cost_savings_pct", report.CostSavingsPct).
			Msg("Graph optimized")
	}

	// Telemetry: events always, metrics only when an address is given.
	events := telemetry.NewEventPublisher(telemetry.EventsConfig{
		Enabled: true, BufferSize: 1000, EnableAsync: true,
	})
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = events.Close(closeCtx)
	}()

	var metrics *telemetry.Metrics
	if opts.metricsAddr != "" {
		metricsCfg := telemetry.MetricsConfig{Enabled: true, ListenAddress: opts.metricsAddr}
		metrics, err = telemetry.NewMetrics(metricsCfg)
		if err != nil {
			return err
		}
		if err := metrics.StartMetricsServer(ctx, metricsCfg); err != nil {
			return err
		}
	}

	var tracer *telemetry.Tracer
	if opts.traceExport != "" {
		traceCfg := telemetry.DefaultConfig()
		traceCfg.Tracing.Enabled = true
		traceCfg.Tracing.Exporter = opts.traceExport
		if err := traceCfg.Validate(); err != nil {
			return err
		}
		tracer, err = telemetry.NewTracer(ctx, traceCfg)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tracer.Shutdown(shutdownCtx)
		}()
	}

	var store *stores.SQLiteStore
	if opts.dbPath != "" {
		store, err = stores.NewSQLiteStore(stores.Config{Path: opts.dbPath})
		if err != nil {
			return err
		}
		if err := store.Init(ctx); err != nil {
			return err
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		events.Subscribe(stores.NewEventArchiver(store, log.Logger), nil)
	}

	tlog := &telemetry.Logger{Logger: log.Logger}
	orch := engine.NewOrchestrator(engine.Config{
		MaxWorkers: opts.workers,
		MaxRetries: opts.retries,
	}, log.Logger)
	orch.SetObserver(telemetry.NewObserver(tlog, metrics, events))

	sim := &simExecutor{scale: opts.simScale}
	for _, taskType := range allTaskTypes {
		if err := orch.RegisterExecutor(taskType, sim); err != nil {
			return err
		}
	}

	runID, err := orch.Submit(ctx, g)
	if err != nil {
		return err
	}

	// Translate an interrupt into a run cancellation so workers stop
	// cooperatively instead of being abandoned.
	go func() {
		<-ctx.Done()
		_ = orch.CancelRun(runID)
	}()

	var runSpan trace.Span
	if tracer != nil {
		_, runSpan = tracer.StartRunSpan(ctx, runID)
	}

	snap, err := orch.Wait(context.Background(), runID)
	if runSpan != nil {
		if err != nil || (snap != nil && snap.Status == engine.RunStatusFailed) {
			telemetry.RecordError(runSpan, fmt.Errorf("run %s did not succeed", runID))
		} else {
			telemetry.RecordSuccess(runSpan)
		}
		runSpan.End()
	}
	if err != nil {
		return err
	}

	if store != nil {
		run, units := stores.RecordsFromSnapshot(*snap, sub.Name)
		archiveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.ArchiveRun(archiveCtx, run, units); err != nil {
			log.Warn().Err(err).Msg("Failed to archive run")
		}
	}

	printRunSummary(snap)
	if snap.Status == engine.RunStatusFailed {
		return fmt.Errorf("run %s failed", runID)
	}
	return nil
}

func printRunSummary(snap *engine.RunSnapshot) {
	fmt.Printf("Run %s finished: %s\n", snap.RunID, snap.Status)
	fmt.Printf("  total %d, completed %d, failed %d, blocked %d, cancelled %d, short-circuited %d\n",
		snap.Summary.Total,
		snap.Summary.Completed,
		snap.Summary.Failed,
		snap.Summary.Blocked,
		snap.Summary.Cancelled,
		snap.Summary.ShortCircuited,
	)

	if !verbose {
		return
	}
	ids := make([]string, 0, len(snap.Units))
	for id := range snap.Units {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		unit := snap.Units[id]
		line := fmt.Sprintf("  %-20s %-10s retries=%d", unit.NodeID, unit.Status, unit.RetryCount)
		if unit.LastError != nil {
			line += " error=" + unit.LastError.Message
		}
		fmt.Println(line)
	}
}

// simExecutor simulates node work by sleeping for a scaled fraction of the
// node's estimated duration.
type simExecutor struct {
	scale float64
}

func (e *simExecutor) Execute(ctx context.Context, node *engine.TaskNode) (*engine.ExecutionResult, error) {
	started := time.Now()

	delay := time.Duration(float64(node.EstimatedDuration) * e.scale)
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	output, _ := json.Marshal(map[string]interface{}{
		"simulated": true,
		"node_id":   node.ID,
		"type":      node.Type,
	})

	completed := time.Now()
	return &engine.ExecutionResult{
		NodeID:      node.ID,
		StartedAt:   started,
		CompletedAt: completed,
		Duration:    completed.Sub(started),
		Output:      output,
	}, nil
}

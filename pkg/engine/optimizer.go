package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// CostWeights are the coefficients of the dispatch cost formula
// cost = Duration*estimated_duration + Cost*estimated_cost + Resource*resource_weight.
type CostWeights struct {
	// Duration weights the node's estimated duration in seconds.
	Duration float64 `json:"duration"`

	// Cost weights the node's estimated cost.
	Cost float64 `json:"cost"`

	// Resource weights the node's resource weight.
	Resource float64 `json:"resource"`
}

// DefaultCostWeights returns equal thirds for all three components.
func DefaultCostWeights() CostWeights {
	return CostWeights{Duration: 1.0 / 3, Cost: 1.0 / 3, Resource: 1.0 / 3}
}

// PipelineConfig configures the optimization pipeline.
type PipelineConfig struct {
	// Weights are the cost-based sorting coefficients.
	Weights CostWeights

	// CriticalPathBoost is added to the priority of every node on the
	// critical path (clamped to 10).
	CriticalPathBoost int

	// MinBatchSize is the smallest same-type group within a level that
	// receives a shared batch id.
	MinBatchSize int

	// Normalizer reduces node metadata to a canonical string for signature
	// computation. Defaults to canonical JSON.
	Normalizer MetadataNormalizer

	// Cache is the run-scoped signature cache consulted by the
	// short-circuit pass. When nil the pass marks nothing.
	Cache *SignatureCache
}

// DefaultPipelineConfig returns the default pipeline configuration.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Weights:           DefaultCostWeights(),
		CriticalPathBoost: 5,
		MinBatchSize:      2,
		Normalizer:        DefaultMetadataNormalizer,
	}
}

// Pass is one rewrite step of the optimization pipeline. A pass mutates the
// working graph in place and reports what it changed.
type Pass interface {
	// Name returns the pass name used in reports and logs.
	Name() string

	// Apply rewrites the graph and returns the change record.
	Apply(g *Graph) (PassDelta, error)
}

// PassDelta records what a single pass changed.
type PassDelta struct {
	// Pass is the pass name.
	Pass string `json:"pass"`

	// NodesAdded is the number of nodes the pass added.
	NodesAdded int `json:"nodes_added"`

	// NodesRemoved is the number of nodes the pass removed.
	NodesRemoved int `json:"nodes_removed"`

	// NodesModified is the number of nodes the pass rewrote in place.
	NodesModified int `json:"nodes_modified"`

	// EdgesAdded is the number of dependency edges the pass added.
	EdgesAdded int `json:"edges_added"`

	// EdgesRemoved is the number of dependency edges the pass removed.
	EdgesRemoved int `json:"edges_removed"`

	// MergesSkipped counts redundancy merges skipped because they would have
	// introduced a cycle.
	MergesSkipped int `json:"merges_skipped,omitempty"`
}

// Empty returns true when the pass changed nothing.
func (d PassDelta) Empty() bool {
	return d.NodesAdded == 0 && d.NodesRemoved == 0 && d.NodesModified == 0 &&
		d.EdgesAdded == 0 && d.EdgesRemoved == 0
}

// OptimizationReport summarizes a pipeline run: per-pass deltas plus
// aggregate before/after figures.
type OptimizationReport struct {
	// Passes holds one delta per pass, in application order.
	Passes []PassDelta `json:"passes"`

	// NodesBefore and NodesAfter are the graph's node counts.
	NodesBefore int `json:"nodes_before"`
	NodesAfter  int `json:"nodes_after"`

	// EdgesBefore and EdgesAfter are the graph's edge counts.
	EdgesBefore int `json:"edges_before"`
	EdgesAfter  int `json:"edges_after"`

	// NodeDelta and EdgeDelta are after minus before.
	NodeDelta int `json:"node_delta"`
	EdgeDelta int `json:"edge_delta"`

	// DurationBefore and DurationAfter are the critical-path durations, the
	// wall-clock lower bound on completion.
	DurationBefore time.Duration `json:"duration_before"`
	DurationAfter  time.Duration `json:"duration_after"`

	// CostBefore and CostAfter are the summed estimated costs.
	CostBefore float64 `json:"cost_before"`
	CostAfter  float64 `json:"cost_after"`

	// TimeSavingsPct and CostSavingsPct are percentage reductions; zero when
	// nothing improved.
	TimeSavingsPct float64 `json:"time_savings_pct"`
	CostSavingsPct float64 `json:"cost_savings_pct"`

	// ParallelizationBefore and ParallelizationAfter are the mean node counts
	// per topological level.
	ParallelizationBefore float64 `json:"parallelization_before"`
	ParallelizationAfter  float64 `json:"parallelization_after"`

	// OptimizedAt is when the pipeline ran.
	OptimizedAt time.Time `json:"optimized_at"`

	// Elapsed is how long the pipeline took.
	Elapsed time.Duration `json:"elapsed"`
}

// Pipeline applies the ordered sequence of optimization passes to a validated
// graph: reordering for parallelism, redundancy elimination, task batching,
// short-circuiting, and cost-based sorting. Each pass consumes the previous
// pass's output; the pipeline as a whole consumes a clone, so the caller's
// graph is never aliased.
type Pipeline struct {
	cfg       PipelineConfig
	validator *Validator
	logger    zerolog.Logger
	passes    []Pass
}

// NewPipeline creates an optimization pipeline with the given configuration.
func NewPipeline(cfg PipelineConfig, logger zerolog.Logger) *Pipeline {
	if cfg.Weights == (CostWeights{}) {
		cfg.Weights = DefaultCostWeights()
	}
	if cfg.CriticalPathBoost <= 0 {
		cfg.CriticalPathBoost = 5
	}
	if cfg.MinBatchSize <= 0 {
		cfg.MinBatchSize = 2
	}
	if cfg.Normalizer == nil {
		cfg.Normalizer = DefaultMetadataNormalizer
	}

	return &Pipeline{
		cfg:       cfg,
		validator: NewValidator(),
		logger:    logger.With().Str("component", "optimizer").Logger(),
		passes: []Pass{
			&reorderPass{boost: cfg.CriticalPathBoost},
			&dedupePass{normalize: cfg.Normalizer},
			&batchPass{minSize: cfg.MinBatchSize},
			&shortCircuitPass{cache: cfg.Cache, normalize: cfg.Normalizer},
			&costPass{weights: cfg.Weights},
		},
	}
}

// Optimize validates the graph, applies the five passes in order, and returns
// the rewritten graph with its report. The input graph is never mutated. A
// graph that fails validation is refused before any pass runs.
func (p *Pipeline) Optimize(ctx context.Context, g *Graph) (*Graph, *OptimizationReport, error) {
	if g == nil {
		return nil, nil, NewStructuralError("graph is nil", nil).WithCode(ErrCodeValidation)
	}

	if report := p.validator.Validate(g); !report.OK() {
		return nil, nil, report.Err()
	}

	start := time.Now()
	working := g.Clone()

	report := &OptimizationReport{
		Passes:      make([]PassDelta, 0, len(p.passes)),
		NodesBefore: working.Len(),
		EdgesBefore: working.EdgeCount(),
		CostBefore:  totalEstimatedCost(working),
		OptimizedAt: start,
	}
	_, report.DurationBefore, _ = working.CriticalPath()
	report.ParallelizationBefore = parallelizationScore(working)

	for _, pass := range p.passes {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}

		delta, err := pass.Apply(working)
		if err != nil {
			return nil, nil, err
		}
		report.Passes = append(report.Passes, delta)

		p.logger.Debug().
			Str("pass", delta.Pass).
			Int("nodes_removed", delta.NodesRemoved).
			Int("nodes_modified", delta.NodesModified).
			Int("edges_added", delta.EdgesAdded).
			Int("edges_removed", delta.EdgesRemoved).
			Msg("Pass applied")
	}

	report.NodesAfter = working.Len()
	report.EdgesAfter = working.EdgeCount()
	report.NodeDelta = report.NodesAfter - report.NodesBefore
	report.EdgeDelta = report.EdgesAfter - report.EdgesBefore
	report.CostAfter = totalEstimatedCost(working)
	_, report.DurationAfter, _ = working.CriticalPath()
	report.ParallelizationAfter = parallelizationScore(working)
	report.TimeSavingsPct = savingsPct(report.DurationBefore.Seconds(), report.DurationAfter.Seconds())
	report.CostSavingsPct = savingsPct(report.CostBefore, report.CostAfter)
	report.Elapsed = time.Since(start)

	p.logger.Info().
		Int("node_delta", report.NodeDelta).
		Int("edge_delta", report.EdgeDelta).
		Float64("time_savings_pct", report.TimeSavingsPct).
		Float64("cost_savings_pct", report.CostSavingsPct).
		Float64("parallelization_after", report.ParallelizationAfter).
		Dur("elapsed", report.Elapsed).
		Msg("Optimization complete")

	return working, report, nil
}

// parallelizationScore is the mean number of nodes per topological level.
func parallelizationScore(g *Graph) float64 {
	levels, err := g.Levels()
	if err != nil || len(levels) == 0 {
		return 0
	}
	return float64(g.Len()) / float64(len(levels))
}

// totalEstimatedCost sums the estimated cost over all nodes.
func totalEstimatedCost(g *Graph) float64 {
	total := 0.0
	for _, id := range g.NodeIDs() {
		total += g.Node(id).EstimatedCost
	}
	return total
}

// savingsPct returns the percentage reduction from before to after.
func savingsPct(before, after float64) float64 {
	if before <= 0 || after >= before {
		return 0
	}
	return (before - after) / before * 100
}

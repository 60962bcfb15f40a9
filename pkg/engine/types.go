package engine

import (
	"encoding/json"
	"time"
)

// TaskNode is an executable unit of work in a task graph.
//
// Estimated duration and cost are caller-supplied figures used only by the
// optimization heuristics, never for correctness. Metadata is an opaque bag
// preserved through every transformation and never interpreted by the engine.
type TaskNode struct {
	// ID is the unique, stable identifier for this node.
	ID string `json:"id" validate:"required"`

	// Type categorizes the node and selects its executor.
	Type TaskType `json:"type" validate:"oneof=compute io network model data generic"`

	// Dependencies lists the edges into this node: every referenced node must
	// reach COMPLETED (or be short-circuited) before this node is ready.
	Dependencies []Dependency `json:"dependencies,omitempty"`

	// Priority orders dispatch within a readiness tier; higher dispatches
	// sooner. Must be in [0,10].
	Priority int `json:"priority" validate:"gte=0,lte=10"`

	// EstimatedDuration is the caller's duration estimate.
	EstimatedDuration time.Duration `json:"estimated_duration" validate:"gte=0"`

	// EstimatedCost is the caller's cost estimate.
	EstimatedCost float64 `json:"estimated_cost" validate:"gte=0"`

	// ResourceWeight is an abstract combined CPU/memory/IO scalar used in
	// cost-based ordering.
	ResourceWeight float64 `json:"resource_weight" validate:"gte=0"`

	// Cacheable marks the node's result as reusable for an equivalent node.
	Cacheable bool `json:"cacheable,omitempty"`

	// Idempotent marks the node as safe to skip when an equivalent result
	// exists. Short-circuiting requires both Cacheable and Idempotent.
	Idempotent bool `json:"idempotent,omitempty"`

	// BatchID is assigned by the batching pass; absent on input.
	BatchID string `json:"batch_id,omitempty"`

	// Skippable is set by the short-circuit pass when an equivalent signature
	// already completed in the current run.
	Skippable bool `json:"skippable,omitempty"`

	// DispatchCost is computed by the cost-based sorting pass and used as the
	// secondary dispatch key after priority.
	DispatchCost float64 `json:"dispatch_cost,omitempty"`

	// Metadata is an opaque key-value bag preserved through transformations.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// DependencyIDs returns the ids of the nodes this node depends on.
func (n *TaskNode) DependencyIDs() []string {
	ids := make([]string, 0, len(n.Dependencies))
	for _, dep := range n.Dependencies {
		ids = append(ids, dep.NodeID)
	}
	return ids
}

// dependsOn reports whether the node has a direct edge from nodeID.
func (n *TaskNode) dependsOn(nodeID string) bool {
	for _, dep := range n.Dependencies {
		if dep.NodeID == nodeID {
			return true
		}
	}
	return false
}

// Dependency represents an edge in the task graph: the owning node depends on
// NodeID having completed.
type Dependency struct {
	// NodeID is the id of the node that must complete first.
	NodeID string `json:"node_id"`

	// OnFailure controls what happens to the owning node when NodeID fails
	// permanently.
	OnFailure FailurePolicy `json:"on_failure,omitempty"`
}

// FailurePolicy controls failure propagation across an edge.
type FailurePolicy string

const (
	// FailurePolicyBlock marks the dependent BLOCKED when the dependency
	// fails permanently. This is the default.
	FailurePolicyBlock FailurePolicy = "block"

	// FailurePolicyContinue lets the dependent become READY once its other
	// dependencies are satisfied, despite the failed dependency.
	FailurePolicyContinue FailurePolicy = "continue"
)

// Validate checks if the failure policy is valid.
func (p FailurePolicy) Validate() error {
	switch p {
	case FailurePolicyBlock, FailurePolicyContinue, "":
		return nil
	default:
		return NewSchemaError("invalid failure policy: "+string(p), nil).
			WithCode(ErrCodeFieldRange)
	}
}

// ExecutionResult is the outcome of executing a single node.
type ExecutionResult struct {
	// NodeID is the node this result belongs to.
	NodeID string `json:"node_id"`

	// StartedAt is when execution started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when execution completed.
	CompletedAt time.Time `json:"completed_at"`

	// Duration is the total execution time.
	Duration time.Duration `json:"duration"`

	// Output contains the executor's output, if any.
	Output json.RawMessage `json:"output,omitempty"`

	// FromCache is true when the result was served by short-circuiting
	// rather than executed.
	FromCache bool `json:"from_cache,omitempty"`
}

// OrchestrationUnit is the runtime wrapper around a TaskNode during execution.
// The orchestrator exclusively owns unit lifecycle; callers observe units
// through snapshots.
type OrchestrationUnit struct {
	// NodeID identifies the wrapped task node.
	NodeID string `json:"node_id"`

	// Status is the current lifecycle state.
	Status UnitStatus `json:"status"`

	// RetryCount is the number of failed execution attempts so far.
	RetryCount int `json:"retry_count"`

	// LastError is the most recent execution error, if any.
	LastError *EngineError `json:"last_error,omitempty"`

	// SubmissionTime is when the unit entered the orchestrator. Aging in the
	// ready queue is measured from this point.
	SubmissionTime time.Time `json:"submission_time"`

	// DispatchTime is when the unit was last dispatched to a worker.
	DispatchTime time.Time `json:"dispatch_time,omitempty"`

	// Result is set once the unit completes.
	Result *ExecutionResult `json:"result,omitempty"`

	node *TaskNode

	// promotedAt is the aging watermark: each tier promotion requires a full
	// threshold measured from here.
	promotedAt time.Time

	// tier is the unit's current readiness tier.
	tier Tier

	// cancelRequested marks a running unit whose worker has been signalled
	// to stop.
	cancelRequested bool

	// cancel stops the worker context for a running unit.
	cancel func()
}

// Snapshot returns a copy of the unit's observable state.
func (u *OrchestrationUnit) Snapshot() UnitSnapshot {
	snap := UnitSnapshot{
		NodeID:         u.NodeID,
		Status:         u.Status,
		RetryCount:     u.RetryCount,
		SubmissionTime: u.SubmissionTime,
		DispatchTime:   u.DispatchTime,
	}
	if u.node != nil {
		snap.Type = u.node.Type
	}
	if u.LastError != nil {
		errCopy := *u.LastError
		snap.LastError = &errCopy
	}
	if u.Result != nil {
		resCopy := *u.Result
		snap.Result = &resCopy
	}
	return snap
}

// UnitSnapshot is a point-in-time view of an orchestration unit.
type UnitSnapshot struct {
	NodeID         string           `json:"node_id"`
	Type           TaskType         `json:"type"`
	Status         UnitStatus       `json:"status"`
	RetryCount     int              `json:"retry_count"`
	LastError      *EngineError     `json:"last_error,omitempty"`
	SubmissionTime time.Time        `json:"submission_time"`
	DispatchTime   time.Time        `json:"dispatch_time,omitempty"`
	Result         *ExecutionResult `json:"result,omitempty"`
}

// RunSnapshot is a point-in-time view of an orchestration run.
type RunSnapshot struct {
	// RunID is the unique identifier of the run.
	RunID string `json:"run_id"`

	// Status is the overall run status.
	Status RunStatus `json:"status"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Units maps node ids to their unit snapshots.
	Units map[string]UnitSnapshot `json:"units"`

	// Summary provides per-status counts.
	Summary RunSummary `json:"summary"`
}

// RunSummary provides statistics about a run.
type RunSummary struct {
	// Total is the total number of units in the run.
	Total int `json:"total"`

	// Completed is the number of completed units.
	Completed int `json:"completed"`

	// Failed is the number of permanently failed units.
	Failed int `json:"failed"`

	// Cancelled is the number of cancelled units.
	Cancelled int `json:"cancelled"`

	// Blocked is the number of units blocked by a failed ancestor.
	Blocked int `json:"blocked"`

	// Pending is the number of units not yet ready.
	Pending int `json:"pending"`

	// Ready is the number of units queued for dispatch.
	Ready int `json:"ready"`

	// Running is the number of units currently executing.
	Running int `json:"running"`

	// ShortCircuited is the number of completed units served from the
	// signature cache.
	ShortCircuited int `json:"short_circuited"`
}

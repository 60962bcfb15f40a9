package engine

import "context"

// Executor executes task nodes of a given type. Implementations must honor
// context cancellation: when the context is cancelled the executor should stop
// work and return promptly, with ctx.Err() or a wrapped cancellation error.
type Executor interface {
	// Execute runs the node and returns its result. A nil error means the
	// node completed; any error counts as a failed attempt.
	Execute(ctx context.Context, node *TaskNode) (*ExecutionResult, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, node *TaskNode) (*ExecutionResult, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, node *TaskNode) (*ExecutionResult, error) {
	return f(ctx, node)
}

// Observer receives lifecycle notifications from the orchestrator. All
// callbacks are invoked from the run's scheduler goroutine and must not block.
type Observer interface {
	// OnUnitStatus is called whenever a unit changes status.
	OnUnitStatus(runID string, unit UnitSnapshot)

	// OnRunStatus is called whenever a run changes status.
	OnRunStatus(runID string, status RunStatus)

	// OnQueuePromotion is called when aging promotes a queued unit.
	OnQueuePromotion(runID, nodeID string, from, to Tier)
}

// NopObserver is an Observer that ignores every notification.
type NopObserver struct{}

func (NopObserver) OnUnitStatus(string, UnitSnapshot)           {}
func (NopObserver) OnRunStatus(string, RunStatus)               {}
func (NopObserver) OnQueuePromotion(string, string, Tier, Tier) {}

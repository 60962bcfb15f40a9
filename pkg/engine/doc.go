// Package engine provides the core types and components of the taskgrid
// orchestration engine.
//
// # Overview
//
// taskgrid accepts a directed acyclic graph of work units, validates its
// structural integrity, rewrites it through an optimization pipeline, and
// schedules the rewritten graph onto a bounded worker pool under a priority
// discipline with starvation protection. Data flows strictly forward:
//
//  1. Graph - Build the task graph (Graph, TaskNode, Dependency)
//  2. Validate - Gate on structural and schema checks (Validator)
//  3. Optimize - Rewrite through five ordered passes (Pipeline)
//  4. Execute - Dispatch ready units to typed executors (Orchestrator)
//
// # Core Domain Types
//
//   - TaskNode: An executable unit of work with priority and cost estimates
//   - Dependency: An edge in the task graph with a failure policy
//   - Graph: The dependency structure with topological queries
//   - OrchestrationUnit: The runtime wrapper tracking a node through execution
//   - ExecutionResult: The outcome of executing a single node
//
// # Optimization Pipeline
//
// Five passes run strictly in order, each consuming the previous pass's
// output: critical-path reordering, redundancy elimination, task batching,
// short-circuiting, and cost-based sorting. The pipeline operates on a clone
// and reports per-pass deltas plus aggregate time and cost savings.
//
// # Executor Interface
//
// The engine never performs work itself. Callers register an executor per
// task type:
//
//	type Executor interface {
//	    Execute(ctx context.Context, node *TaskNode) (*ExecutionResult, error)
//	}
//
// # Error Classification
//
// Errors are classified for retry and recovery logic: structural and schema
// errors block all processing before scheduling, merge conflicts skip a
// single merge, execution failures retry per policy, and cancellation is a
// normal terminal state. Use the helper predicates to inspect errors:
//
//	if IsRetryable(err) {
//	    // Retry the operation
//	}
//
// # Thread Safety
//
// The Orchestrator, ReadyQueue, and SignatureCache are safe for concurrent
// use. A Graph is not: build it, validate it, then hand it off. Every
// component that consumes a graph clones it first.
package engine

package engine

import (
	"encoding/json"
	"fmt"
)

// TaskType categorizes a task node. It drives batching and cost weighting and
// selects the executor responsible for the node.
type TaskType string

const (
	// TaskTypeCompute indicates CPU-bound work.
	TaskTypeCompute TaskType = "compute"

	// TaskTypeIO indicates disk or filesystem-bound work.
	TaskTypeIO TaskType = "io"

	// TaskTypeNetwork indicates network-bound work.
	TaskTypeNetwork TaskType = "network"

	// TaskTypeModel indicates model inference or training work.
	TaskTypeModel TaskType = "model"

	// TaskTypeData indicates data transformation work.
	TaskTypeData TaskType = "data"

	// TaskTypeGeneric indicates work with no specific category.
	TaskTypeGeneric TaskType = "generic"
)

// Validate checks if the task type is valid.
func (t TaskType) Validate() error {
	switch t {
	case TaskTypeCompute, TaskTypeIO, TaskTypeNetwork,
		TaskTypeModel, TaskTypeData, TaskTypeGeneric:
		return nil
	default:
		return fmt.Errorf("invalid task type: %s", t)
	}
}

// UnitStatus represents the lifecycle state of an orchestration unit.
type UnitStatus string

const (
	// UnitStatusPending indicates the unit is waiting for its dependencies.
	UnitStatusPending UnitStatus = "pending"

	// UnitStatusReady indicates all dependencies are satisfied and the unit
	// is queued for dispatch.
	UnitStatusReady UnitStatus = "ready"

	// UnitStatusRunning indicates the unit has been dispatched to a worker.
	UnitStatusRunning UnitStatus = "running"

	// UnitStatusCompleted indicates the unit finished successfully.
	UnitStatusCompleted UnitStatus = "completed"

	// UnitStatusFailed indicates the unit failed after retries were exhausted.
	UnitStatusFailed UnitStatus = "failed"

	// UnitStatusCancelled indicates the unit was cancelled.
	UnitStatusCancelled UnitStatus = "cancelled"

	// UnitStatusBlocked indicates an ancestor failed permanently and the unit
	// will never be dispatched.
	UnitStatusBlocked UnitStatus = "blocked"
)

// IsTerminal returns true if the status represents a final state.
// BLOCKED is terminal: a blocked unit is never dispatched and never leaves
// the state once failure propagation has applied it.
func (s UnitStatus) IsTerminal() bool {
	return s == UnitStatusCompleted || s == UnitStatusFailed ||
		s == UnitStatusCancelled || s == UnitStatusBlocked
}

// IsActive returns true if the unit may still be dispatched or is running.
func (s UnitStatus) IsActive() bool {
	return s == UnitStatusPending || s == UnitStatusReady || s == UnitStatusRunning
}

// Validate checks if the unit status is valid.
func (s UnitStatus) Validate() error {
	switch s {
	case UnitStatusPending, UnitStatusReady, UnitStatusRunning,
		UnitStatusCompleted, UnitStatusFailed, UnitStatusCancelled, UnitStatusBlocked:
		return nil
	default:
		return fmt.Errorf("invalid unit status: %s", s)
	}
}

// RunStatus represents the overall status of an orchestration run.
type RunStatus string

const (
	// RunStatusPending indicates the run is accepted but not yet scheduling.
	RunStatusPending RunStatus = "pending"

	// RunStatusRunning indicates the run is actively scheduling units.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded indicates every unit completed successfully.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates at least one unit failed permanently.
	RunStatusFailed RunStatus = "failed"

	// RunStatusCancelled indicates the run was cancelled.
	RunStatusCancelled RunStatus = "cancelled"

	// RunStatusPartial indicates a mix of completed and failed/blocked units.
	RunStatusPartial RunStatus = "partial"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed ||
		s == RunStatusCancelled || s == RunStatusPartial
}

// IsActive returns true if the run is currently active.
func (s RunStatus) IsActive() bool {
	return s == RunStatusPending || s == RunStatusRunning
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusSucceeded,
		RunStatusFailed, RunStatusCancelled, RunStatusPartial:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// Tier is a readiness tier in the priority queue.
type Tier int

const (
	// TierHigh is dispatched first.
	TierHigh Tier = iota

	// TierNormal is dispatched when HIGH is empty.
	TierNormal

	// TierLow is dispatched when HIGH and NORMAL are empty.
	TierLow

	numTiers
)

// String returns the tier name.
func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "high"
	case TierNormal:
		return "normal"
	case TierLow:
		return "low"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// TierForPriority maps a node priority in [0,10] to its initial tier.
func TierForPriority(priority int) Tier {
	switch {
	case priority >= 8:
		return TierHigh
	case priority >= 4:
		return TierNormal
	default:
		return TierLow
	}
}

// Promote returns the next tier up. HIGH does not promote further.
func (t Tier) Promote() Tier {
	if t == TierHigh {
		return TierHigh
	}
	return t - 1
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s UnitStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *UnitStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = UnitStatus(str)
	return s.Validate()
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s RunStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *RunStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = RunStatus(str)
	return s.Validate()
}

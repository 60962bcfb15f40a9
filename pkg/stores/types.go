package stores

import (
	"context"
	"time"
)

// RunRecord is an archived orchestration run. Only terminal runs are
// archived; live run state lives in the orchestrator.
type RunRecord struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Status         string     `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	TotalUnits     int        `json:"total_units"`
	Completed      int        `json:"completed"`
	Failed         int        `json:"failed"`
	Cancelled      int        `json:"cancelled"`
	Blocked        int        `json:"blocked"`
	ShortCircuited int        `json:"short_circuited"`
	CreatedAt      time.Time  `json:"created_at"`
}

// UnitRecord is the archived terminal state of a single unit in a run.
type UnitRecord struct {
	RunID        string     `json:"run_id"`
	NodeID       string     `json:"node_id"`
	Type         string     `json:"type"`
	Status       string     `json:"status"`
	RetryCount   int        `json:"retry_count"`
	Error        *string    `json:"error,omitempty"`
	Output       *string    `json:"output,omitempty"` // JSON blob
	FromCache    bool       `json:"from_cache"`
	DispatchedAt *time.Time `json:"dispatched_at,omitempty"`
	Duration     int64      `json:"duration_ms"`
}

// EventRecord is an archived engine event.
type EventRecord struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	NodeID    *string   `json:"node_id,omitempty"`
	Type      string    `json:"type"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Details   *string   `json:"details,omitempty"` // JSON blob
	Timestamp time.Time `json:"timestamp"`
}

// Store is the run archive interface.
type Store interface {
	// Init opens the database connection.
	Init(ctx context.Context) error

	// Migrate applies pending schema migrations.
	Migrate(ctx context.Context) error

	// Close closes the database connection.
	Close() error

	// ArchiveRun stores a terminal run and its unit records atomically.
	ArchiveRun(ctx context.Context, run *RunRecord, units []*UnitRecord) error

	// GetRun retrieves an archived run by ID.
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// ListRuns lists archived runs, most recent first.
	ListRuns(ctx context.Context, limit, offset int) ([]*RunRecord, error)

	// ListUnitsByRun lists the unit records of an archived run.
	ListUnitsByRun(ctx context.Context, runID string) ([]*UnitRecord, error)

	// DeleteRun deletes an archived run and its units and events.
	DeleteRun(ctx context.Context, id string) error

	// PruneBefore deletes runs that completed before the cutoff and returns
	// the number removed.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// AppendEvent appends an event to the archive.
	AppendEvent(ctx context.Context, event *EventRecord) error

	// ListEventsByRun lists archived events for a run, oldest first.
	ListEventsByRun(ctx context.Context, runID string, limit, offset int) ([]*EventRecord, error)

	// HealthCheck verifies the database connection is healthy.
	HealthCheck(ctx context.Context) error
}

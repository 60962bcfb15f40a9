package stores

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/taskgrid/taskgrid/pkg/engine"
	"github.com/taskgrid/taskgrid/pkg/telemetry"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func testRun(id string, startedAt time.Time) (*RunRecord, []*UnitRecord) {
	completedAt := startedAt.Add(time.Minute)
	run := &RunRecord{
		ID:          id,
		Name:        "test-run",
		Status:      "succeeded",
		StartedAt:   startedAt,
		CompletedAt: &completedAt,
		TotalUnits:  2,
		Completed:   2,
	}
	units := []*UnitRecord{
		{RunID: id, NodeID: "a", Type: "compute", Status: "completed", Duration: 120},
		{RunID: id, NodeID: "b", Type: "io", Status: "completed", RetryCount: 1, Duration: 45},
	}
	return run, units
}

func TestSQLiteStore_ArchiveAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run, units := testRun("r1", time.Now().UTC())
	if err := store.ArchiveRun(ctx, run, units); err != nil {
		t.Fatalf("ArchiveRun failed: %v", err)
	}

	got, err := store.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Name != "test-run" {
		t.Errorf("Expected name test-run, got %s", got.Name)
	}
	if got.Status != "succeeded" {
		t.Errorf("Expected status succeeded, got %s", got.Status)
	}
	if got.TotalUnits != 2 || got.Completed != 2 {
		t.Errorf("Expected 2/2 units, got %d/%d", got.Completed, got.TotalUnits)
	}
	if got.CompletedAt == nil {
		t.Error("Expected completed_at to be set")
	}
}

func TestSQLiteStore_GetRun_NotFound(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.GetRun(context.Background(), "missing"); err == nil {
		t.Error("Expected error for missing run, got nil")
	}
}

func TestSQLiteStore_ListRuns_MostRecentFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, id := range []string{"old", "mid", "new"} {
		run, units := testRun(id, base.Add(time.Duration(i)*time.Hour))
		if err := store.ArchiveRun(ctx, run, units); err != nil {
			t.Fatalf("ArchiveRun(%s) failed: %v", id, err)
		}
	}

	runs, err := store.ListRuns(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("Expected 3 runs, got %d", len(runs))
	}
	if runs[0].ID != "new" || runs[2].ID != "old" {
		t.Errorf("Expected newest first, got %s, %s, %s", runs[0].ID, runs[1].ID, runs[2].ID)
	}

	page, err := store.ListRuns(ctx, 1, 1)
	if err != nil {
		t.Fatalf("ListRuns with offset failed: %v", err)
	}
	if len(page) != 1 || page[0].ID != "mid" {
		t.Errorf("Expected paginated result mid, got %+v", page)
	}
}

func TestSQLiteStore_ListUnitsByRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run, units := testRun("r1", time.Now().UTC())
	errMsg := "disk full"
	units[1].Error = &errMsg
	if err := store.ArchiveRun(ctx, run, units); err != nil {
		t.Fatalf("ArchiveRun failed: %v", err)
	}

	got, err := store.ListUnitsByRun(ctx, "r1")
	if err != nil {
		t.Fatalf("ListUnitsByRun failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 units, got %d", len(got))
	}
	if got[0].NodeID != "a" || got[1].NodeID != "b" {
		t.Errorf("Expected units ordered by node id, got %s, %s", got[0].NodeID, got[1].NodeID)
	}
	if got[1].Error == nil || *got[1].Error != "disk full" {
		t.Errorf("Expected unit error to round-trip, got %v", got[1].Error)
	}
	if got[1].RetryCount != 1 {
		t.Errorf("Expected retry count 1, got %d", got[1].RetryCount)
	}
}

func TestSQLiteStore_DeleteRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run, units := testRun("r1", time.Now().UTC())
	if err := store.ArchiveRun(ctx, run, units); err != nil {
		t.Fatalf("ArchiveRun failed: %v", err)
	}

	if err := store.DeleteRun(ctx, "r1"); err != nil {
		t.Fatalf("DeleteRun failed: %v", err)
	}
	if _, err := store.GetRun(ctx, "r1"); err == nil {
		t.Error("Expected run to be gone after delete")
	}

	remaining, err := store.ListUnitsByRun(ctx, "r1")
	if err != nil {
		t.Fatalf("ListUnitsByRun failed: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("Expected cascade to remove units, got %d", len(remaining))
	}

	if err := store.DeleteRun(ctx, "r1"); err == nil {
		t.Error("Expected error deleting missing run, got nil")
	}
}

func TestSQLiteStore_PruneBefore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	oldRun, oldUnits := testRun("old", base.Add(-48*time.Hour))
	newRun, newUnits := testRun("new", base)
	if err := store.ArchiveRun(ctx, oldRun, oldUnits); err != nil {
		t.Fatalf("ArchiveRun failed: %v", err)
	}
	if err := store.ArchiveRun(ctx, newRun, newUnits); err != nil {
		t.Fatalf("ArchiveRun failed: %v", err)
	}

	pruned, err := store.PruneBefore(ctx, base.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneBefore failed: %v", err)
	}
	if pruned != 1 {
		t.Errorf("Expected 1 pruned run, got %d", pruned)
	}
	if _, err := store.GetRun(ctx, "new"); err != nil {
		t.Errorf("Expected recent run to survive pruning: %v", err)
	}
}

func TestSQLiteStore_Events(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	nodeID := "a"
	event := &EventRecord{
		RunID:     "r1",
		NodeID:    &nodeID,
		Type:      "node.completed",
		Level:     "info",
		Message:   "node completed",
		Timestamp: time.Now().UTC(),
	}
	if err := store.AppendEvent(ctx, event); err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}
	if event.ID == 0 {
		t.Error("Expected auto-assigned event ID")
	}

	events, err := store.ListEventsByRun(ctx, "r1", 10, 0)
	if err != nil {
		t.Fatalf("ListEventsByRun failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if events[0].Type != "node.completed" || *events[0].NodeID != "a" {
		t.Errorf("Unexpected event: %+v", events[0])
	}
}

func TestRecordsFromSnapshot(t *testing.T) {
	started := time.Now().UTC()
	completed := started.Add(time.Minute)
	snap := engine.RunSnapshot{
		RunID:       "r1",
		Status:      engine.RunStatusPartial,
		StartedAt:   started,
		CompletedAt: &completed,
		Units: map[string]engine.UnitSnapshot{
			"a": {
				NodeID: "a",
				Type:   engine.TaskTypeCompute,
				Status: engine.UnitStatusCompleted,
				Result: &engine.ExecutionResult{
					NodeID:    "a",
					Duration:  250 * time.Millisecond,
					FromCache: true,
				},
			},
			"b": {
				NodeID:     "b",
				Type:       engine.TaskTypeIO,
				Status:     engine.UnitStatusFailed,
				RetryCount: 3,
				LastError:  engine.NewExecutionError("boom", nil).WithNode("b"),
			},
		},
		Summary: engine.RunSummary{Total: 2, Completed: 1, Failed: 1, ShortCircuited: 1},
	}

	run, units := RecordsFromSnapshot(snap, "etl")
	if run.Status != "partial" || run.Name != "etl" {
		t.Errorf("Unexpected run record: %+v", run)
	}
	if run.TotalUnits != 2 || run.Failed != 1 || run.ShortCircuited != 1 {
		t.Errorf("Unexpected summary counts: %+v", run)
	}
	if len(units) != 2 {
		t.Fatalf("Expected 2 unit records, got %d", len(units))
	}

	byID := map[string]*UnitRecord{}
	for _, u := range units {
		byID[u.NodeID] = u
	}
	if byID["a"].Duration != 250 || !byID["a"].FromCache {
		t.Errorf("Unexpected record for a: %+v", byID["a"])
	}
	if byID["b"].Error == nil || byID["b"].RetryCount != 3 {
		t.Errorf("Unexpected record for b: %+v", byID["b"])
	}
}

func TestEventArchiver_PersistsEvents(t *testing.T) {
	store := newTestStore(t)
	archiver := NewEventArchiver(store, zerolog.Nop())

	archiver.OnEvent(telemetry.Event{
		Type:      telemetry.EventNodeFailed,
		Level:     telemetry.EventLevelError,
		RunID:     "r1",
		NodeID:    "a",
		Message:   "node failed",
		Timestamp: time.Now().UTC(),
		Data:      map[string]interface{}{"error": "boom"},
	})

	events, err := store.ListEventsByRun(context.Background(), "r1", 10, 0)
	if err != nil {
		t.Fatalf("ListEventsByRun failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 archived event, got %d", len(events))
	}
	if events[0].Details == nil {
		t.Error("Expected event details to be serialized")
	}
}

package engine

import (
	"testing"
	"time"
)

// fakeClock is a manually advanced clock for aging tests.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func readyUnit(id string, priority int, cost float64) *OrchestrationUnit {
	return &OrchestrationUnit{
		NodeID: id,
		Status: UnitStatusReady,
		node:   &TaskNode{ID: id, Type: TaskTypeCompute, Priority: priority, DispatchCost: cost},
	}
}

func mustEnqueue(t *testing.T, q *ReadyQueue, unit *OrchestrationUnit) {
	t.Helper()
	if err := q.Enqueue(unit); err != nil {
		t.Fatalf("Enqueue(%s) failed: %v", unit.NodeID, err)
	}
}

func mustDequeue(t *testing.T, q *ReadyQueue) *OrchestrationUnit {
	t.Helper()
	unit, ok := q.Dequeue()
	if !ok {
		t.Fatal("Expected a unit, queue empty")
	}
	return unit
}

func TestReadyQueue_RejectsNonReadyUnit(t *testing.T) {
	q := NewReadyQueue(0)
	unit := readyUnit("a", 5, 0)
	unit.Status = UnitStatusPending

	if err := q.Enqueue(unit); err == nil {
		t.Fatal("Expected error enqueueing non-ready unit, got nil")
	}
}

func TestReadyQueue_TierOrdering(t *testing.T) {
	q := NewReadyQueue(0)
	mustEnqueue(t, q, readyUnit("low", 2, 0))
	mustEnqueue(t, q, readyUnit("high", 9, 0))
	mustEnqueue(t, q, readyUnit("normal", 5, 0))

	expected := []string{"high", "normal", "low"}
	for _, id := range expected {
		if got := mustDequeue(t, q); got.NodeID != id {
			t.Errorf("Expected %s, got %s", id, got.NodeID)
		}
	}
	if _, ok := q.Dequeue(); ok {
		t.Error("Expected empty queue")
	}
}

func TestReadyQueue_WithinTier_PriorityThenCostThenFIFO(t *testing.T) {
	q := NewReadyQueue(0)
	// All NORMAL tier (priority 4-7).
	mustEnqueue(t, q, readyUnit("first-in", 5, 2.0))
	mustEnqueue(t, q, readyUnit("cheaper", 5, 1.0))
	mustEnqueue(t, q, readyUnit("stronger", 7, 9.0))
	mustEnqueue(t, q, readyUnit("tied", 5, 2.0))

	expected := []string{"stronger", "cheaper", "first-in", "tied"}
	for _, id := range expected {
		if got := mustDequeue(t, q); got.NodeID != id {
			t.Errorf("Expected %s, got %s", id, got.NodeID)
		}
	}
}

func TestReadyQueue_Aging_PromotesOneTierPerThreshold(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	q := NewReadyQueue(120 * time.Second)
	q.now = clock.Now

	type promotion struct {
		nodeID   string
		from, to Tier
	}
	var promotions []promotion
	q.SetPromotionHook(func(nodeID string, from, to Tier) {
		promotions = append(promotions, promotion{nodeID, from, to})
	})

	starved := readyUnit("starved", 1, 0)
	mustEnqueue(t, q, starved)
	mustEnqueue(t, q, readyUnit("n1", 5, 0))

	// Before the threshold elapses, the NORMAL unit wins on tier.
	if got := mustDequeue(t, q); got.NodeID != "n1" {
		t.Fatalf("Expected n1 first, got %s", got.NodeID)
	}

	// One threshold: LOW -> NORMAL. A fresh NORMAL unit still outranks the
	// promoted one on priority within the tier.
	clock.Advance(121 * time.Second)
	mustEnqueue(t, q, readyUnit("n2", 5, 0))
	if got := mustDequeue(t, q); got.NodeID != "n2" {
		t.Fatalf("Expected n2 before promoted unit, got %s", got.NodeID)
	}
	if len(promotions) != 1 || promotions[0].from != TierLow || promotions[0].to != TierNormal {
		t.Fatalf("Expected one LOW->NORMAL promotion, got %+v", promotions)
	}

	// Second threshold: NORMAL -> HIGH. Now the starved unit outranks any
	// fresh NORMAL unit, bounding its total wait by two thresholds.
	clock.Advance(121 * time.Second)
	mustEnqueue(t, q, readyUnit("n3", 5, 0))
	if got := mustDequeue(t, q); got.NodeID != "starved" {
		t.Fatalf("Expected starved unit after double promotion, got %s", got.NodeID)
	}
	if len(promotions) != 2 || promotions[1].to != TierHigh {
		t.Fatalf("Expected second promotion to HIGH, got %+v", promotions)
	}
}

func TestReadyQueue_AgingDisabled(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	q := NewReadyQueue(0)
	q.now = clock.Now

	mustEnqueue(t, q, readyUnit("low", 1, 0))
	clock.Advance(time.Hour)
	mustEnqueue(t, q, readyUnit("normal", 5, 0))

	if got := mustDequeue(t, q); got.NodeID != "normal" {
		t.Errorf("Expected no promotion with aging disabled, got %s first", got.NodeID)
	}
}

func TestReadyQueue_Remove(t *testing.T) {
	q := NewReadyQueue(0)
	mustEnqueue(t, q, readyUnit("a", 5, 0))
	mustEnqueue(t, q, readyUnit("b", 5, 0))

	if !q.Remove("a") {
		t.Fatal("Expected Remove(a) to succeed")
	}
	if q.Remove("a") {
		t.Error("Expected second Remove(a) to fail")
	}
	if q.Has("a") {
		t.Error("Expected a to be gone")
	}
	if got := mustDequeue(t, q); got.NodeID != "b" {
		t.Errorf("Expected b, got %s", got.NodeID)
	}
}

func TestReadyQueue_TierDepths(t *testing.T) {
	q := NewReadyQueue(0)
	mustEnqueue(t, q, readyUnit("h", 10, 0))
	mustEnqueue(t, q, readyUnit("n", 6, 0))
	mustEnqueue(t, q, readyUnit("l1", 0, 0))
	mustEnqueue(t, q, readyUnit("l2", 3, 0))

	depths := q.TierDepths()
	if depths[TierHigh] != 1 || depths[TierNormal] != 1 || depths[TierLow] != 2 {
		t.Errorf("Unexpected tier depths: %v", depths)
	}
	if q.Len() != 4 {
		t.Errorf("Expected total 4, got %d", q.Len())
	}
}

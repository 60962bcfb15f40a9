package engine

import (
	"container/heap"
	"sync"
	"time"
)

// queueItem is one queued unit plus its dispatch keys, frozen at enqueue time.
type queueItem struct {
	unit     *OrchestrationUnit
	priority int
	cost     float64
	seq      uint64
	index    int
}

// tierHeap orders items by priority (descending), then dispatch cost
// (ascending), then enqueue sequence (FIFO).
type tierHeap []*queueItem

func (h tierHeap) Len() int { return len(h) }

func (h tierHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	if h[i].cost != h[j].cost {
		return h[i].cost < h[j].cost
	}
	return h[i].seq < h[j].seq
}

func (h tierHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *tierHeap) Push(x interface{}) {
	item := x.(*queueItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *tierHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// ReadyQueue holds units in READY state awaiting worker dispatch. Units live
// in one of three tiers derived from priority; dispatch always drains the
// highest non-empty tier. Within a tier the order is priority descending, then
// dispatch cost ascending, then FIFO.
//
// Units that wait a full aging threshold in a lower tier are promoted one tier
// at a time, so sustained high-priority load cannot starve low-priority work
// indefinitely: a LOW unit reaches HIGH after at most twice the threshold.
type ReadyQueue struct {
	mu    sync.Mutex
	tiers [numTiers]tierHeap
	items map[string]*queueItem
	seq   uint64

	agingThreshold time.Duration

	// now is the clock; replaceable in tests.
	now func() time.Time

	// onPromote, when set, observes each aging promotion.
	onPromote func(nodeID string, from, to Tier)
}

// NewReadyQueue creates a ready queue with the given aging threshold. A zero
// or negative threshold disables aging.
func NewReadyQueue(agingThreshold time.Duration) *ReadyQueue {
	return &ReadyQueue{
		items:          make(map[string]*queueItem),
		agingThreshold: agingThreshold,
		now:            time.Now,
	}
}

// SetPromotionHook registers a callback invoked for every aging promotion.
func (q *ReadyQueue) SetPromotionHook(hook func(nodeID string, from, to Tier)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onPromote = hook
}

// Enqueue adds a READY unit to the tier its priority maps to. Enqueueing a
// unit in any other state, or one already queued, is an error.
func (q *ReadyQueue) Enqueue(unit *OrchestrationUnit) error {
	if unit.Status != UnitStatusReady {
		return NewExecutionError("unit "+unit.NodeID+" is not ready (status "+string(unit.Status)+")", nil).
			WithNode(unit.NodeID).WithCode(ErrCodeInternal)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.items[unit.NodeID]; exists {
		return NewExecutionError("unit "+unit.NodeID+" already queued", nil).
			WithNode(unit.NodeID).WithCode(ErrCodeInternal)
	}

	unit.tier = TierForPriority(unit.node.Priority)
	unit.promotedAt = q.now()

	item := &queueItem{
		unit:     unit,
		priority: unit.node.Priority,
		cost:     unit.node.DispatchCost,
		seq:      q.seq,
	}
	q.seq++
	q.items[unit.NodeID] = item
	heap.Push(&q.tiers[unit.tier], item)
	return nil
}

// Dequeue removes and returns the next unit to dispatch: after aging
// promotions are applied, the best item of the highest non-empty tier.
// Returns false when the queue is empty.
func (q *ReadyQueue) Dequeue() (*OrchestrationUnit, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.promoteAged()

	for tier := TierHigh; tier < numTiers; tier++ {
		if q.tiers[tier].Len() == 0 {
			continue
		}
		item := heap.Pop(&q.tiers[tier]).(*queueItem)
		delete(q.items, item.unit.NodeID)
		return item.unit, true
	}
	return nil, false
}

// Remove takes a queued unit out of the queue, for cancellation and blocking.
// Returns false when the unit is not queued.
func (q *ReadyQueue) Remove(nodeID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, exists := q.items[nodeID]
	if !exists {
		return false
	}
	heap.Remove(&q.tiers[item.unit.tier], item.index)
	delete(q.items, nodeID)
	return true
}

// Has reports whether the unit is currently queued.
func (q *ReadyQueue) Has(nodeID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, exists := q.items[nodeID]
	return exists
}

// Len returns the total number of queued units across all tiers.
func (q *ReadyQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// TierDepths returns the number of queued units per tier.
func (q *ReadyQueue) TierDepths() map[Tier]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	depths := make(map[Tier]int, numTiers)
	for tier := TierHigh; tier < numTiers; tier++ {
		depths[tier] = q.tiers[tier].Len()
	}
	return depths
}

// promoteAged moves units that have waited a full threshold in their current
// tier up by one tier. The watermark resets on every promotion, so each hop
// requires a full threshold of additional waiting. Caller holds q.mu.
func (q *ReadyQueue) promoteAged() {
	if q.agingThreshold <= 0 {
		return
	}

	now := q.now()
	for tier := TierNormal; tier < numTiers; tier++ {
		// Collect first: promoting mutates the heap being scanned.
		aged := make([]*queueItem, 0)
		for _, item := range q.tiers[tier] {
			if now.Sub(item.unit.promotedAt) >= q.agingThreshold {
				aged = append(aged, item)
			}
		}
		for _, item := range aged {
			heap.Remove(&q.tiers[tier], item.index)
			from := item.unit.tier
			item.unit.tier = from.Promote()
			item.unit.promotedAt = now
			heap.Push(&q.tiers[item.unit.tier], item)
			if q.onPromote != nil {
				q.onPromote(item.unit.NodeID, from, item.unit.tier)
			}
		}
	}
}

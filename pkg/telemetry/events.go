package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of engine event.
type EventType string

const (
	EventRunStarted    EventType = "run.started"
	EventRunCompleted  EventType = "run.completed"
	EventRunFailed     EventType = "run.failed"
	EventRunCancelled  EventType = "run.cancelled"
	EventNodeStarted   EventType = "node.started"
	EventNodeCompleted EventType = "node.completed"
	EventNodeFailed    EventType = "node.failed"
	EventNodeBlocked   EventType = "node.blocked"
	EventNodeCancelled EventType = "node.cancelled"
	EventNodeRetried   EventType = "node.retried"
	EventQueuePromoted EventType = "queue.promoted"
)

// EventLevel indicates the severity of an event.
type EventLevel string

const (
	EventLevelInfo  EventLevel = "info"
	EventLevelWarn  EventLevel = "warn"
	EventLevelError EventLevel = "error"
)

// Event is a structured engine event.
type Event struct {
	// ID is a unique event identifier.
	ID string `json:"id"`

	// Type is the event type.
	Type EventType `json:"type"`

	// Level is the event severity.
	Level EventLevel `json:"level"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// RunID identifies the run the event belongs to.
	RunID string `json:"run_id,omitempty"`

	// NodeID identifies the node the event concerns, if any.
	NodeID string `json:"node_id,omitempty"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// Data carries additional event-specific fields.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventSubscriber receives published events.
type EventSubscriber interface {
	// OnEvent handles a published event. Implementations must not block.
	OnEvent(event Event)
}

// EventSubscriberFunc adapts a function to the EventSubscriber interface.
type EventSubscriberFunc func(event Event)

// OnEvent calls the underlying function.
func (f EventSubscriberFunc) OnEvent(event Event) {
	f(event)
}

// EventFilter decides whether a subscriber receives an event.
type EventFilter func(event Event) bool

// FilterByLevel passes only events at or above the given level.
func FilterByLevel(level EventLevel) EventFilter {
	rank := map[EventLevel]int{
		EventLevelInfo:  0,
		EventLevelWarn:  1,
		EventLevelError: 2,
	}
	min := rank[level]
	return func(event Event) bool {
		return rank[event.Level] >= min
	}
}

// FilterByType passes only events of the given types.
func FilterByType(types ...EventType) EventFilter {
	allowed := make(map[EventType]bool, len(types))
	for _, t := range types {
		allowed[t] = true
	}
	return func(event Event) bool {
		return allowed[event.Type]
	}
}

// FilterByRunID passes only events belonging to the given run.
func FilterByRunID(runID string) EventFilter {
	return func(event Event) bool {
		return event.RunID == runID
	}
}

// subscription pairs a subscriber with an optional filter.
type subscription struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// EventPublisher delivers engine events to subscribers. Publishing is
// non-blocking; when the buffer is full events are dropped rather than
// stalling the scheduler.
type EventPublisher struct {
	mu          sync.RWMutex
	subscribers []subscription
	events      chan Event
	async       bool
	dropped     int64
	done        chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
}

// NewEventPublisher creates a new event publisher.
func NewEventPublisher(cfg EventsConfig) *EventPublisher {
	size := cfg.BufferSize
	if size <= 0 {
		size = 1000
	}
	p := &EventPublisher{
		events: make(chan Event, size),
		async:  cfg.EnableAsync,
		done:   make(chan struct{}),
	}
	if p.async {
		p.wg.Add(1)
		go p.processEvents()
	}
	return p
}

// Subscribe registers a subscriber. A nil filter receives all events.
func (p *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, subscription{
		subscriber: subscriber,
		filter:     filter,
	})
}

// Publish delivers an event to all matching subscribers.
func (p *EventPublisher) Publish(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if !p.async {
		p.deliver(event)
		return
	}

	select {
	case p.events <- event:
	case <-p.done:
	default:
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
	}
}

// PublishRunEvent publishes a run lifecycle event.
func (p *EventPublisher) PublishRunEvent(eventType EventType, runID, message string, data map[string]interface{}) {
	level := EventLevelInfo
	if eventType == EventRunFailed {
		level = EventLevelError
	}
	p.Publish(Event{
		Type:    eventType,
		Level:   level,
		RunID:   runID,
		Message: message,
		Data:    data,
	})
}

// PublishNodeEvent publishes a node lifecycle event.
func (p *EventPublisher) PublishNodeEvent(eventType EventType, runID, nodeID, message string, data map[string]interface{}) {
	level := EventLevelInfo
	switch eventType {
	case EventNodeFailed:
		level = EventLevelError
	case EventNodeBlocked, EventNodeRetried:
		level = EventLevelWarn
	}
	p.Publish(Event{
		Type:    eventType,
		Level:   level,
		RunID:   runID,
		NodeID:  nodeID,
		Message: message,
		Data:    data,
	})
}

// Dropped returns the number of events discarded due to a full buffer.
func (p *EventPublisher) Dropped() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dropped
}

// Close stops the publisher and waits for buffered events to drain.
func (p *EventPublisher) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		close(p.done)
	})

	if !p.async {
		return nil
	}

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// processEvents drains the event channel and delivers to subscribers.
func (p *EventPublisher) processEvents() {
	defer p.wg.Done()
	for {
		select {
		case event := <-p.events:
			p.deliver(event)
		case <-p.done:
			for {
				select {
				case event := <-p.events:
					p.deliver(event)
				default:
					return
				}
			}
		}
	}
}

// deliver fans an event out to matching subscribers.
func (p *EventPublisher) deliver(event Event) {
	p.mu.RLock()
	subs := make([]subscription, len(p.subscribers))
	copy(subs, p.subscribers)
	p.mu.RUnlock()

	for _, sub := range subs {
		if sub.filter != nil && !sub.filter(event) {
			continue
		}
		sub.subscriber.OnEvent(event)
	}
}

package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"
)

// collectingSubscriber records received events under a mutex.
type collectingSubscriber struct {
	mu     sync.Mutex
	events []Event
}

func (s *collectingSubscriber) OnEvent(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *collectingSubscriber) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func syncPublisher() *EventPublisher {
	return NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 10, EnableAsync: false})
}

func TestEventPublisher_DeliversToSubscriber(t *testing.T) {
	pub := syncPublisher()
	sub := &collectingSubscriber{}
	pub.Subscribe(sub, nil)

	pub.Publish(Event{Type: EventNodeStarted, Level: EventLevelInfo, RunID: "r1", NodeID: "a"})

	events := sub.snapshot()
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if events[0].Type != EventNodeStarted {
		t.Errorf("Expected type %s, got %s", EventNodeStarted, events[0].Type)
	}
	if events[0].ID == "" {
		t.Error("Expected event ID to be assigned")
	}
	if events[0].Timestamp.IsZero() {
		t.Error("Expected timestamp to be assigned")
	}
}

func TestEventPublisher_FilterByType(t *testing.T) {
	pub := syncPublisher()
	sub := &collectingSubscriber{}
	pub.Subscribe(sub, FilterByType(EventNodeFailed, EventRunFailed))

	pub.Publish(Event{Type: EventNodeStarted, RunID: "r1"})
	pub.Publish(Event{Type: EventNodeFailed, RunID: "r1"})
	pub.Publish(Event{Type: EventRunFailed, RunID: "r1"})

	events := sub.snapshot()
	if len(events) != 2 {
		t.Fatalf("Expected 2 filtered events, got %d", len(events))
	}
}

func TestEventPublisher_FilterByLevel(t *testing.T) {
	pub := syncPublisher()
	sub := &collectingSubscriber{}
	pub.Subscribe(sub, FilterByLevel(EventLevelWarn))

	pub.Publish(Event{Type: EventNodeStarted, Level: EventLevelInfo})
	pub.Publish(Event{Type: EventNodeBlocked, Level: EventLevelWarn})
	pub.Publish(Event{Type: EventNodeFailed, Level: EventLevelError})

	events := sub.snapshot()
	if len(events) != 2 {
		t.Fatalf("Expected warn and error events only, got %d", len(events))
	}
}

func TestEventPublisher_FilterByRunID(t *testing.T) {
	pub := syncPublisher()
	sub := &collectingSubscriber{}
	pub.Subscribe(sub, FilterByRunID("r1"))

	pub.Publish(Event{Type: EventNodeStarted, RunID: "r1"})
	pub.Publish(Event{Type: EventNodeStarted, RunID: "r2"})

	events := sub.snapshot()
	if len(events) != 1 || events[0].RunID != "r1" {
		t.Fatalf("Expected only r1 events, got %+v", events)
	}
}

func TestEventPublisher_AsyncDrainsOnClose(t *testing.T) {
	pub := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 100, EnableAsync: true})
	sub := &collectingSubscriber{}
	pub.Subscribe(sub, nil)

	for i := 0; i < 10; i++ {
		pub.Publish(Event{Type: EventNodeCompleted, RunID: "r1"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pub.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if got := len(sub.snapshot()); got != 10 {
		t.Errorf("Expected 10 events after drain, got %d", got)
	}
}

func TestEventPublisher_PublishNodeEventLevels(t *testing.T) {
	pub := syncPublisher()
	sub := &collectingSubscriber{}
	pub.Subscribe(sub, nil)

	pub.PublishNodeEvent(EventNodeFailed, "r1", "a", "failed", nil)
	pub.PublishNodeEvent(EventNodeBlocked, "r1", "b", "blocked", nil)
	pub.PublishNodeEvent(EventNodeCompleted, "r1", "c", "done", nil)

	events := sub.snapshot()
	if events[0].Level != EventLevelError {
		t.Errorf("Expected error level for failure, got %s", events[0].Level)
	}
	if events[1].Level != EventLevelWarn {
		t.Errorf("Expected warn level for blocked, got %s", events[1].Level)
	}
	if events[2].Level != EventLevelInfo {
		t.Errorf("Expected info level for completion, got %s", events[2].Level)
	}
}

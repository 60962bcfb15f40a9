package stores

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/taskgrid/taskgrid/pkg/engine"
	"github.com/taskgrid/taskgrid/pkg/telemetry"
)

// RecordsFromSnapshot converts a terminal run snapshot into archive records.
// The name labels the run in listings; it usually comes from the submission
// file.
func RecordsFromSnapshot(snap engine.RunSnapshot, name string) (*RunRecord, []*UnitRecord) {
	run := &RunRecord{
		ID:             snap.RunID,
		Name:           name,
		Status:         string(snap.Status),
		StartedAt:      snap.StartedAt,
		CompletedAt:    snap.CompletedAt,
		TotalUnits:     snap.Summary.Total,
		Completed:      snap.Summary.Completed,
		Failed:         snap.Summary.Failed,
		Cancelled:      snap.Summary.Cancelled,
		Blocked:        snap.Summary.Blocked,
		ShortCircuited: snap.Summary.ShortCircuited,
	}

	units := make([]*UnitRecord, 0, len(snap.Units))
	for _, u := range snap.Units {
		rec := &UnitRecord{
			RunID:      snap.RunID,
			NodeID:     u.NodeID,
			Type:       string(u.Type),
			Status:     string(u.Status),
			RetryCount: u.RetryCount,
		}
		if u.LastError != nil {
			msg := u.LastError.Error()
			rec.Error = &msg
		}
		if !u.DispatchTime.IsZero() {
			t := u.DispatchTime
			rec.DispatchedAt = &t
		}
		if u.Result != nil {
			rec.FromCache = u.Result.FromCache
			rec.Duration = u.Result.Duration.Milliseconds()
			if len(u.Result.Output) > 0 {
				out := string(u.Result.Output)
				rec.Output = &out
			}
		}
		units = append(units, rec)
	}
	return run, units
}

// EventArchiver persists published engine events. Subscribe it to a
// telemetry.EventPublisher to keep a queryable event history per run.
type EventArchiver struct {
	store   Store
	logger  zerolog.Logger
	timeout time.Duration
}

// NewEventArchiver creates an event archiver writing to the given store.
func NewEventArchiver(store Store, logger zerolog.Logger) *EventArchiver {
	return &EventArchiver{
		store:   store,
		logger:  logger.With().Str("component", "event_archiver").Logger(),
		timeout: 5 * time.Second,
	}
}

// OnEvent implements telemetry.EventSubscriber. Archive failures are logged
// and dropped; event history is best effort.
func (a *EventArchiver) OnEvent(event telemetry.Event) {
	rec := &EventRecord{
		RunID:     event.RunID,
		Type:      string(event.Type),
		Level:     string(event.Level),
		Message:   event.Message,
		Timestamp: event.Timestamp,
	}
	if event.NodeID != "" {
		nodeID := event.NodeID
		rec.NodeID = &nodeID
	}
	if len(event.Data) > 0 {
		if data, err := json.Marshal(event.Data); err == nil {
			details := string(data)
			rec.Details = &details
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := a.store.AppendEvent(ctx, rec); err != nil {
		a.logger.Warn().Err(err).Str("run_id", event.RunID).Msg("Failed to archive event")
	}
}

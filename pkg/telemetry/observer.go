package telemetry

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/taskgrid/taskgrid/pkg/engine"
)

// Observer bridges orchestrator notifications into logging, metrics, and
// events. Callbacks run on the scheduler goroutine, so everything here must
// return quickly; event delivery is asynchronous.
type Observer struct {
	logger  *Logger
	metrics *Metrics
	events  *EventPublisher

	mu      sync.Mutex
	started map[string]time.Time
}

// NewObserver creates a telemetry observer. Any of the components may be nil.
func NewObserver(logger *Logger, metrics *Metrics, events *EventPublisher) *Observer {
	if logger == nil {
		logger = &Logger{Logger: zerolog.Nop()}
	}
	return &Observer{
		logger:  logger,
		metrics: metrics,
		events:  events,
		started: make(map[string]time.Time),
	}
}

// OnUnitStatus implements engine.Observer.
func (o *Observer) OnUnitStatus(runID string, unit engine.UnitSnapshot) {
	log := o.logger.WithRunID(runID).WithNodeID(unit.NodeID)

	switch unit.Status {
	case engine.UnitStatusRunning:
		log.Debug().Str("type", string(unit.Type)).Msg("node dispatched")
		o.publishNode(EventNodeStarted, runID, unit, "node execution started")
	case engine.UnitStatusCompleted:
		duration := o.resultDuration(unit)
		log.Info().Dur("duration", duration).Msg("node completed")
		if o.metrics != nil {
			o.metrics.RecordNodeExecution(string(unit.Type), string(unit.Status), duration)
			if unit.Result != nil && unit.Result.FromCache {
				o.metrics.RecordShortCircuit()
			}
		}
		o.publishNode(EventNodeCompleted, runID, unit, "node completed")
	case engine.UnitStatusFailed:
		ev := log.Error().Int("retries", unit.RetryCount)
		if unit.LastError != nil {
			ev = ev.Err(unit.LastError)
		}
		ev.Msg("node failed permanently")
		if o.metrics != nil {
			o.metrics.RecordNodeExecution(string(unit.Type), string(unit.Status), o.resultDuration(unit))
			if unit.LastError != nil {
				o.metrics.RecordError(string(unit.LastError.Class), unit.LastError.Code)
			}
		}
		o.publishNode(EventNodeFailed, runID, unit, "node failed permanently")
	case engine.UnitStatusBlocked:
		log.Warn().Msg("node blocked by failed dependency")
		o.publishNode(EventNodeBlocked, runID, unit, "node blocked by failed dependency")
	case engine.UnitStatusCancelled:
		log.Info().Msg("node cancelled")
		o.publishNode(EventNodeCancelled, runID, unit, "node cancelled")
	case engine.UnitStatusPending:
		// A transition back to pending is a scheduled retry.
		if unit.RetryCount > 0 {
			log.Warn().Int("attempt", unit.RetryCount).Msg("node retry scheduled")
			if o.metrics != nil {
				o.metrics.RecordNodeRetry()
			}
			o.publishNode(EventNodeRetried, runID, unit, "node retry scheduled")
		}
	}
}

// OnRunStatus implements engine.Observer.
func (o *Observer) OnRunStatus(runID string, status engine.RunStatus) {
	log := o.logger.WithRunID(runID)

	switch status {
	case engine.RunStatusRunning:
		o.mu.Lock()
		o.started[runID] = time.Now()
		o.mu.Unlock()
		log.Info().Msg("run started")
		if o.metrics != nil {
			o.metrics.RecordRunStarted()
		}
		o.publishRun(EventRunStarted, runID, "run started")
	case engine.RunStatusSucceeded, engine.RunStatusPartial:
		o.recordRunDone(runID, status)
		log.Info().Str("status", string(status)).Msg("run completed")
		o.publishRun(EventRunCompleted, runID, fmt.Sprintf("run completed with status %s", status))
	case engine.RunStatusFailed:
		o.recordRunDone(runID, status)
		log.Error().Msg("run failed")
		o.publishRun(EventRunFailed, runID, "run failed")
	case engine.RunStatusCancelled:
		o.recordRunDone(runID, status)
		log.Info().Msg("run cancelled")
		o.publishRun(EventRunCancelled, runID, "run cancelled")
	}
}

// recordRunDone records the terminal metric for a run using the start time
// captured when the run began.
func (o *Observer) recordRunDone(runID string, status engine.RunStatus) {
	o.mu.Lock()
	start, ok := o.started[runID]
	delete(o.started, runID)
	o.mu.Unlock()

	if o.metrics == nil {
		return
	}
	var elapsed time.Duration
	if ok {
		elapsed = time.Since(start)
	}
	o.metrics.RecordRunCompleted(string(status), elapsed)
}

// OnQueuePromotion implements engine.Observer.
func (o *Observer) OnQueuePromotion(runID, nodeID string, from, to engine.Tier) {
	o.logger.WithRunID(runID).WithNodeID(nodeID).
		Debug().
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("queue aging promoted node")
	if o.metrics != nil {
		o.metrics.RecordAgingPromotion()
	}
	if o.events != nil {
		o.events.Publish(Event{
			Type:    EventQueuePromoted,
			Level:   EventLevelInfo,
			RunID:   runID,
			NodeID:  nodeID,
			Message: fmt.Sprintf("promoted from %s to %s", from, to),
			Data: map[string]interface{}{
				"from": from.String(),
				"to":   to.String(),
			},
		})
	}
}

func (o *Observer) publishNode(eventType EventType, runID string, unit engine.UnitSnapshot, message string) {
	if o.events == nil {
		return
	}
	data := map[string]interface{}{
		"type":        string(unit.Type),
		"retry_count": unit.RetryCount,
	}
	if unit.LastError != nil {
		data["error"] = unit.LastError.Error()
	}
	o.events.PublishNodeEvent(eventType, runID, unit.NodeID, message, data)
}

func (o *Observer) publishRun(eventType EventType, runID, message string) {
	if o.events == nil {
		return
	}
	o.events.PublishRunEvent(eventType, runID, message, nil)
}

func (o *Observer) resultDuration(unit engine.UnitSnapshot) time.Duration {
	if unit.Result != nil {
		return unit.Result.Duration
	}
	return 0
}

var _ engine.Observer = (*Observer)(nil)

// Package telemetry provides observability for the taskgrid engine: structured
// logging, Prometheus metrics, distributed tracing, and an event bus.
//
// # Logging
//
// Logging is built on zerolog. NewLogger configures level, format, and output
// from LoggingConfig; NewComponentLogger derives child loggers tagged with a
// component name, and WithRunID, WithNodeID, and WithPass attach engine
// context:
//
//	logger, _ := telemetry.NewLogger(cfg.Logging)
//	log := logger.NewComponentLogger("orchestrator").WithRunID(runID)
//	log.Info().Msg("run started")
//
// # Metrics
//
// Metrics uses a private Prometheus registry so engine metrics never collide
// with other collectors in the process. It tracks run and node lifecycle
// counters, per-tier queue depth, aging promotions, short circuits, and
// optimization pass durations. Handler exposes the registry over HTTP, and
// StartMetricsServer runs a standalone endpoint.
//
// # Tracing
//
// Tracing uses OpenTelemetry with OTLP gRPC or stdout exporters. Spans cover
// graph validation (graph.validate), the optimization pipeline
// (graph.optimize) and its passes, whole runs (run.execute), and individual
// node executions (node.execute). Span attributes carry the run id, node id,
// node type, and pass name.
//
// # Events
//
// EventPublisher fans engine lifecycle events out to subscribers with
// optional filtering by level, type, or run. Delivery is asynchronous and
// non-blocking; events are dropped, and counted, when the buffer is full.
//
// # Observer
//
// Observer implements engine.Observer and translates orchestrator
// notifications into all three channels at once. Wire it into the
// orchestrator to get logging, metrics, and events for every run:
//
//	obs := telemetry.NewObserver(logger, metrics, events)
//	orch := engine.NewOrchestrator(cfg, logger.Logger)
//	orch.SetObserver(obs)
package telemetry

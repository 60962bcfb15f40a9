package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics collection for the taskgrid engine.
type Metrics struct {
	registry *prometheus.Registry

	// Run lifecycle metrics.
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   prometheus.Histogram

	// Node execution metrics.
	nodeExecutions  *prometheus.CounterVec
	nodeDuration    *prometheus.HistogramVec
	nodeRetries     prometheus.Counter
	runningNodes    prometheus.Gauge
	queueDepth      *prometheus.GaugeVec
	agingPromotions prometheus.Counter
	shortCircuits   prometheus.Counter

	// Optimization pipeline metrics.
	passDuration *prometheus.HistogramVec
	nodesMerged  prometheus.Counter
	nodesBatched prometheus.Counter

	// Error metrics.
	errorsTotal *prometheus.CounterVec
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{}, nil
	}

	registry := prometheus.NewRegistry()
	ns := cfg.Namespace
	if ns == "" {
		ns = "taskgrid"
	}
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	m := &Metrics{
		registry: registry,

		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "runs_started_total",
			Help:      "Total number of orchestration runs started",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "runs_completed_total",
			Help:      "Total number of orchestration runs completed by final status",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "run_duration_seconds",
			Help:      "Duration of orchestration runs in seconds",
			Buckets:   buckets,
		}),

		nodeExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "node_executions_total",
			Help:      "Total number of node executions by task type and outcome",
		}, []string{"type", "status"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "node_duration_seconds",
			Help:      "Duration of node executions in seconds by task type",
			Buckets:   buckets,
		}, []string{"type"}),
		nodeRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "node_retries_total",
			Help:      "Total number of node execution retries",
		}),
		runningNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "running_nodes",
			Help:      "Number of nodes currently executing",
		}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "queue_depth",
			Help:      "Number of queued ready nodes by tier",
		}, []string{"tier"}),
		agingPromotions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "aging_promotions_total",
			Help:      "Total number of tier promotions applied by queue aging",
		}),
		shortCircuits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "short_circuits_total",
			Help:      "Total number of nodes completed from cached results",
		}),

		passDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "pass_duration_seconds",
			Help:      "Duration of optimization passes in seconds",
			Buckets:   buckets,
		}, []string{"pass"}),
		nodesMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "nodes_merged_total",
			Help:      "Total number of redundant nodes merged by deduplication",
		}),
		nodesBatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "nodes_batched_total",
			Help:      "Total number of nodes grouped into batches",
		}),

		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "errors_total",
			Help:      "Total number of engine errors by class and code",
		}, []string{"class", "code"}),
	}

	collectors := []prometheus.Collector{
		m.runsStarted, m.runsCompleted, m.runDuration,
		m.nodeExecutions, m.nodeDuration, m.nodeRetries,
		m.runningNodes, m.queueDepth, m.agingPromotions, m.shortCircuits,
		m.passDuration, m.nodesMerged, m.nodesBatched,
		m.errorsTotal,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("registering metric: %w", err)
		}
	}

	return m, nil
}

// RecordRunStarted increments the runs started counter.
func (m *Metrics) RecordRunStarted() {
	if m.runsStarted != nil {
		m.runsStarted.Inc()
	}
}

// RecordRunCompleted records a completed run with its final status and
// duration.
func (m *Metrics) RecordRunCompleted(status string, duration time.Duration) {
	if m.runsCompleted != nil {
		m.runsCompleted.WithLabelValues(status).Inc()
		m.runDuration.Observe(duration.Seconds())
	}
}

// RecordNodeExecution records a node execution with its task type, outcome,
// and duration.
func (m *Metrics) RecordNodeExecution(taskType, status string, duration time.Duration) {
	if m.nodeExecutions != nil {
		m.nodeExecutions.WithLabelValues(taskType, status).Inc()
		m.nodeDuration.WithLabelValues(taskType).Observe(duration.Seconds())
	}
}

// RecordNodeRetry increments the retry counter.
func (m *Metrics) RecordNodeRetry() {
	if m.nodeRetries != nil {
		m.nodeRetries.Inc()
	}
}

// SetRunningNodes sets the running node gauge.
func (m *Metrics) SetRunningNodes(count int) {
	if m.runningNodes != nil {
		m.runningNodes.Set(float64(count))
	}
}

// SetQueueDepth sets the queue depth gauge for a tier.
func (m *Metrics) SetQueueDepth(tier string, depth int) {
	if m.queueDepth != nil {
		m.queueDepth.WithLabelValues(tier).Set(float64(depth))
	}
}

// RecordAgingPromotion increments the aging promotion counter.
func (m *Metrics) RecordAgingPromotion() {
	if m.agingPromotions != nil {
		m.agingPromotions.Inc()
	}
}

// RecordShortCircuit increments the short-circuit counter.
func (m *Metrics) RecordShortCircuit() {
	if m.shortCircuits != nil {
		m.shortCircuits.Inc()
	}
}

// RecordPassDuration records the duration of an optimization pass.
func (m *Metrics) RecordPassDuration(pass string, duration time.Duration) {
	if m.passDuration != nil {
		m.passDuration.WithLabelValues(pass).Observe(duration.Seconds())
	}
}

// RecordNodesMerged adds to the merged node counter.
func (m *Metrics) RecordNodesMerged(count int) {
	if m.nodesMerged != nil {
		m.nodesMerged.Add(float64(count))
	}
}

// RecordNodesBatched adds to the batched node counter.
func (m *Metrics) RecordNodesBatched(count int) {
	if m.nodesBatched != nil {
		m.nodesBatched.Add(float64(count))
	}
}

// RecordError records an engine error by classification.
func (m *Metrics) RecordError(class, code string) {
	if m.errorsTotal != nil {
		m.errorsTotal.WithLabelValues(class, code).Inc()
	}
}

// Timer measures a duration and reports it through a callback on Stop.
type Timer struct {
	start  time.Time
	record func(time.Duration)
}

// NewTimer starts a timer that reports to the given callback.
func NewTimer(record func(time.Duration)) *Timer {
	return &Timer{start: time.Now(), record: record}
}

// Stop stops the timer and records the elapsed duration.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.record != nil {
		t.record(elapsed)
	}
	return elapsed
}

// Handler returns an HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// StartMetricsServer starts an HTTP server exposing the metrics endpoint.
// The server shuts down when the context is cancelled.
func (m *Metrics) StartMetricsServer(ctx context.Context, cfg MetricsConfig) error {
	if !cfg.Enabled || m.registry == nil {
		return nil
	}

	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config holds orchestrator settings.
type Config struct {
	// MaxWorkers bounds the number of concurrently executing units per run.
	MaxWorkers int

	// MaxRetries is the number of additional attempts after a failed
	// execution before the unit fails permanently.
	MaxRetries int

	// RetryBaseDelay is the backoff delay of the first retry; each subsequent
	// retry doubles it.
	RetryBaseDelay time.Duration

	// RetryMaxDelay caps the exponential backoff.
	RetryMaxDelay time.Duration

	// AgingThreshold is how long a queued unit waits in a tier before being
	// promoted one tier up. Zero disables aging.
	AgingThreshold time.Duration

	// CancelGraceTimeout is how long a cancelled running unit may keep its
	// worker slot before the slot is reclaimed.
	CancelGraceTimeout time.Duration
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		MaxWorkers:         4,
		MaxRetries:         3,
		RetryBaseDelay:     time.Second,
		RetryMaxDelay:      30 * time.Second,
		AgingThreshold:     2 * time.Minute,
		CancelGraceTimeout: 30 * time.Second,
	}
}

// normalized fills zero fields with defaults.
func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = def.MaxWorkers
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = def.RetryBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = def.RetryMaxDelay
	}
	if c.CancelGraceTimeout <= 0 {
		c.CancelGraceTimeout = def.CancelGraceTimeout
	}
	return c
}

// msgKind discriminates scheduler loop messages.
type msgKind int

const (
	msgDone msgKind = iota
	msgRetry
	msgGrace
	msgCancelRun
	msgCancelNode
)

// message is the scheduler loop's single input type. Workers, retry timers,
// grace timers, and the cancellation API all talk to a run through these.
type message struct {
	kind   msgKind
	nodeID string
	result *ExecutionResult
	err    error
}

// run is the per-submission execution state. All mutation happens on the run's
// scheduler goroutine; the mutex only guards snapshot reads.
type run struct {
	id    string
	graph *Graph
	sigs  map[string]Signature
	cache *SignatureCache
	queue *ReadyQueue

	mu          sync.RWMutex
	status      RunStatus
	startedAt   time.Time
	completedAt *time.Time
	units       map[string]*OrchestrationUnit

	msgs      chan message
	done      chan struct{}
	running   int
	cancelled bool
}

// Orchestrator coordinates execution of optimized task graphs: it tracks runs,
// dispatches ready units to typed executors through a bounded worker pool,
// retries transient failures with exponential backoff, propagates permanent
// failures to dependents, and handles cooperative cancellation.
type Orchestrator struct {
	cfg      Config
	logger   zerolog.Logger
	validate *Validator
	observer Observer

	mu        sync.RWMutex
	executors map[TaskType]Executor
	runs      map[string]*run
}

// NewOrchestrator creates an orchestrator with the given configuration.
func NewOrchestrator(cfg Config, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg.normalized(),
		logger:    logger.With().Str("component", "orchestrator").Logger(),
		validate:  NewValidator(),
		observer:  NopObserver{},
		executors: make(map[TaskType]Executor),
		runs:      make(map[string]*run),
	}
}

// SetObserver registers a lifecycle observer. Must be called before Submit.
func (o *Orchestrator) SetObserver(obs Observer) {
	if obs == nil {
		obs = NopObserver{}
	}
	o.mu.Lock()
	o.observer = obs
	o.mu.Unlock()
}

// RegisterExecutor registers the executor responsible for a task type. A unit
// whose type has no registered executor fails permanently without retries.
func (o *Orchestrator) RegisterExecutor(taskType TaskType, executor Executor) error {
	if err := taskType.Validate(); err != nil {
		return NewSchemaError(err.Error(), nil).WithCode(ErrCodeValidation)
	}
	if executor == nil {
		return NewSchemaError("executor is nil", nil).WithCode(ErrCodeValidation)
	}
	o.mu.Lock()
	o.executors[taskType] = executor
	o.mu.Unlock()
	return nil
}

// Submit validates the graph and starts a new orchestration run over a clone
// of it. Returns the run id. A graph that fails validation is refused before
// any unit is created.
func (o *Orchestrator) Submit(ctx context.Context, g *Graph) (string, error) {
	if g == nil || g.Len() == 0 {
		return "", NewStructuralError("graph is empty", nil).WithCode(ErrCodeValidation)
	}
	if report := o.validate.Validate(g); !report.OK() {
		return "", report.Err()
	}

	working := g.Clone()
	sigs, err := computeSignatures(working, DefaultMetadataNormalizer)
	if err != nil {
		return "", err
	}

	now := time.Now()
	r := &run{
		id:        uuid.NewString(),
		graph:     working,
		sigs:      sigs,
		cache:     NewSignatureCache(),
		queue:     NewReadyQueue(o.cfg.AgingThreshold),
		status:    RunStatusRunning,
		startedAt: now,
		units:     make(map[string]*OrchestrationUnit, working.Len()),
		// Each unit produces a bounded number of messages over its lifetime
		// (attempts, retry timers, one grace timer); size the channel so no
		// sender ever blocks, even after the loop exits.
		msgs: make(chan message, working.Len()*(o.cfg.MaxRetries+4)+16),
		done: make(chan struct{}),
	}
	r.queue.SetPromotionHook(func(nodeID string, from, to Tier) {
		o.observer.OnQueuePromotion(r.id, nodeID, from, to)
	})

	for _, id := range working.NodeIDs() {
		r.units[id] = &OrchestrationUnit{
			NodeID:         id,
			Status:         UnitStatusPending,
			SubmissionTime: now,
			node:           working.Node(id),
		}
	}

	o.mu.Lock()
	o.runs[r.id] = r
	o.mu.Unlock()

	o.logger.Info().
		Str("run_id", r.id).
		Int("units", len(r.units)).
		Int("max_workers", o.cfg.MaxWorkers).
		Msg("Run submitted")
	o.observer.OnRunStatus(r.id, RunStatusRunning)

	go o.schedule(r)
	return r.id, nil
}

// GetStatus returns a point-in-time snapshot of the run.
func (o *Orchestrator) GetStatus(runID string) (*RunSnapshot, error) {
	r, err := o.run(runID)
	if err != nil {
		return nil, err
	}
	return r.snapshot(), nil
}

// Wait blocks until the run reaches a terminal status or the context is
// cancelled, then returns the final snapshot.
func (o *Orchestrator) Wait(ctx context.Context, runID string) (*RunSnapshot, error) {
	r, err := o.run(runID)
	if err != nil {
		return nil, err
	}
	select {
	case <-r.done:
		return r.snapshot(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CancelRun requests cancellation of an entire run. Pending and ready units
// are cancelled immediately; running units are signalled and given the grace
// timeout to stop.
func (o *Orchestrator) CancelRun(runID string) error {
	r, err := o.run(runID)
	if err != nil {
		return err
	}
	select {
	case <-r.done:
		return NewCancellationError(fmt.Sprintf("run %s is not active", runID), nil).
			WithCode(ErrCodeRunNotActive)
	default:
	}
	r.msgs <- message{kind: msgCancelRun}
	return nil
}

// CancelNode requests cancellation of a single unit and, transitively, every
// unit that depends on it.
func (o *Orchestrator) CancelNode(runID, nodeID string) error {
	r, err := o.run(runID)
	if err != nil {
		return err
	}
	r.mu.RLock()
	_, exists := r.units[nodeID]
	r.mu.RUnlock()
	if !exists {
		return NewStructuralError(fmt.Sprintf("node %s not found in run %s", nodeID, runID), nil).
			WithCode(ErrCodeNodeNotFound)
	}
	select {
	case <-r.done:
		return NewCancellationError(fmt.Sprintf("run %s is not active", runID), nil).
			WithCode(ErrCodeRunNotActive)
	default:
	}
	r.msgs <- message{kind: msgCancelNode, nodeID: nodeID}
	return nil
}

// Shutdown cancels every active run and waits for them to terminate or for
// the context to expire.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.RLock()
	active := make([]*run, 0, len(o.runs))
	for _, r := range o.runs {
		active = append(active, r)
	}
	o.mu.RUnlock()

	for _, r := range active {
		select {
		case <-r.done:
		default:
			r.msgs <- message{kind: msgCancelRun}
		}
	}
	for _, r := range active {
		select {
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// run looks up an active or finished run by id.
func (o *Orchestrator) run(runID string) (*run, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	r, exists := o.runs[runID]
	if !exists {
		return nil, NewStructuralError(fmt.Sprintf("run not found: %s", runID), nil).
			WithCode(ErrCodeRunNotFound)
	}
	return r, nil
}

// schedule is the per-run scheduler loop. It is the only goroutine that
// mutates run state: workers, timers, and the cancellation API feed it
// messages, and it dispatches from the ready queue after every transition.
func (o *Orchestrator) schedule(r *run) {
	logger := o.logger.With().Str("run_id", r.id).Logger()

	r.mu.Lock()
	for _, id := range r.graph.NodeIDs() {
		if o.depsSatisfied(r, id) {
			o.markReady(r, r.units[id])
		}
	}
	r.mu.Unlock()
	o.dispatch(r, logger)

	for !o.finished(r) {
		m := <-r.msgs

		r.mu.Lock()
		switch m.kind {
		case msgDone:
			o.handleDone(r, m, logger)
		case msgRetry:
			o.handleRetry(r, m.nodeID, logger)
		case msgGrace:
			o.handleGrace(r, m.nodeID, logger)
		case msgCancelRun:
			o.handleCancelRun(r, logger)
		case msgCancelNode:
			o.cancelUnit(r, m.nodeID, logger)
		}
		r.mu.Unlock()

		o.dispatch(r, logger)
	}

	o.finish(r, logger)
}

// finished reports whether every unit is terminal and no worker slot is held.
func (o *Orchestrator) finished(r *run) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.running > 0 {
		return false
	}
	for _, unit := range r.units {
		if !unit.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// finish computes the run's terminal status and releases waiters.
func (o *Orchestrator) finish(r *run, logger zerolog.Logger) {
	r.mu.Lock()
	summary := summarize(r.units)
	switch {
	case r.cancelled:
		r.status = RunStatusCancelled
	case summary.Failed == 0 && summary.Blocked == 0 && summary.Cancelled == 0:
		r.status = RunStatusSucceeded
	case summary.Completed > 0:
		r.status = RunStatusPartial
	case summary.Failed > 0 || summary.Blocked > 0:
		r.status = RunStatusFailed
	default:
		r.status = RunStatusCancelled
	}
	now := time.Now()
	r.completedAt = &now
	status := r.status
	r.cache.Clear()
	r.mu.Unlock()

	close(r.done)

	logger.Info().
		Str("status", string(status)).
		Int("completed", summary.Completed).
		Int("failed", summary.Failed).
		Int("blocked", summary.Blocked).
		Int("cancelled", summary.Cancelled).
		Int("short_circuited", summary.ShortCircuited).
		Dur("elapsed", now.Sub(r.startedAt)).
		Msg("Run finished")
	o.observer.OnRunStatus(r.id, status)
}

// dispatch fills free worker slots from the ready queue. Units whose
// signature already has a cached result complete immediately without a
// worker; units whose type has no registered executor fail permanently.
func (o *Orchestrator) dispatch(r *run, logger zerolog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.running < o.cfg.MaxWorkers {
		unit, ok := r.queue.Dequeue()
		if !ok {
			return
		}
		node := unit.node

		// Short-circuit: equivalent work already completed in this run.
		if node.Cacheable && node.Idempotent {
			if cached, hit := r.cache.Get(r.sigs[unit.NodeID]); hit {
				o.completeFromCache(r, unit, cached, logger)
				continue
			}
		}

		o.mu.RLock()
		executor, exists := o.executors[node.Type]
		o.mu.RUnlock()
		if !exists {
			unit.LastError = NewExecutionError(
				fmt.Sprintf("no executor registered for task type %s", node.Type), nil).
				WithNode(unit.NodeID).WithCode(ErrCodeNoExecutor)
			o.failPermanently(r, unit, logger)
			continue
		}

		ctx, cancel := context.WithCancel(context.Background())
		unit.Status = UnitStatusRunning
		unit.DispatchTime = time.Now()
		unit.cancel = cancel
		r.running++
		o.observer.OnUnitStatus(r.id, unit.Snapshot())

		logger.Debug().
			Str("node_id", unit.NodeID).
			Str("type", string(node.Type)).
			Int("attempt", unit.RetryCount+1).
			Msg("Unit dispatched")

		go func(u *OrchestrationUnit, n *TaskNode) {
			result, err := executor.Execute(ctx, n)
			cancel()
			r.msgs <- message{kind: msgDone, nodeID: u.NodeID, result: result, err: err}
		}(unit, node)
	}
}

// handleDone processes a worker completion. Caller holds r.mu.
func (o *Orchestrator) handleDone(r *run, m message, logger zerolog.Logger) {
	unit := r.units[m.nodeID]
	if unit.Status != UnitStatusRunning {
		// The grace timer already reclaimed this slot.
		return
	}
	r.running--
	unit.cancel = nil

	if m.err == nil && !unit.cancelRequested {
		result := m.result
		if result == nil {
			result = &ExecutionResult{NodeID: unit.NodeID, CompletedAt: time.Now()}
		}
		unit.Status = UnitStatusCompleted
		unit.Result = result
		unit.LastError = nil
		if unit.node.Cacheable {
			r.cache.Put(r.sigs[unit.NodeID], result)
		}
		o.observer.OnUnitStatus(r.id, unit.Snapshot())
		logger.Debug().Str("node_id", unit.NodeID).Msg("Unit completed")
		o.readyDependents(r, unit.NodeID)
		return
	}

	if unit.cancelRequested || IsCancellation(m.err) {
		unit.Status = UnitStatusCancelled
		if m.err != nil {
			unit.LastError = asEngineError(m.err, unit.NodeID)
		}
		o.observer.OnUnitStatus(r.id, unit.Snapshot())
		logger.Debug().Str("node_id", unit.NodeID).Msg("Unit cancelled")
		o.cancelDependents(r, unit.NodeID, logger)
		return
	}

	unit.LastError = asEngineError(m.err, unit.NodeID)
	if IsRetryable(m.err) && unit.RetryCount < o.cfg.MaxRetries {
		unit.RetryCount++
		unit.Status = UnitStatusPending
		delay := o.backoff(unit.RetryCount)
		o.observer.OnUnitStatus(r.id, unit.Snapshot())
		logger.Warn().
			Str("node_id", unit.NodeID).
			Int("retry", unit.RetryCount).
			Dur("delay", delay).
			Err(m.err).
			Msg("Unit failed, retrying")
		nodeID := unit.NodeID
		time.AfterFunc(delay, func() {
			r.msgs <- message{kind: msgRetry, nodeID: nodeID}
		})
		return
	}

	if unit.RetryCount >= o.cfg.MaxRetries && IsRetryable(m.err) {
		unit.LastError = NewExecutionError(
			fmt.Sprintf("retries exhausted after %d attempts", unit.RetryCount+1), m.err).
			WithNode(unit.NodeID).WithCode(ErrCodeRetriesExhausted)
	}
	o.failPermanently(r, unit, logger)
}

// handleRetry re-queues a unit whose backoff timer fired. Caller holds r.mu.
func (o *Orchestrator) handleRetry(r *run, nodeID string, logger zerolog.Logger) {
	unit := r.units[nodeID]
	if unit.Status != UnitStatusPending {
		// Cancelled or blocked while backing off.
		return
	}
	o.markReady(r, unit)
}

// handleGrace reclaims the worker slot of a cancelled unit whose executor did
// not stop within the grace timeout. Caller holds r.mu.
func (o *Orchestrator) handleGrace(r *run, nodeID string, logger zerolog.Logger) {
	unit := r.units[nodeID]
	if unit.Status != UnitStatusRunning {
		return
	}
	r.running--
	unit.Status = UnitStatusCancelled
	unit.LastError = NewCancellationError("executor did not stop within grace timeout", nil).
		WithNode(nodeID)
	o.observer.OnUnitStatus(r.id, unit.Snapshot())
	logger.Warn().Str("node_id", nodeID).Msg("Grace timeout expired, slot reclaimed")
	o.cancelDependents(r, nodeID, logger)
}

// handleCancelRun cancels every non-terminal unit. Caller holds r.mu.
func (o *Orchestrator) handleCancelRun(r *run, logger zerolog.Logger) {
	if r.cancelled {
		return
	}
	r.cancelled = true
	logger.Info().Msg("Run cancellation requested")
	for _, id := range r.graph.NodeIDs() {
		o.cancelUnit(r, id, logger)
	}
}

// cancelUnit cancels one unit and, transitively, its dependents. Pending and
// ready units terminate immediately; running units are signalled and given
// the grace timeout. Caller holds r.mu.
func (o *Orchestrator) cancelUnit(r *run, nodeID string, logger zerolog.Logger) {
	unit := r.units[nodeID]
	if unit == nil || unit.Status.IsTerminal() {
		return
	}

	switch unit.Status {
	case UnitStatusPending, UnitStatusReady:
		r.queue.Remove(nodeID)
		unit.Status = UnitStatusCancelled
		unit.LastError = NewCancellationError("cancelled", nil).WithNode(nodeID)
		o.observer.OnUnitStatus(r.id, unit.Snapshot())
		o.cancelDependents(r, nodeID, logger)
	case UnitStatusRunning:
		if unit.cancelRequested {
			return
		}
		unit.cancelRequested = true
		if unit.cancel != nil {
			unit.cancel()
		}
		time.AfterFunc(o.cfg.CancelGraceTimeout, func() {
			r.msgs <- message{kind: msgGrace, nodeID: nodeID}
		})
		logger.Debug().Str("node_id", nodeID).Msg("Running unit signalled to stop")
	}
}

// cancelDependents cancels every active dependent of a cancelled unit.
// Caller holds r.mu.
func (o *Orchestrator) cancelDependents(r *run, nodeID string, logger zerolog.Logger) {
	for _, dependent := range r.graph.Dependents(nodeID) {
		o.cancelUnit(r, dependent, logger)
	}
}

// failPermanently marks a unit FAILED and blocks its dependents. Caller
// holds r.mu.
func (o *Orchestrator) failPermanently(r *run, unit *OrchestrationUnit, logger zerolog.Logger) {
	unit.Status = UnitStatusFailed
	o.observer.OnUnitStatus(r.id, unit.Snapshot())
	logger.Error().
		Str("node_id", unit.NodeID).
		Err(unit.LastError).
		Msg("Unit failed permanently")
	o.blockDependents(r, unit.NodeID, logger)
}

// blockDependents propagates a permanent failure: every dependent reached
// through a blocking edge becomes BLOCKED, transitively. Dependents whose
// edge carries the continue policy are left alone and become ready once
// their remaining dependencies are satisfied. Caller holds r.mu.
func (o *Orchestrator) blockDependents(r *run, nodeID string, logger zerolog.Logger) {
	for _, dependentID := range r.graph.Dependents(nodeID) {
		dependent := r.units[dependentID]
		if dependent.Status.IsTerminal() || dependent.Status == UnitStatusRunning {
			continue
		}

		policy := FailurePolicyBlock
		for _, dep := range dependent.node.Dependencies {
			if dep.NodeID == nodeID {
				policy = dep.OnFailure
				break
			}
		}
		if policy == FailurePolicyContinue {
			if o.depsSatisfied(r, dependentID) && dependent.Status == UnitStatusPending {
				o.markReady(r, dependent)
			}
			continue
		}

		r.queue.Remove(dependentID)
		dependent.Status = UnitStatusBlocked
		dependent.LastError = NewExecutionError(
			fmt.Sprintf("blocked by failed dependency %s", nodeID), nil).
			WithNode(dependentID)
		o.observer.OnUnitStatus(r.id, dependent.Snapshot())
		logger.Debug().
			Str("node_id", dependentID).
			Str("failed_dependency", nodeID).
			Msg("Unit blocked")
		o.blockDependents(r, dependentID, logger)
	}
}

// readyDependents promotes pending dependents whose dependencies are now all
// satisfied. Caller holds r.mu.
func (o *Orchestrator) readyDependents(r *run, nodeID string) {
	for _, dependentID := range r.graph.Dependents(nodeID) {
		dependent := r.units[dependentID]
		if dependent.Status != UnitStatusPending || dependent.RetryCount > 0 {
			continue
		}
		if o.depsSatisfied(r, dependentID) {
			o.markReady(r, dependent)
		}
	}
}

// depsSatisfied reports whether every dependency of the node is satisfied:
// completed, or terminal-failed behind a continue edge. Caller holds r.mu.
func (o *Orchestrator) depsSatisfied(r *run, nodeID string) bool {
	for _, dep := range r.graph.Node(nodeID).Dependencies {
		depUnit := r.units[dep.NodeID]
		switch depUnit.Status {
		case UnitStatusCompleted:
		case UnitStatusFailed, UnitStatusBlocked:
			if dep.OnFailure != FailurePolicyContinue {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// markReady transitions a pending unit to READY and enqueues it. Caller
// holds r.mu.
func (o *Orchestrator) markReady(r *run, unit *OrchestrationUnit) {
	unit.Status = UnitStatusReady
	if err := r.queue.Enqueue(unit); err != nil {
		// Only reachable through a scheduler bug; surface it as a permanent
		// failure rather than wedging the run.
		unit.LastError = asEngineError(err, unit.NodeID)
		unit.Status = UnitStatusFailed
	}
	o.observer.OnUnitStatus(r.id, unit.Snapshot())
}

// completeFromCache finishes a unit from the signature cache without
// dispatching a worker. Caller holds r.mu.
func (o *Orchestrator) completeFromCache(r *run, unit *OrchestrationUnit, cached *ExecutionResult, logger zerolog.Logger) {
	now := time.Now()
	result := *cached
	result.NodeID = unit.NodeID
	result.StartedAt = now
	result.CompletedAt = now
	result.Duration = 0
	result.FromCache = true

	unit.Status = UnitStatusCompleted
	unit.Result = &result
	o.observer.OnUnitStatus(r.id, unit.Snapshot())
	logger.Debug().Str("node_id", unit.NodeID).Msg("Unit short-circuited from cache")
	o.readyDependents(r, unit.NodeID)
}

// backoff returns the exponential retry delay with up to 10% jitter.
func (o *Orchestrator) backoff(retry int) time.Duration {
	delay := o.cfg.RetryBaseDelay << (retry - 1)
	if delay > o.cfg.RetryMaxDelay || delay <= 0 {
		delay = o.cfg.RetryMaxDelay
	}
	if jitterRange := int64(delay / 10); jitterRange > 0 {
		delay += time.Duration(rand.Int63n(jitterRange))
	}
	return delay
}

// snapshot builds a point-in-time view of the run.
func (r *run) snapshot() *RunSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := &RunSnapshot{
		RunID:     r.id,
		Status:    r.status,
		StartedAt: r.startedAt,
		Units:     make(map[string]UnitSnapshot, len(r.units)),
		Summary:   summarize(r.units),
	}
	if r.completedAt != nil {
		t := *r.completedAt
		snap.CompletedAt = &t
	}
	for id, unit := range r.units {
		snap.Units[id] = unit.Snapshot()
	}
	return snap
}

// summarize tallies unit statuses.
func summarize(units map[string]*OrchestrationUnit) RunSummary {
	summary := RunSummary{Total: len(units)}
	for _, unit := range units {
		switch unit.Status {
		case UnitStatusCompleted:
			summary.Completed++
			if unit.Result != nil && unit.Result.FromCache {
				summary.ShortCircuited++
			}
		case UnitStatusFailed:
			summary.Failed++
		case UnitStatusCancelled:
			summary.Cancelled++
		case UnitStatusBlocked:
			summary.Blocked++
		case UnitStatusPending:
			summary.Pending++
		case UnitStatusReady:
			summary.Ready++
		case UnitStatusRunning:
			summary.Running++
		}
	}
	return summary
}

// asEngineError coerces any error into a classified engine error.
func asEngineError(err error, nodeID string) *EngineError {
	if e, ok := err.(*EngineError); ok {
		if e.NodeID == "" {
			e.NodeID = nodeID
		}
		return e
	}
	return NewExecutionError(err.Error(), err).WithNode(nodeID)
}

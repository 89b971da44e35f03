// Package learning wires the pipeline together: a coordinator accepts
// validation events on a bounded queue, a single lazily started background
// goroutine folds them into patterns, analytics, and knowledge, and an
// advisory query surface reads the results back. The coordinator never
// blocks, never panics across its API, and never returns an error to a
// caller; when anything goes wrong it learns less, not worse.
package learning

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"vlearn/internal/analytics"
	"vlearn/internal/config"
	"vlearn/internal/knowledge"
	"vlearn/internal/logging"
	"vlearn/internal/patterns"
	"vlearn/internal/safety"
	"vlearn/internal/store"
	"vlearn/internal/types"
)

// Coordinator states.
const (
	StateDisabled int32 = iota
	StateIdle
	StateProcessing
	StateShuttingDown
)

// stateName maps a state word to its health-report label.
func stateName(s int32) string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// insightTimeout bounds every advisory query.
const insightTimeout = 2 * time.Second

// shutdownWait bounds how long Shutdown waits for the worker to drain.
const shutdownWait = 5 * time.Second

// persistOp is the breaker operation key for the persistence path.
const persistOp = "persist"

type counters struct {
	submitted      atomic.Int64
	processed      atomic.Int64
	droppedFull    atomic.Int64
	droppedUnsafe  atomic.Int64
	droppedInvalid atomic.Int64
	failures       atomic.Int64
	panics         atomic.Int64
}

// Coordinator is the learning pipeline's front door.
type Coordinator struct {
	cfg config.Config

	resources *safety.ResourceMonitor
	storage   *safety.StorageMonitor
	breaker   *safety.FailureManager

	patterns  *patterns.Memory
	analytics *analytics.Service
	knowledge *knowledge.Base

	state atomic.Int32
	queue chan types.ValidationEvent
	stop  chan struct{}
	done  chan struct{}

	startOnce    sync.Once
	shutdownOnce sync.Once
	started      atomic.Bool

	counters     counters
	lastActivity atomic.Int64 // unix nanos
}

// NewCoordinator builds a coordinator for the given configuration. A
// disabled mode, or any failure to construct the persistence layer, yields
// a permanently disabled coordinator that still answers every call.
func NewCoordinator(cfg config.Config) *Coordinator {
	c := &Coordinator{
		cfg:   cfg,
		queue: make(chan types.ValidationEvent, cfg.QueueCapacity),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	if !cfg.Enabled() {
		c.state.Store(StateDisabled)
		logging.Learning("coordinator created disabled (mode=%s)", cfg.Mode)
		return c
	}

	if err := c.initServices(); err != nil {
		logging.Get(logging.CategoryLearning).Error("persistence unavailable, disabling learning: %v", err)
		c.closeServices()
		c.state.Store(StateDisabled)
		return c
	}

	c.resources = safety.NewResourceMonitor(cfg.Limits.MaxMemoryMB, cfg.Limits.MaxCPUPercent)
	c.storage = safety.NewStorageMonitor(cfg.StoragePath, cfg.Limits.MaxStorageMB)
	c.breaker = safety.NewFailureManager(cfg.Breaker.ErrorThreshold, cfg.Breaker.Cooldown())
	c.state.Store(StateIdle)
	logging.Learning("coordinator ready: mode=%s queue=%d storage=%s", cfg.Mode, cfg.QueueCapacity, cfg.StoragePath)
	return c
}

func (c *Coordinator) initServices() error {
	ps, err := store.NewPatternStore(filepath.Join(c.cfg.StoragePath, "patterns.db"))
	if err != nil {
		return fmt.Errorf("pattern store: %w", err)
	}
	c.patterns = patterns.NewMemory(ps, nil, c.cfg.PatternCacheSize)

	if c.cfg.Features.Analytics {
		es, err := store.NewEventStore(filepath.Join(c.cfg.StoragePath, "analytics.db"))
		if err != nil {
			return fmt.Errorf("event store: %w", err)
		}
		c.analytics = analytics.NewService(es, c.cfg.HistorySize, c.cfg.Features.Prediction)
	}

	ks, err := store.NewKnowledgeStore(filepath.Join(c.cfg.StoragePath, "knowledge.db"))
	if err != nil {
		return fmt.Errorf("knowledge store: %w", err)
	}
	c.knowledge = knowledge.NewBase(ks)
	return nil
}

// closeServices releases whatever stores were constructed before an
// initialization failure.
func (c *Coordinator) closeServices() {
	if c.patterns != nil {
		_ = c.patterns.Close()
	}
	if c.analytics != nil {
		_ = c.analytics.Close()
	}
	if c.knowledge != nil {
		_ = c.knowledge.Close()
	}
}

// LearnFromValidation submits one validation outcome. It never blocks: a
// disabled coordinator ignores it with a single atomic load, and events are
// dropped (newest first) when the breaker is open, resources are tight, or
// the queue is full. It never returns anything; learning is fire-and-forget.
func (c *Coordinator) LearnFromValidation(event types.ValidationEvent) {
	defer func() {
		if r := recover(); r != nil {
			c.counters.panics.Add(1)
			logging.Get(logging.CategoryLearning).Error("submit panicked: %v", r)
		}
	}()

	state := c.state.Load()
	if state == StateDisabled || state == StateShuttingDown {
		return
	}

	if !event.Normalize() {
		c.counters.droppedInvalid.Add(1)
		return
	}
	if !c.breaker.IsOperationSafe(persistOp) {
		c.counters.droppedUnsafe.Add(1)
		return
	}
	if !c.resources.CanLearn() || !c.storage.WithinLimit() {
		c.counters.droppedUnsafe.Add(1)
		logging.SafetyDebug("resource gate closed, dropping event %s", event.EventID)
		return
	}

	c.startOnce.Do(c.startWorker)

	select {
	case c.queue <- event:
		c.counters.submitted.Add(1)
	default:
		c.counters.droppedFull.Add(1)
	}
}

func (c *Coordinator) startWorker() {
	c.started.Store(true)
	go c.run()
	logging.Learning("background worker started")
}

// run is the single background worker. It processes queued events until the
// stop channel closes, then drains what remains within a bounded window.
func (c *Coordinator) run() {
	defer close(c.done)
	for {
		select {
		case <-c.stop:
			c.drain()
			return
		case event := <-c.queue:
			c.handle(event)
		}
	}
}

func (c *Coordinator) drain() {
	deadline := time.After(shutdownWait)
	for {
		select {
		case event := <-c.queue:
			c.handle(event)
		case <-deadline:
			logging.Learning("drain window elapsed with %d events queued", len(c.queue))
			return
		default:
			return
		}
	}
}

// handle folds one event into every service. A panic is contained here so
// one poisoned event cannot kill the worker.
func (c *Coordinator) handle(event types.ValidationEvent) {
	defer func() {
		if r := recover(); r != nil {
			c.counters.panics.Add(1)
			logging.Get(logging.CategoryLearning).Error("processing panicked on %s: %v", event.EventID, r)
		}
	}()

	c.state.CompareAndSwap(StateIdle, StateProcessing)
	defer c.state.CompareAndSwap(StateProcessing, StateIdle)

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), insightTimeout)
	defer cancel()

	c.patterns.StorePattern(ctx, event)

	var persistErr error
	if c.analytics != nil {
		persistErr = c.analytics.RecordEvent(ctx, event, time.Since(start))
	}
	if err := c.knowledge.ObserveEvent(ctx, event); err != nil && persistErr == nil {
		persistErr = err
	}

	if persistErr != nil {
		c.counters.failures.Add(1)
		c.breaker.RecordFailure(persistOp)
		logging.LearningDebug("persistence failed for %s: %v", event.EventID, persistErr)
	} else {
		c.breaker.RecordSuccess(persistOp)
	}

	c.counters.processed.Add(1)
	c.lastActivity.Store(time.Now().UnixNano())
}

// GetValidationInsights answers an advisory query for a validation context.
// It combines the analytics view of comparable history with similar stored
// patterns. A disabled coordinator, an empty context, or a question no
// service can answer all yield nil; nil is a normal outcome, not an error.
func (c *Coordinator) GetValidationInsights(ctx context.Context, queryContext map[string]interface{}) (insights *types.ValidationInsights) {
	defer func() {
		if r := recover(); r != nil {
			c.counters.panics.Add(1)
			logging.Get(logging.CategoryLearning).Error("insight query panicked: %v", r)
			insights = nil
		}
	}()

	if c.state.Load() == StateDisabled || len(queryContext) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, insightTimeout)
	defer cancel()

	if c.analytics != nil {
		insights = c.analytics.GenerateInsights(ctx, queryContext)
	}

	matches := c.patterns.FindSimilarPatterns(ctx, queryContext, 5)
	if len(matches) > 0 {
		best := matches[0]
		if insights == nil {
			insights = &types.ValidationInsights{
				InsightType: "pattern_match",
				Confidence:  best.Similarity * best.Pattern.SuccessRate,
				GeneratedAt: time.Now().UTC(),
			}
		}
		for _, m := range matches {
			insights.MatchedPatterns = append(insights.MatchedPatterns, m.Pattern.PatternID)
		}
		// Pattern memory can answer the success question even when the
		// analytics sample is too thin: the best match's running rate is
		// the prediction.
		if !hasPrediction(insights, "success_probability") {
			n := float64(best.Pattern.UsageCount)
			insights.Predictions = append(insights.Predictions, types.Prediction{
				Kind:       "success_probability",
				Value:      best.Pattern.SuccessRate,
				Confidence: best.Similarity * n / (n + 5),
				SampleSize: int(best.Pattern.UsageCount),
			})
		}
	}
	return insights
}

func hasPrediction(insights *types.ValidationInsights, kind string) bool {
	for _, p := range insights.Predictions {
		if p.Kind == kind {
			return true
		}
	}
	return false
}

// HealthStatus reports the coordinator's current state. It always succeeds,
// in every state, and touches storage only when the pipeline is enabled.
func (c *Coordinator) HealthStatus() types.HealthStatus {
	state := c.state.Load()
	status := types.HealthStatus{
		Mode:          c.cfg.Mode,
		State:         stateName(state),
		QueueDepth:    len(c.queue),
		QueueCapacity: cap(c.queue),
		Counters: types.HealthCounters{
			Submitted:      c.counters.submitted.Load(),
			Processed:      c.counters.processed.Load(),
			DroppedFull:    c.counters.droppedFull.Load(),
			DroppedUnsafe:  c.counters.droppedUnsafe.Load(),
			DroppedInvalid: c.counters.droppedInvalid.Load(),
			Failures:       c.counters.failures.Load(),
			Panics:         c.counters.panics.Load(),
		},
	}
	if last := c.lastActivity.Load(); last > 0 {
		status.LastActivity = time.Unix(0, last).UTC()
	}
	if state == StateDisabled || state == StateShuttingDown {
		return status
	}

	status.SafeToLearn = c.breaker.IsOperationSafe(persistOp) &&
		c.resources.CanLearn() && c.storage.WithinLimit()

	ctx, cancel := context.WithTimeout(context.Background(), insightTimeout)
	defer cancel()
	status.StoreCounts = map[string]int64{
		"patterns":  c.patterns.StoredCount(ctx),
		"knowledge": c.knowledge.StoredCount(ctx),
	}
	if c.analytics != nil {
		status.StoreCounts["events"] = c.analytics.StoredCount(ctx)
	}
	return status
}

// Shutdown stops the worker, drains the queue within a bounded window, and
// closes every store. It is idempotent and never surfaces an error; partial
// failures are logged and the coordinator ends up disabled either way.
func (c *Coordinator) Shutdown() {
	c.shutdownOnce.Do(func() {
		prev := c.state.Swap(StateShuttingDown)
		if prev == StateDisabled {
			c.state.Store(StateDisabled)
			return
		}
		logging.Learning("shutting down")

		close(c.stop)
		if c.started.Load() {
			select {
			case <-c.done:
			case <-time.After(shutdownWait + time.Second):
				logging.Get(logging.CategoryLearning).Warn("worker did not stop in time")
			}
		}

		var g errgroup.Group
		g.Go(c.patterns.Close)
		g.Go(c.knowledge.Close)
		if c.analytics != nil {
			g.Go(c.analytics.Close)
		}
		if err := g.Wait(); err != nil {
			logging.Get(logging.CategoryLearning).Error("store close failed: %v", err)
		}

		c.state.Store(StateDisabled)
		logging.Learning("shutdown complete: processed=%d", c.counters.processed.Load())
	})
}

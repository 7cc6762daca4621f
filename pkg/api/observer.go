package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the run coordinator for logging and
// metrics.
//
// Implementations should be fast and non-blocking; heavy work should be
// done asynchronously so as not to delay step execution.
type Observer interface {
	// OnRunStart is called once per invocation, before planning.
	OnRunStart(ctx context.Context, rc RunContext)

	// OnPlanComputed is called with the ordered steps the resolver
	// selected for this invocation.
	OnPlanComputed(ctx context.Context, rc RunContext, plan []string)

	// OnStepStart is called before invoking a step handler.
	// stepIndex is the 0-based position in the pipeline order.
	OnStepStart(ctx context.Context, rc RunContext, stepName string, stepIndex int)

	// OnStepCompleted is called after a step handler returns, for both
	// successes and failures (err != nil).
	OnStepCompleted(ctx context.Context, rc RunContext, stepName string, stepIndex int, err error, duration time.Duration)

	// OnRunCompleted is called when a run finishes all planned steps and
	// cleanup succeeds.
	OnRunCompleted(ctx context.Context, rc RunContext)

	// OnRunFailed is called when a run fails.
	OnRunFailed(ctx context.Context, rc RunContext, err error)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnRunStart(ctx context.Context, rc RunContext)                          {}
func (NoopObserver) OnPlanComputed(ctx context.Context, rc RunContext, plan []string)       {}
func (NoopObserver) OnStepStart(ctx context.Context, rc RunContext, stepName string, i int) {}
func (NoopObserver) OnStepCompleted(ctx context.Context, rc RunContext, stepName string, i int, err error, d time.Duration) {
}
func (NoopObserver) OnRunCompleted(ctx context.Context, rc RunContext)            {}
func (NoopObserver) OnRunFailed(ctx context.Context, rc RunContext, err error)    {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnRunStart(ctx context.Context, rc RunContext) {
	for _, o := range c.observers {
		o.OnRunStart(ctx, rc)
	}
}

func (c *CompositeObserver) OnPlanComputed(ctx context.Context, rc RunContext, plan []string) {
	for _, o := range c.observers {
		o.OnPlanComputed(ctx, rc, plan)
	}
}

func (c *CompositeObserver) OnStepStart(ctx context.Context, rc RunContext, stepName string, i int) {
	for _, o := range c.observers {
		o.OnStepStart(ctx, rc, stepName, i)
	}
}

func (c *CompositeObserver) OnStepCompleted(ctx context.Context, rc RunContext, stepName string, i int, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnStepCompleted(ctx, rc, stepName, i, err, d)
	}
}

func (c *CompositeObserver) OnRunCompleted(ctx context.Context, rc RunContext) {
	for _, o := range c.observers {
		o.OnRunCompleted(ctx, rc)
	}
}

func (c *CompositeObserver) OnRunFailed(ctx context.Context, rc RunContext, err error) {
	for _, o := range c.observers {
		o.OnRunFailed(ctx, rc, err)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs run / step lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnRunStart(ctx context.Context, rc RunContext) {
	o.Logger.InfoContext(ctx, "run_start",
		slog.String("pipeline", rc.Pipeline),
		slog.String("run_id", rc.RunID),
	)
}

func (o *LoggingObserver) OnPlanComputed(ctx context.Context, rc RunContext, plan []string) {
	o.Logger.InfoContext(ctx, "plan_computed",
		slog.String("pipeline", rc.Pipeline),
		slog.String("run_id", rc.RunID),
		slog.Any("steps", plan),
	)
}

func (o *LoggingObserver) OnStepStart(ctx context.Context, rc RunContext, stepName string, i int) {
	o.Logger.DebugContext(ctx, "step_start",
		slog.String("pipeline", rc.Pipeline),
		slog.String("run_id", rc.RunID),
		slog.String("step", stepName),
		slog.Int("step_index", i),
	)
}

func (o *LoggingObserver) OnStepCompleted(ctx context.Context, rc RunContext, stepName string, i int, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "step_completed",
		slog.String("pipeline", rc.Pipeline),
		slog.String("run_id", rc.RunID),
		slog.String("step", stepName),
		slog.Int("step_index", i),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnRunCompleted(ctx context.Context, rc RunContext) {
	o.Logger.InfoContext(ctx, "run_completed",
		slog.String("pipeline", rc.Pipeline),
		slog.String("run_id", rc.RunID),
	)
}

func (o *LoggingObserver) OnRunFailed(ctx context.Context, rc RunContext, err error) {
	o.Logger.ErrorContext(ctx, "run_failed",
		slog.String("pipeline", rc.Pipeline),
		slog.String("run_id", rc.RunID),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters and aggregate step durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	runsStarted       atomic.Int64
	runsCompleted     atomic.Int64
	runsFailed        atomic.Int64
	stepsCompleted    atomic.Int64
	totalStepDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	RunsStarted   int64
	RunsCompleted int64
	RunsFailed    int64
	PendingRuns   int64

	StepsCompleted  int64
	AvgStepDuration time.Duration
}

func (m *BasicMetrics) OnRunStart(ctx context.Context, rc RunContext) {
	m.runsStarted.Add(1)
}

func (m *BasicMetrics) OnRunCompleted(ctx context.Context, rc RunContext) {
	m.runsCompleted.Add(1)
}

func (m *BasicMetrics) OnRunFailed(ctx context.Context, rc RunContext, err error) {
	m.runsFailed.Add(1)
}

func (m *BasicMetrics) OnStepCompleted(ctx context.Context, rc RunContext, stepName string, i int, err error, d time.Duration) {
	// Only count successful steps for average duration.
	if err == nil {
		m.stepsCompleted.Add(1)
		m.totalStepDuration.Add(d.Nanoseconds())
	}
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.runsStarted.Load()
	completed := m.runsCompleted.Load()
	failed := m.runsFailed.Load()
	steps := m.stepsCompleted.Load()
	totalNs := m.totalStepDuration.Load()

	var avg time.Duration
	if steps > 0 {
		avg = time.Duration(totalNs / steps)
	}

	return BasicMetricsSnapshot{
		RunsStarted:     started,
		RunsCompleted:   completed,
		RunsFailed:      failed,
		PendingRuns:     started - completed - failed,
		StepsCompleted:  steps,
		AvgStepDuration: avg,
	}
}

package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/stepflow/internal/persistence"
	"github.com/petrijr/stepflow/internal/plan"
	"github.com/petrijr/stepflow/pkg/api"
)

// Config describes how to construct a coordinator.
// Only used inside this package; external callers use the stepflow root
// package constructors.
type Config struct {
	Definition  api.PipelineDefinition
	Handlers    map[string]api.HandlerFunc
	StepConfigs map[string]api.StepConfig

	Stores persistence.Stores

	// Root is the namespace root directory. When set, the run id is
	// anchored there and reused across resumes; when empty (in-memory
	// setups) a fresh id is generated per invocation.
	Root string

	Observer api.Observer
	Logger   *slog.Logger
}

// coordinator drives one pipeline against one run namespace. It is
// strictly sequential across steps: step N+1 never begins before step N's
// state and checkpoint writes complete. Only the fan-out executor inside
// a handler introduces parallelism, never the coordinator itself.
type coordinator struct {
	def         api.PipelineDefinition
	registry    *handlerRegistry
	stepConfigs map[string]api.StepConfig

	checkpoints persistence.CheckpointStore
	states      persistence.StateStore
	metadata    persistence.MetadataStore
	runs        persistence.RunStore

	root     string
	observer api.Observer
	logger   *slog.Logger
}

// New validates the configuration, resolves every pipeline step against
// the handler map, and returns a ready orchestrator. An unknown or nil
// handler fails here, before anything runs.
func New(cfg Config) (api.Orchestrator, error) {
	if err := cfg.Definition.Validate(); err != nil {
		return nil, &api.ConfigError{Err: err}
	}
	if cfg.Stores.Checkpoints == nil || cfg.Stores.States == nil || cfg.Stores.Metadata == nil {
		return nil, &api.ConfigError{Err: errors.New("checkpoint, state and metadata stores are required")}
	}

	registry := newHandlerRegistry()
	for name, fn := range cfg.Handlers {
		if err := registry.Register(name, fn); err != nil {
			return nil, &api.ConfigError{Err: err}
		}
	}
	for _, s := range cfg.Definition.Steps {
		if _, err := registry.Resolve(s.Name); err != nil {
			return nil, err
		}
	}

	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &coordinator{
		def:         cfg.Definition,
		registry:    registry,
		stepConfigs: cfg.StepConfigs,
		checkpoints: cfg.Stores.Checkpoints,
		states:      cfg.Stores.States,
		metadata:    cfg.Stores.Metadata,
		runs:        cfg.Stores.Runs,
		root:        cfg.Root,
		observer:    obs,
		logger:      logger,
	}, nil
}

func (c *coordinator) Pipeline() api.PipelineDefinition {
	return c.def
}

func (c *coordinator) Run(ctx context.Context, opts api.RunOptions) (*api.RunResult, error) {
	rc, err := c.initRun()
	if err != nil {
		return nil, err
	}
	logger := c.logger.With(
		slog.String("pipeline", rc.Pipeline),
		slog.String("run_id", rc.RunID),
	)

	c.observer.OnRunStart(ctx, rc)

	record := &api.RunRecord{
		ID:        rc.RunID,
		Pipeline:  rc.Pipeline,
		Status:    api.StatusRunning,
		StartedAt: time.Now(),
	}
	if err := c.recordRun(record); err != nil {
		c.observer.OnRunFailed(ctx, rc, err)
		return nil, err
	}

	resolver := &plan.Resolver{
		Checkpoints: c.checkpoints,
		States:      c.states,
		Logger:      logger,
	}
	required, err := resolver.Plan(c.def, opts)
	if err != nil {
		c.failRun(ctx, rc, record, err)
		return nil, err
	}
	c.observer.OnPlanComputed(ctx, rc, required)
	logger.Info("execution plan resolved", slog.Any("steps", required))

	working, err := c.loadDependencies(required)
	if err != nil {
		c.failRun(ctx, rc, record, err)
		return nil, err
	}

	for _, step := range required {
		record.CurrentStep = step
		_ = c.updateRun(record)

		if err := c.executeStep(ctx, rc, step, working, logger); err != nil {
			c.failRun(ctx, rc, record, err)
			return nil, err
		}
	}

	if err := c.cleanup(); err != nil {
		c.failRun(ctx, rc, record, err)
		return nil, err
	}

	record.Status = api.StatusCompleted
	record.FinishedAt = time.Now()
	_ = c.updateRun(record)

	c.observer.OnRunCompleted(ctx, rc)
	logger.Info("pipeline completed successfully")

	return &api.RunResult{
		RunID:    rc.RunID,
		Executed: required,
		Data:     working,
	}, nil
}

// initRun establishes the run identity. Filesystem namespaces reuse the
// persisted run id across resumes; in-memory setups get a fresh one.
func (c *coordinator) initRun() (api.RunContext, error) {
	var (
		id  string
		err error
	)
	if c.root != "" {
		id, err = persistence.LoadOrCreateRunID(c.root)
		if err != nil {
			return api.RunContext{}, &api.PersistenceError{Op: "load run id", Err: err}
		}
	} else {
		id = uuid.NewString()
	}

	return api.RunContext{
		RunID:    id,
		Pipeline: c.def.Name,
		Root:     c.root,
	}, nil
}

// loadDependencies preloads the first planned step's declared dependency
// payloads from the state store when this invocation is a resume rather
// than a cold start.
func (c *coordinator) loadDependencies(required []string) (map[string]api.Payload, error) {
	working := make(map[string]api.Payload)
	if len(required) == 0 {
		return working, nil
	}

	done, err := c.checkpoints.ListDone()
	if err != nil {
		return nil, &api.PersistenceError{Op: "list checkpoints", Err: err}
	}
	if len(done) == 0 {
		// Cold start: nothing to reload.
		return working, nil
	}

	first, _ := c.def.Step(required[0])
	for _, dep := range first.DependsOn {
		payload, err := c.states.Load(dep)
		if err != nil {
			return nil, &api.PersistenceError{Op: "load dependency state", Step: dep, Err: err}
		}
		working[dep] = payload
	}
	return working, nil
}

func (c *coordinator) executeStep(ctx context.Context, rc api.RunContext, step string, working map[string]api.Payload, logger *slog.Logger) error {
	idx := c.def.StepIndex(step)
	stepDef := c.def.Steps[idx]

	// The step's input is the immediately preceding step's payload: its
	// in-memory output when it ran earlier in this invocation, otherwise
	// whatever dependency data was reloaded for the resume.
	var input api.Payload
	var prev string
	if idx > 0 {
		prev = c.def.Steps[idx-1].Name
		input = working[prev]
	}

	handler, err := c.registry.Resolve(step)
	if err != nil {
		return err
	}

	stepLogger := logger.With(slog.String("step", step))
	c.observer.OnStepStart(ctx, rc, step, idx)

	start := time.Now()
	output, handlerErr := c.invokeWithRetry(ctx, stepDef, handler, input, stepLogger)
	end := time.Now()

	c.observer.OnStepCompleted(ctx, rc, step, idx, handlerErr, end.Sub(start))

	if handlerErr != nil {
		// Best-effort failure record; no checkpoint or state is written
		// for a failed step.
		md := api.NewStepMetadata(step, api.StatusFailed, start, end, input.Descriptors(), nil, handlerErr)
		if err := c.metadata.Append(step, md); err != nil {
			stepLogger.Warn("failed to record failure metadata", slog.Any("error", err))
		}
		return &api.HandlerError{Step: step, Err: handlerErr}
	}

	// State first, checkpoint second: a marker must never exist without
	// its durable state.
	if err := c.states.Save(step, output); err != nil {
		return &api.PersistenceError{Op: "save state", Step: step, Err: err}
	}
	if err := c.checkpoints.MarkDone(step); err != nil {
		return &api.PersistenceError{Op: "mark checkpoint", Step: step, Err: err}
	}

	md := api.NewStepMetadata(step, api.StatusCompleted, start, end, input.Descriptors(), output.Descriptors(), nil)
	if err := c.metadata.Append(step, md); err != nil {
		return &api.PersistenceError{Op: "append metadata", Step: step, Err: err}
	}

	working[step] = output
	if prev != "" {
		// The predecessor's payload is superseded; drop it to bound
		// memory over long pipelines.
		delete(working, prev)
	}

	stepLogger.Info("step completed", slog.Duration("duration", end.Sub(start)))
	return nil
}

// invokeWithRetry runs the handler under the step's retry policy.
// Without a policy the handler gets exactly one attempt.
func (c *coordinator) invokeWithRetry(ctx context.Context, stepDef api.StepDefinition, handler api.HandlerFunc, input api.Payload, logger *slog.Logger) (api.Payload, error) {
	maxAttempts := 1
	var (
		backoff    time.Duration
		maxBackoff time.Duration
		multiplier float64
	)
	if stepDef.Retry != nil {
		if stepDef.Retry.MaxAttempts > 0 {
			maxAttempts = stepDef.Retry.MaxAttempts
		}
		backoff = stepDef.Retry.InitialBackoff
		maxBackoff = stepDef.Retry.MaxBackoff
		multiplier = stepDef.Retry.BackoffMultiplier
		if multiplier <= 0 {
			multiplier = 2.0
		}
	}

	cfg := c.stepConfigs[stepDef.Name]

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return api.Payload{}, ctx.Err()
		default:
		}

		output, err := handler(ctx, input, cfg, logger)
		if err == nil {
			return output, nil
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}
		logger.Warn("step attempt failed, retrying",
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)

		if backoff > 0 {
			delay := backoff
			if maxBackoff > 0 && delay > maxBackoff {
				delay = maxBackoff
			}
			select {
			case <-ctx.Done():
				return api.Payload{}, ctx.Err()
			case <-time.After(delay):
			}
			backoff = time.Duration(float64(backoff) * multiplier)
			if maxBackoff > 0 && backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}

	return api.Payload{}, lastErr
}

// cleanup empties the run's checkpoint and state namespaces after a fully
// successful run. Metadata history is untouched; the run id is reset so
// the next invocation starts a fresh run.
func (c *coordinator) cleanup() error {
	if err := c.checkpoints.Clear(); err != nil {
		return &api.PersistenceError{Op: "clear checkpoints", Err: err}
	}
	if err := c.states.Clear(); err != nil {
		return &api.PersistenceError{Op: "clear state", Err: err}
	}
	if c.root != "" {
		if err := persistence.ResetRunID(c.root); err != nil {
			return &api.PersistenceError{Op: "reset run id", Err: err}
		}
	}
	return nil
}

func (c *coordinator) failRun(ctx context.Context, rc api.RunContext, record *api.RunRecord, err error) {
	record.Status = api.StatusFailed
	record.FinishedAt = time.Now()
	record.Err = err
	_ = c.updateRun(record)

	c.observer.OnRunFailed(ctx, rc, err)
}

// recordRun inserts the run record, or refreshes it when this invocation
// resumes an id already present in the history store.
func (c *coordinator) recordRun(record *api.RunRecord) error {
	if c.runs == nil {
		return nil
	}
	if _, err := c.runs.GetRun(record.ID); err == nil {
		return c.runs.UpdateRun(record)
	} else if !errors.Is(err, persistence.ErrRunNotFound) {
		return &api.PersistenceError{Op: "load run record", Err: err}
	}
	if err := c.runs.SaveRun(record); err != nil {
		return &api.PersistenceError{Op: "save run record", Err: err}
	}
	return nil
}

func (c *coordinator) updateRun(record *api.RunRecord) error {
	if c.runs == nil {
		return nil
	}
	return c.runs.UpdateRun(record)
}

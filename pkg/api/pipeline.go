package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Status represents the lifecycle state of a run or a step execution.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// StepConfig carries the per-step parameters from the pipeline
// configuration. Handlers look up what they need by key.
type StepConfig map[string]any

// String returns the string value stored under key, or def when the key
// is absent or holds a non-string.
func (c StepConfig) String(key, def string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return def
}

// Int returns the int value stored under key, or def when absent.
// YAML decoding may produce int or int64; both are accepted.
func (c StepConfig) Int(key string, def int) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return def
	}
}

// HandlerFunc is the business logic of a single pipeline step.
//
// It receives the payload resolved for it by the coordinator (the
// predecessor step's output, fresh or reloaded from the state store), its
// step-scoped configuration, and a logger. It returns the payload to
// persist for this step, or an error that fails the run.
type HandlerFunc func(ctx context.Context, input Payload, cfg StepConfig, logger *slog.Logger) (Payload, error)

// RetryPolicy controls how a step handler is retried when it returns an
// error. MaxAttempts includes the first attempt:
//
//	MaxAttempts = 1 => no retries (just the initial call)
//	MaxAttempts = 3 => initial call + up to 2 retries
//
// InitialBackoff is the delay before the second attempt. Each subsequent
// retry multiplies the delay by BackoffMultiplier (default 2.0), capped at
// MaxBackoff when set.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// StepDefinition describes a named step in a pipeline.
type StepDefinition struct {
	Name string

	// DependsOn lists earlier steps whose persisted state must be
	// reloaded before this step runs after a resume. It never changes
	// execution order, which is the pipeline order itself.
	DependsOn []string

	Retry *RetryPolicy
}

// PipelineDefinition is an ordered sequence of uniquely named steps.
// Insertion order is execution order.
type PipelineDefinition struct {
	Name  string
	Steps []StepDefinition
}

// StepNames returns the step names in execution order.
func (d PipelineDefinition) StepNames() []string {
	names := make([]string, len(d.Steps))
	for i, s := range d.Steps {
		names[i] = s.Name
	}
	return names
}

// StepIndex returns the position of the named step, or -1.
func (d PipelineDefinition) StepIndex(name string) int {
	for i, s := range d.Steps {
		if s.Name == name {
			return i
		}
	}
	return -1
}

// Step returns the definition of the named step.
func (d PipelineDefinition) Step(name string) (StepDefinition, bool) {
	i := d.StepIndex(name)
	if i < 0 {
		return StepDefinition{}, false
	}
	return d.Steps[i], true
}

// Validate checks the structural invariants of the definition: a non-empty
// name, at least one step, unique step names, and every declared
// dependency appearing earlier in the order than its dependent.
func (d PipelineDefinition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("pipeline name is required")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("pipeline must have at least one step")
	}

	seen := make(map[string]int, len(d.Steps))
	for i, s := range d.Steps {
		if s.Name == "" {
			return fmt.Errorf("step %d has no name", i)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("duplicate step name: %s", s.Name)
		}
		seen[s.Name] = i
	}

	for i, s := range d.Steps {
		for _, dep := range s.DependsOn {
			j, ok := seen[dep]
			if !ok {
				return fmt.Errorf("step %s depends on unknown step %s", s.Name, dep)
			}
			if j >= i {
				return fmt.Errorf("step %s depends on %s, which does not precede it", s.Name, dep)
			}
		}
	}

	return nil
}

// RunContext identifies one run of a pipeline against a namespace. It is
// passed explicitly through the coordinator, the resolver and the stores;
// there is no process-global run state.
type RunContext struct {
	// RunID is generated once per namespace and reused across resumes.
	RunID string

	// Pipeline is the pipeline name the run belongs to.
	Pipeline string

	// Root is the namespace root directory holding the checkpoint, state
	// and metrics subtrees for this run.
	Root string
}

// RunOptions carries the optional resolver overrides for one invocation.
// Zero values mean "resume automatically, run to the last step".
type RunOptions struct {
	// FailedStep forces re-execution forward from the step after it,
	// regardless of existing checkpoints. Used after an
	// operator-diagnosed failure.
	FailedStep string

	// TargetStep stops the plan at the named step (inclusive). Defaults
	// to the last step of the pipeline.
	TargetStep string
}

// RunResult is returned by a successful run.
type RunResult struct {
	RunID string

	// Executed lists the steps that actually ran in this invocation, in
	// order.
	Executed []string

	// Data is the accumulated working set: every executed step's output
	// plus any dependency payloads carried forward for resume.
	Data map[string]Payload
}

// RunRecord is the audit-trail entry for one run, persisted in the run
// history store across invocations and never removed by cleanup.
type RunRecord struct {
	ID          string
	Pipeline    string
	Status      Status
	CurrentStep string
	StartedAt   time.Time
	FinishedAt  time.Time
	Err         error
}

// Orchestrator drives a pipeline against a run namespace.
type Orchestrator interface {
	// Pipeline returns the immutable definition the orchestrator was
	// built with.
	Pipeline() PipelineDefinition

	// Run plans and executes the steps required for this invocation,
	// resuming from durable checkpoints when they exist. On success the
	// checkpoint and state namespaces are emptied; metadata history is
	// kept. On handler failure the namespace is left intact so a second
	// invocation resumes past the completed work.
	Run(ctx context.Context, opts RunOptions) (*RunResult, error)
}

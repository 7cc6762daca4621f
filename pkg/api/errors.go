package api

import (
	"errors"
	"fmt"
)

// ConfigError reports a malformed or missing pipeline configuration. It is
// fatal and aborts before any step runs.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid configuration: %v", e.Err)
	}
	return fmt.Sprintf("invalid configuration %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// InvalidStepError reports a step name that is not part of the pipeline,
// either as a resolver override or as an unregistered handler. It is
// raised before any step executes.
type InvalidStepError struct {
	Step string
}

func (e *InvalidStepError) Error() string {
	return fmt.Sprintf("invalid step: %s", e.Step)
}

// StateInconsistencyError marks a checkpoint that has no matching state
// record. The resolver recovers from it automatically by planning a full
// restart; it is surfaced only through logs, never as a run failure.
type StateInconsistencyError struct {
	Step string
}

func (e *StateInconsistencyError) Error() string {
	return fmt.Sprintf("checkpoint for step %s has no state record", e.Step)
}

// HandlerError wraps a step handler failure with the step it originated
// from. It is fatal to the run; the run namespace is left intact for
// diagnosis and retry.
type HandlerError struct {
	Step string
	Err  error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// PersistenceError wraps a checkpoint or state store failure. It aborts
// the current step immediately; because state is written before the
// checkpoint, it can never leave a checkpoint without matching state.
type PersistenceError struct {
	Op   string
	Step string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s for step %s: %v", e.Op, e.Step, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// FailedStep returns the failing step's name if err is (or wraps) a
// HandlerError.
func FailedStep(err error) (string, bool) {
	var h *HandlerError
	if errors.As(err, &h) {
		return h.Step, true
	}
	return "", false
}

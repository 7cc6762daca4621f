// Package plan computes the minimal ordered subset of pipeline steps that
// must execute for one invocation, from the durable checkpoint and state
// namespaces and the optional operator overrides.
package plan

import (
	"log/slog"

	"github.com/petrijr/stepflow/internal/persistence"
	"github.com/petrijr/stepflow/pkg/api"
)

// Resolver decides which steps must run. It reads the checkpoint and
// state stores but never writes them.
type Resolver struct {
	Checkpoints persistence.CheckpointStore
	States      persistence.StateStore
	Logger      *slog.Logger
}

// Plan returns the ordered steps to execute.
//
// Resolution rules:
//
//  1. An empty namespace (no checkpoints) plans a full run up to the
//     target step.
//  2. A checkpoint without a matching state record is an inconsistent
//     partial write; it is logged and recovered by planning a full
//     restart. Trusting such a checkpoint would read stale or missing
//     data.
//  3. With opts.FailedStep set, execution is forced forward from the step
//     after it, re-running every step in range regardless of checkpoints.
//  4. Otherwise execution starts at the first step in order without a
//     checkpoint, and already-checkpointed steps inside the range are
//     dropped.
//
// When every step is checkpointed and no override is given, the full step
// list is returned again: a conservative re-verify fallback, since there
// is nothing left to resume.
func (r *Resolver) Plan(def api.PipelineDefinition, opts api.RunOptions) ([]string, error) {
	steps := def.StepNames()

	targetIdx := len(steps) - 1
	if opts.TargetStep != "" {
		targetIdx = def.StepIndex(opts.TargetStep)
		if targetIdx < 0 {
			return nil, &api.InvalidStepError{Step: opts.TargetStep}
		}
	}
	if opts.FailedStep != "" && def.StepIndex(opts.FailedStep) < 0 {
		return nil, &api.InvalidStepError{Step: opts.FailedStep}
	}

	fresh, err := r.restartFromBeginning(steps)
	if err != nil {
		return nil, err
	}
	if fresh {
		return steps[:targetIdx+1], nil
	}

	done, err := r.Checkpoints.ListDone()
	if err != nil {
		return nil, err
	}

	var startIdx int
	if opts.FailedStep != "" {
		startIdx = def.StepIndex(opts.FailedStep) + 1
	} else {
		startIdx = -1
		for i, step := range steps {
			if _, ok := done[step]; !ok {
				startIdx = i
				break
			}
		}
		if startIdx < 0 {
			// Everything is checkpointed: nothing to resume, re-verify
			// the whole pipeline.
			r.logger().Info("all steps checkpointed, replanning full pipeline")
			return steps, nil
		}
	}

	required := make([]string, 0, targetIdx+1-startIdx)
	for i := startIdx; i <= targetIdx; i++ {
		if opts.FailedStep == "" {
			if _, ok := done[steps[i]]; ok {
				continue
			}
		}
		required = append(required, steps[i])
	}

	return required, nil
}

// restartFromBeginning reports whether the namespace forces a full
// restart: either it is empty, or some checkpointed step has no durable
// state record.
func (r *Resolver) restartFromBeginning(steps []string) (bool, error) {
	done, err := r.Checkpoints.ListDone()
	if err != nil {
		return false, err
	}
	if len(done) == 0 {
		return true, nil
	}

	for _, step := range steps {
		if _, ok := done[step]; !ok {
			continue
		}
		exists, err := r.States.Exists(step)
		if err != nil {
			return false, err
		}
		if !exists {
			// Recovered automatically, surfaced only in logs.
			incErr := &api.StateInconsistencyError{Step: step}
			r.logger().Warn("restarting pipeline from beginning",
				slog.Any("cause", incErr),
			)
			return true, nil
		}
	}

	return false, nil
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

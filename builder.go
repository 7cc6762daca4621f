package stepflow

import (
	"fmt"

	"github.com/petrijr/stepflow/pkg/api"
)

// PipelineBuilder provides a fluent API for defining pipelines:
//
//	pipe := stepflow.New("weather-etl").
//	    Step("extract", extractHandler).
//	    Step("transform", transformHandler).
//	    StepWithDeps("dq_checks", dqHandler, "transform").
//	    StepWithRetry("load", loadHandler, stepflow.Retry(3).Policy())
//
//	orc, err := stepflow.NewFSOrchestrator(pipe, "data", stepflow.Options{})
type PipelineBuilder struct {
	def      api.PipelineDefinition
	handlers map[string]api.HandlerFunc
}

// New creates a new pipeline builder with the given name.
func New(name string) *PipelineBuilder {
	return &PipelineBuilder{
		def: api.PipelineDefinition{
			Name:  name,
			Steps: make([]api.StepDefinition, 0),
		},
		handlers: make(map[string]api.HandlerFunc),
	}
}

// Name returns the pipeline name.
func (b *PipelineBuilder) Name() string {
	return b.def.Name
}

// Definition returns the underlying PipelineDefinition and handler map.
// Typically used when interacting with lower-level APIs.
func (b *PipelineBuilder) Definition() (PipelineDefinition, map[string]HandlerFunc) {
	return b.def, b.handlers
}

// Step appends a basic step to the pipeline.
func (b *PipelineBuilder) Step(name string, fn HandlerFunc) *PipelineBuilder {
	return b.add(name, fn, nil, nil)
}

// StepWithDeps appends a step that declares dependencies on earlier
// steps. Dependencies do not change execution order; they tell the
// coordinator which persisted state to reload when a resume starts at
// this step.
func (b *PipelineBuilder) StepWithDeps(name string, fn HandlerFunc, deps ...string) *PipelineBuilder {
	return b.add(name, fn, deps, nil)
}

// StepWithRetry appends a step that uses the given retry policy.
func (b *PipelineBuilder) StepWithRetry(name string, fn HandlerFunc, retry RetryPolicy) *PipelineBuilder {
	// Make a copy so callers can mutate their RetryPolicy after the call
	// without affecting the stored definition.
	r := retry
	return b.add(name, fn, nil, &r)
}

func (b *PipelineBuilder) add(name string, fn HandlerFunc, deps []string, retry *api.RetryPolicy) *PipelineBuilder {
	if name == "" {
		panic("stepflow: step name must not be empty")
	}
	if fn == nil {
		panic(fmt.Sprintf("stepflow: step %q has nil handler", name))
	}

	b.def.Steps = append(b.def.Steps, api.StepDefinition{
		Name:      name,
		DependsOn: deps,
		Retry:     retry,
	})
	b.handlers[name] = fn
	return b
}

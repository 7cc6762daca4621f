// Package stepflow provides a resumable, checkpointed step orchestrator
// for Go.
//
// Stepflow runs a fixed-order sequence of named processing steps against
// a working dataset, persisting each step's output and a completion
// marker so that a failed or interrupted run can resume without redoing
// completed work. It runs fully in Go, supports durable filesystem
// namespaces alongside in-memory stores for tests, and integrates cleanly
// into existing codebases.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Orchestrator
//  2. PipelineBuilder
//  3. HandlerFunc
//  4. Payload
//  5. FanOut
//
// # Orchestrator
//
// The Orchestrator plans and drives a run. Each invocation it asks the
// dependency resolver which steps still need to execute, reloads any
// declared dependency state when resuming mid-pipeline, and then runs
// the plan strictly in order. A step's output is persisted to the state
// store before its checkpoint marker is written, so a checkpoint is only
// ever visible once its state is durable. That write ordering is what
// makes resume safe.
//
// On full success the run's checkpoint and state namespaces are emptied;
// the append-only metadata history under metrics/ survives as an audit
// trail. On a handler failure the namespace is left intact, and the next
// invocation resumes past the completed steps automatically, with no resume
// flags required.
//
// # PipelineBuilder
//
// PipelineBuilder provides the declarative API used to define pipelines:
//
//	pipe := stepflow.New("weather-etl").
//	    Step("extract", extractHandler).
//	    Step("transform", transformHandler).
//	    StepWithDeps("analyze", analyzeHandler, "transform")
//
//	orc, err := stepflow.NewFSOrchestrator(pipe, "data", stepflow.Options{})
//	result, err := orc.Run(ctx, stepflow.RunOptions{})
//
// Declared dependencies never change execution order; the pipeline
// order is the list order. They only tell the coordinator which earlier
// steps' state to reload before the first planned step after a resume.
//
// # HandlerFunc
//
// A HandlerFunc is the business logic of one step:
//
//	func(ctx context.Context, input Payload, cfg StepConfig, logger *slog.Logger) (Payload, error)
//
// Handlers receive their predecessor's payload, return their own, and
// must be idempotent: a step that completed but whose run was interrupted
// before cleanup may be re-verified by a later invocation.
//
// # Payload
//
// A Payload is either a single opaque document (extraction-type steps) or
// a named collection of tabular artifacts, each independently persisted
// under state/<step>/ in the run namespace.
//
// # FanOut
//
// FanOut is a bounded-concurrency executor for handlers that process many
// independent items: a worker cap (defaulting to the item count), no
// shared mutable state between workers, and per-item errors aggregated
// after all items finish. One failure never silently drops sibling
// results.
//
// For a complete pipeline, see cmd/weatheretl and internal/weather.
package stepflow

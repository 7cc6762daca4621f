package stepflow

import (
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"

	"github.com/petrijr/stepflow/internal/engine"
	"github.com/petrijr/stepflow/internal/persistence"
	"github.com/petrijr/stepflow/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Orchestrator         = api.Orchestrator
	PipelineDefinition   = api.PipelineDefinition
	StepDefinition       = api.StepDefinition
	HandlerFunc          = api.HandlerFunc
	StepConfig           = api.StepConfig
	Payload              = api.Payload
	Table                = api.Table
	ArtifactDescriptor   = api.ArtifactDescriptor
	Status               = api.Status
	RunContext           = api.RunContext
	RunOptions           = api.RunOptions
	RunResult            = api.RunResult
	RunRecord            = api.RunRecord
	RetryPolicy          = api.RetryPolicy
	StepMetadata         = api.StepMetadata
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	NewTable             = api.NewTable
	DocPayload           = api.DocPayload
	TablePayload         = api.TablePayload

	// FailedStepName extracts the failing step's name from a Run error.
	FailedStepName = api.FailedStep
)

// Re-export status values for convenience.

const (
	StatusPending   = api.StatusPending
	StatusRunning   = api.StatusRunning
	StatusCompleted = api.StatusCompleted
	StatusFailed    = api.StatusFailed
)

// Orchestrator constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// Options tunes an orchestrator beyond its pipeline and namespace.
// The zero value is valid: no observer, default logger, no run history.
type Options struct {
	Observer api.Observer
	Logger   *slog.Logger

	// StepConfigs provides the per-step parameters passed to handlers.
	StepConfigs map[string]api.StepConfig

	// HistoryDB, when set, enables the SQLite run history store on the
	// given database handle.
	HistoryDB *sql.DB

	// Layout overrides the namespace subdirectory names. Zero fields
	// keep the standard layout.
	Layout Layout
}

// Layout names the namespace subdirectories relative to the root.
type Layout struct {
	CheckpointDir string
	StateDir      string
	MetricsDir    string
}

func (l Layout) withDefaults() Layout {
	if l.CheckpointDir == "" {
		l.CheckpointDir = "checkpoints"
	}
	if l.StateDir == "" {
		l.StateDir = "state"
	}
	if l.MetricsDir == "" {
		l.MetricsDir = "metrics"
	}
	return l
}

// NewInMemoryOrchestrator returns an Orchestrator backed entirely by
// in-memory stores. Nothing survives the process; intended for tests and
// local development.
func NewInMemoryOrchestrator(p *PipelineBuilder, opts Options) (Orchestrator, error) {
	mem := persistence.NewInMemoryStore()
	stores := persistence.Stores{
		Checkpoints: mem,
		States:      mem,
		Metadata:    mem,
		Runs:        mem,
	}
	return newOrchestrator(p, stores, "", opts)
}

// NewFSOrchestrator returns an Orchestrator whose run namespace lives
// under root, using the stable on-disk layout:
//
//	<root>/checkpoints/<step>.done
//	<root>/state/<step>/<artifact>
//	<root>/metrics/<step>/metadata.json
func NewFSOrchestrator(p *PipelineBuilder, root string, opts Options) (Orchestrator, error) {
	layout := opts.Layout.withDefaults()

	checkpoints, err := persistence.NewFSCheckpointStore(filepath.Join(root, layout.CheckpointDir))
	if err != nil {
		return nil, &api.ConfigError{Path: root, Err: err}
	}
	states, err := persistence.NewFSStateStore(filepath.Join(root, layout.StateDir))
	if err != nil {
		return nil, &api.ConfigError{Path: root, Err: err}
	}
	metadata, err := persistence.NewFSMetadataStore(filepath.Join(root, layout.MetricsDir))
	if err != nil {
		return nil, &api.ConfigError{Path: root, Err: err}
	}

	stores := persistence.Stores{
		Checkpoints: checkpoints,
		States:      states,
		Metadata:    metadata,
	}
	if opts.HistoryDB != nil {
		runs, err := persistence.NewSQLiteRunStore(opts.HistoryDB)
		if err != nil {
			return nil, err
		}
		stores.Runs = runs
	}

	return newOrchestrator(p, stores, root, opts)
}

func newOrchestrator(p *PipelineBuilder, stores persistence.Stores, root string, opts Options) (Orchestrator, error) {
	def, handlers := p.Definition()
	return engine.New(engine.Config{
		Definition:  def,
		Handlers:    handlers,
		StepConfigs: opts.StepConfigs,
		Stores:      stores,
		Root:        root,
		Observer:    opts.Observer,
		Logger:      opts.Logger,
	})
}

// Convenience helper that just forwards to the underlying Orchestrator.

// Run executes the pipeline with automatic, state-driven resume.
func Run(ctx context.Context, orc Orchestrator) (*RunResult, error) {
	return orc.Run(ctx, RunOptions{})
}

// FanOut re-exports the bounded fan-out executor for step handlers that
// process many independent items concurrently.
func FanOut[K comparable, V any, R any](ctx context.Context, items map[K]V, workers int, fn func(ctx context.Context, key K, item V) (R, error)) (map[K]R, error) {
	return api.FanOut(ctx, items, workers, fn)
}

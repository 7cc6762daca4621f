package persistence

import (
	"errors"

	"github.com/petrijr/stepflow/pkg/api"
)

var (
	// ErrStateNotFound is returned when no state record exists for a step
	// in the current run namespace.
	ErrStateNotFound = errors.New("step state not found")

	// ErrRunNotFound is returned when a run record is not found in the
	// run history store.
	ErrRunNotFound = errors.New("run not found")
)

// CheckpointStore records durable "step completed" markers. Markers are
// created the instant a step's output has been durably persisted, never
// mutated, and only purged on full-pipeline cleanup.
type CheckpointStore interface {
	// MarkDone idempotently records completion of step.
	MarkDone(step string) error

	// IsDone reports whether step has a completion marker.
	IsDone(step string) (bool, error)

	// ListDone returns the set of completed step names. No ordering is
	// implied; callers intersect with the pipeline order.
	ListDone() (map[string]struct{}, error)

	// Clear removes every marker in the namespace, keeping the
	// namespace itself.
	Clear() error
}

// StateStore persists each completed step's output payload, keyed by step
// name. Save must be atomic enough that a concurrent reader never observes
// a partial write.
type StateStore interface {
	Save(step string, payload api.Payload) error

	// Load returns the persisted payload for step, or ErrStateNotFound.
	Load(step string) (api.Payload, error)

	// Exists reports whether a state record exists for step.
	Exists(step string) (bool, error)

	// Clear removes every state record in the namespace, keeping the
	// namespace itself.
	Clear() error
}

// MetadataStore keeps the append-only execution history per step. It is
// never touched by cleanup.
type MetadataStore interface {
	Append(step string, md api.StepMetadata) error
	History(step string) ([]api.StepMetadata, error)
}

// RunFilter selects runs from the history store. Zero values mean "no
// filter" for that field.
type RunFilter struct {
	Pipeline string
	Status   api.Status
}

// RunStore persists run records across invocations as an audit trail.
type RunStore interface {
	SaveRun(r *api.RunRecord) error
	UpdateRun(r *api.RunRecord) error
	GetRun(id string) (*api.RunRecord, error)
	ListRuns(filter RunFilter) ([]*api.RunRecord, error)
}

// Stores bundles the per-namespace store set so the coordinator can
// depend on a single abstraction.
type Stores struct {
	Checkpoints CheckpointStore
	States      StateStore
	Metadata    MetadataStore

	// Runs is optional; a nil RunStore disables run history.
	Runs RunStore
}

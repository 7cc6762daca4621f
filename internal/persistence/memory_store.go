package persistence

import (
	"sync"

	"github.com/petrijr/stepflow/pkg/api"
)

// InMemoryStore is a simple, goroutine-safe implementation of every store
// interface, backed by maps. It is non-durable and intended for tests and
// local development.
type InMemoryStore struct {
	mu       sync.RWMutex
	done     map[string]struct{}
	states   map[string]api.Payload
	metadata map[string][]api.StepMetadata
	runs     map[string]*api.RunRecord
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		done:     make(map[string]struct{}),
		states:   make(map[string]api.Payload),
		metadata: make(map[string][]api.StepMetadata),
		runs:     make(map[string]*api.RunRecord),
	}
}

// Ensure InMemoryStore implements the interfaces.
var _ CheckpointStore = (*InMemoryStore)(nil)

var _ StateStore = (*InMemoryStore)(nil)

var _ MetadataStore = (*InMemoryStore)(nil)

var _ RunStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) MarkDone(step string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.done[step] = struct{}{}
	return nil
}

func (s *InMemoryStore) IsDone(step string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.done[step]
	return ok, nil
}

func (s *InMemoryStore) ListDone() (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	done := make(map[string]struct{}, len(s.done))
	for step := range s.done {
		done[step] = struct{}{}
	}
	return done, nil
}

func (s *InMemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.done = make(map[string]struct{})
	s.states = make(map[string]api.Payload)
	return nil
}

func (s *InMemoryStore) Save(step string, payload api.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[step] = payload
	return nil
}

func (s *InMemoryStore) Load(step string) (api.Payload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.states[step]
	if !ok {
		return api.Payload{}, ErrStateNotFound
	}
	return p, nil
}

func (s *InMemoryStore) Exists(step string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.states[step]
	return ok, nil
}

func (s *InMemoryStore) Append(step string, md api.StepMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metadata[step] = append(s.metadata[step], md)
	return nil
}

func (s *InMemoryStore) History(step string) ([]api.StepMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := make([]api.StepMetadata, len(s.metadata[step]))
	copy(history, s.metadata[step])
	return history, nil
}

func (s *InMemoryStore) SaveRun(r *api.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *r
	s.runs[r.ID] = &copied
	return nil
}

func (s *InMemoryStore) UpdateRun(r *api.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[r.ID]; !ok {
		return ErrRunNotFound
	}
	copied := *r
	s.runs[r.ID] = &copied
	return nil
}

func (s *InMemoryStore) GetRun(id string) (*api.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	copied := *r
	return &copied, nil
}

func (s *InMemoryStore) ListRuns(filter RunFilter) ([]*api.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.RunRecord
	for _, r := range s.runs {
		if filter.Pipeline != "" && r.Pipeline != filter.Pipeline {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		copied := *r
		result = append(result, &copied)
	}
	return result, nil
}

package memory

import (
	"context"
	"sync"

	"github.com/aretw0/issueflow/pkg/domain"
	"github.com/aretw0/issueflow/pkg/ports"
)

// Store implements ports.SnapshotStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[domain.WorkflowKey]*domain.WorkflowState
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[domain.WorkflowKey]*domain.WorkflowState),
	}
}

// Save persists a deep copy of the state.
func (s *Store) Save(ctx context.Context, state *domain.WorkflowState) error {
	copied := state.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[state.Key] = copied
	return nil
}

// Load retrieves a copy of the state so callers can't mutate the stored value.
func (s *Store) Load(ctx context.Context, key domain.WorkflowKey) (*domain.WorkflowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.data[key]
	if !ok {
		return nil, domain.ErrWorkflowNotFound
	}
	return state.Clone(), nil
}

// Delete removes the state.
func (s *Store) Delete(ctx context.Context, key domain.WorkflowKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// List returns stored workflows, newest first.
func (s *Store) List(ctx context.Context, opts ports.ListOptions) ([]domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snaps := make([]domain.Snapshot, 0, len(s.data))
	for _, state := range s.data {
		snaps = append(snaps, state.Snapshot())
	}
	return ports.Collect(snaps, opts), nil
}

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/issueflow/internal/logging"
	"github.com/aretw0/issueflow/pkg/domain"
	"github.com/aretw0/issueflow/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed lock outlives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates workflow snapshot access, ensuring safe concurrent operations.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	store ports.SnapshotStore

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks, by WorkflowKey.ID

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the expiry of distributed locks (default DefaultLockTTL).
// It should exceed the longest step a workflow runs while holding the lock.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new Manager with the given snapshot store.
func NewManager(store ports.SnapshotStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(id) after unlocking.
func (m *Manager) acquire(id string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		entry = &lockEntry{}
		m.locks[id] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, id)
	}
}

// Load retrieves an existing workflow snapshot from the store.
func (m *Manager) Load(ctx context.Context, key domain.WorkflowKey) (*domain.WorkflowState, error) {
	var state *domain.WorkflowState
	err := m.WithLock(ctx, key, func(ctx context.Context) error {
		var err error
		state, err = m.store.Load(ctx, key)
		return err
	})
	return state, err
}

// LoadOrNew tries to load a snapshot. If none exists, it persists and returns an idle state.
func (m *Manager) LoadOrNew(ctx context.Context, key domain.WorkflowKey) (*domain.WorkflowState, error) {
	var state *domain.WorkflowState
	err := m.WithLock(ctx, key, func(ctx context.Context) error {
		var err error
		state, err = m.store.Load(ctx, key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrWorkflowNotFound) {
			return fmt.Errorf("failed to check workflow existence: %w", err)
		}

		state = domain.NewWorkflowState(key)
		state.UpdatedAt = time.Now()
		if err := m.store.Save(ctx, state); err != nil {
			return fmt.Errorf("failed to initialize workflow: %w", err)
		}
		return nil
	})
	return state, err
}

// Save persists the snapshot.
func (m *Manager) Save(ctx context.Context, state *domain.WorkflowState) error {
	return m.WithLock(ctx, state.Key, func(ctx context.Context) error {
		return m.store.Save(ctx, state)
	})
}

// Delete removes the snapshot from the store.
func (m *Manager) Delete(ctx context.Context, key domain.WorkflowKey) error {
	return m.WithLock(ctx, key, func(ctx context.Context) error {
		return m.store.Delete(ctx, key)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context, opts ports.ListOptions) ([]domain.Snapshot, error) {
	return m.store.List(ctx, opts)
}

// Store returns the underlying snapshot store.
func (m *Manager) Store() ports.SnapshotStore {
	return m.store
}

// WithLock executes a function while holding the lock for the workflow.
// Inside fn, use Store() directly: the Manager's own methods would deadlock.
func (m *Manager) WithLock(ctx context.Context, key domain.WorkflowKey, fn func(context.Context) error) error {
	id := key.ID()
	entry := m.acquire(id)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(id)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, "workflow:"+id, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			// The caller's ctx may already be cancelled; release regardless.
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"workflow", key.String(),
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

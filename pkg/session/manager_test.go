package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/issueflow/pkg/domain"
	"github.com/aretw0/issueflow/pkg/ports"
	"github.com/aretw0/issueflow/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SlowStore simulates latency to provoke race conditions if locking is missing.
type SlowStore struct {
	data map[domain.WorkflowKey]*domain.WorkflowState
	mu   sync.Mutex
}

func (s *SlowStore) Save(ctx context.Context, state *domain.WorkflowState) error {
	time.Sleep(5 * time.Millisecond) // Simulate IO
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		s.data = make(map[domain.WorkflowKey]*domain.WorkflowState)
	}
	s.data[state.Key] = state.Clone()
	return nil
}

func (s *SlowStore) Load(ctx context.Context, key domain.WorkflowKey) (*domain.WorkflowState, error) {
	time.Sleep(5 * time.Millisecond) // Simulate IO
	s.mu.Lock()
	defer s.mu.Unlock()

	if state, ok := s.data[key]; ok {
		return state.Clone(), nil
	}
	return nil, domain.ErrWorkflowNotFound
}

func (s *SlowStore) Delete(ctx context.Context, key domain.WorkflowKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *SlowStore) List(ctx context.Context, opts ports.ListOptions) ([]domain.Snapshot, error) {
	return nil, nil
}

var key = domain.WorkflowKey{Owner: "acme", Repo: "api", Issue: 42}

func TestManager_Locking(t *testing.T) {
	store := &SlowStore{}
	manager := session.NewManager(store)
	ctx := context.Background()

	require.NoError(t, manager.Save(ctx, domain.NewWorkflowState(key)))

	// Read-modify-write inside the lock must never lose an update.
	var wg sync.WaitGroup
	concurrentWrites := 10
	for i := 0; i < concurrentWrites; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := manager.WithLock(ctx, key, func(ctx context.Context) error {
				state, err := manager.Store().Load(ctx, key)
				if err != nil {
					return err
				}
				state.Logs = domain.AppendLogs(state.Logs, "tick")
				return manager.Store().Save(ctx, state)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	state, err := manager.Load(ctx, key)
	require.NoError(t, err)
	assert.Len(t, state.Logs, concurrentWrites)
}

func TestManager_LoadOrNew(t *testing.T) {
	store := &SlowStore{}
	manager := session.NewManager(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state, err := manager.LoadOrNew(ctx, key)
			assert.NoError(t, err)
			assert.NotNil(t, state)
		}()
	}
	wg.Wait()

	state, err := manager.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIdle, state.Status)
	assert.Equal(t, key, state.Key)
}

func TestManager_LoadMissing(t *testing.T) {
	manager := session.NewManager(&SlowStore{})
	_, err := manager.Load(context.Background(), key)
	assert.ErrorIs(t, err, domain.ErrWorkflowNotFound)
}

type recordingLocker struct {
	mu       sync.Mutex
	keys     []string
	ttls     []time.Duration
	released int
	err      error
}

func (l *recordingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.keys = append(l.keys, key)
	l.ttls = append(l.ttls, ttl)
	return func(ctx context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.released++
		return ctx.Err()
	}, nil
}

func TestManager_DistributedLock(t *testing.T) {
	locker := &recordingLocker{}
	manager := session.NewManager(&SlowStore{}, session.WithLocker(locker), session.WithLockTTL(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	err := manager.WithLock(ctx, key, func(ctx context.Context) error {
		cancel()
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"workflow:acme_api_42"}, locker.keys)
	assert.Equal(t, []time.Duration{time.Minute}, locker.ttls)
	assert.Equal(t, 1, locker.released, "released even after the caller's context ends")
}

func TestManager_DistributedLockFailure(t *testing.T) {
	locker := &recordingLocker{err: errors.New("redis down")}
	manager := session.NewManager(&SlowStore{}, session.WithLocker(locker))

	called := false
	err := manager.WithLock(context.Background(), key, func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorContains(t, err, "failed to acquire distributed lock")
	assert.False(t, called)
}

package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/issueflow"
	"github.com/aretw0/issueflow/pkg/domain"
	"github.com/aretw0/issueflow/pkg/ports"
)

// runFunc executes one workflow operation while the workflow lock is held.
// first receives the first state the operation broadcasts; it is nil in synchronous mode.
type runFunc func(ctx context.Context, first chan<- *domain.WorkflowState) (*domain.WorkflowState, error)

func (s *Service) claim(key domain.WorkflowKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[key] {
		return false
	}
	s.running[key] = true
	return true
}

func (s *Service) release(key domain.WorkflowKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, key)
}

// launch runs op under the workflow lock. In background mode it returns once
// the operation has broadcast its first state, or has finished without one.
func (s *Service) launch(ctx context.Context, key domain.WorkflowKey, op runFunc) (*domain.WorkflowState, error) {
	if !s.claim(key) {
		return nil, fmt.Errorf("%w: %s", domain.ErrWorkflowBusy, key)
	}

	if s.sync {
		defer s.release(key)
		var final *domain.WorkflowState
		err := s.sessions.WithLock(ctx, key, func(ctx context.Context) error {
			var err error
			final, err = op(ctx, nil)
			return err
		})
		return final, err
	}

	first := make(chan *domain.WorkflowState, 1)
	done := make(chan struct{})
	var final *domain.WorkflowState
	var runErr error

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(key)
		defer close(done)

		runErr = s.sessions.WithLock(s.baseCtx, key, func(ctx context.Context) error {
			var err error
			final, err = op(ctx, first)
			return err
		})
		if runErr != nil {
			s.logger.Warn("Workflow run ended early", "workflow", key.String(), "err", runErr)
		}
	}()

	select {
	case state := <-first:
		return state, nil
	case <-done:
		return final, runErr
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// workflow builds a workflow whose broadcasts are persisted and fanned out to observers.
func (s *Service) workflow(key domain.WorkflowKey, repo ports.RepositoryAccess, initial *domain.WorkflowState, first chan<- *domain.WorkflowState) (*issueflow.Workflow, error) {
	opts := []issueflow.Option{
		issueflow.WithLogger(s.logger),
		issueflow.WithLifecycleHooks(s.hooks),
	}
	opts = append(opts, s.wfOpts...)
	if initial != nil {
		opts = append(opts, issueflow.WithInitialState(initial))
	}
	wf, err := issueflow.New(key, repo, s.model, opts...)
	if err != nil {
		return nil, err
	}

	// Subscribe delivers the state we built the workflow from; skip it.
	skip := true
	var once sync.Once
	wf.Subscribe(func(state *domain.WorkflowState) {
		if skip {
			skip = false
			return
		}
		s.persist(state)
		if first != nil {
			once.Do(func() { first <- state })
		}
	})
	return wf, nil
}

// rehydrate rebuilds a workflow from its stored state. The lock must be held.
func (s *Service) rehydrate(ctx context.Context, key domain.WorkflowKey, first chan<- *domain.WorkflowState) (*issueflow.Workflow, error) {
	state, err := s.sessions.Store().Load(ctx, key)
	if err != nil {
		return nil, err
	}
	repo, err := s.provider.Repository(key.Owner, key.Repo)
	if err != nil {
		return nil, err
	}
	return s.workflow(key, repo, state, first)
}

func (s *Service) persist(state *domain.WorkflowState) {
	if err := s.sessions.Store().Save(context.Background(), state); err != nil {
		s.logger.Error("Failed to persist workflow state",
			"workflow", state.Key.String(),
			"status", state.Status,
			"err", err,
		)
	}

	s.mu.Lock()
	observers := s.observers
	s.mu.Unlock()
	for _, o := range observers {
		o.fn(state)
	}
}

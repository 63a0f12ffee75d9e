// Package service hosts issue workflows: it fetches issues, runs workflows in
// the background, persists every state they broadcast and serializes
// operations per workflow.
//
// Review feedback ends up in the workflow log, which is rendered on terminals
// and in pull request bodies, so Decide strips control characters from it
// before it reaches a workflow.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/issueflow"
	"github.com/aretw0/issueflow/internal/logging"
	"github.com/aretw0/issueflow/pkg/domain"
	"github.com/aretw0/issueflow/pkg/ports"
	"github.com/aretw0/issueflow/pkg/session"
)

// ErrListingUnsupported is returned by Repositories when the provider cannot enumerate repositories.
var ErrListingUnsupported = errors.New("repository listing is not supported by this provider")

// Observer receives every state persisted by the service.
type Observer func(*domain.WorkflowState)

// IssueStatus is an open issue merged with the status of its workflow.
type IssueStatus struct {
	Issue        domain.Issue  `json:"issue"`
	Status       domain.Status `json:"status"`
	PublishedURL string        `json:"publishedUrl,omitempty"`
}

// Service is the host-facing lifecycle surface.
type Service struct {
	provider ports.RepositoryProvider
	model    ports.ModelClient
	sessions *session.Manager
	logger   *slog.Logger
	hooks    domain.LifecycleHooks
	wfOpts   []issueflow.Option
	sync     bool

	maxFeedback int

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu        sync.Mutex
	running   map[domain.WorkflowKey]bool
	observers []observerEntry
	nextObsID int
}

type observerEntry struct {
	id int
	fn Observer
}

// Option configures the Service.
type Option func(*Service)

// WithLogger configures a logger for the Service and the workflows it runs.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithLifecycleHooks registers hooks on every workflow the service runs.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(s *Service) {
		s.hooks = hooks
	}
}

// WithWorkflowOptions appends options applied to every workflow.
func WithWorkflowOptions(opts ...issueflow.Option) Option {
	return func(s *Service) {
		s.wfOpts = append(s.wfOpts, opts...)
	}
}

// WithMaxFeedbackSize bounds review feedback in bytes.
func WithMaxFeedbackSize(n int) Option {
	return func(s *Service) {
		s.maxFeedback = n
	}
}

// WithSynchronous makes Start, Resume and Decide run the workflow on the
// caller's goroutine and return its final state.
func WithSynchronous(sync bool) Option {
	return func(s *Service) {
		s.sync = sync
	}
}

// New creates a Service.
func New(provider ports.RepositoryProvider, model ports.ModelClient, sessions *session.Manager, opts ...Option) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		provider: provider,
		model:    model,
		sessions: sessions,
		logger:   logging.NewNop(),
		baseCtx:  ctx,
		cancel:   cancel,
		running:  make(map[domain.WorkflowKey]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start fetches the issue and runs a fresh workflow for it, replacing any stored one.
func (s *Service) Start(ctx context.Context, key domain.WorkflowKey) (*domain.WorkflowState, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	repo, err := s.provider.Repository(key.Owner, key.Repo)
	if err != nil {
		return nil, err
	}
	issue, err := repo.GetIssue(ctx, key.Issue)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch issue: %w", err)
	}

	return s.launch(ctx, key, func(ctx context.Context, first chan<- *domain.WorkflowState) (*domain.WorkflowState, error) {
		wf, err := s.workflow(key, repo, nil, first)
		if err != nil {
			return nil, err
		}
		return wf.Start(ctx, issue)
	})
}

// Resume continues a paused workflow or one waiting at the review gate.
// Idle and terminal workflows are returned unchanged.
func (s *Service) Resume(ctx context.Context, key domain.WorkflowKey) (*domain.WorkflowState, error) {
	state, err := s.sessions.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	switch state.Status {
	case domain.StatusIdle, domain.StatusCompleted, domain.StatusFailed:
		return state, nil
	}

	return s.launch(ctx, key, func(ctx context.Context, first chan<- *domain.WorkflowState) (*domain.WorkflowState, error) {
		wf, err := s.rehydrate(ctx, key, first)
		if err != nil {
			return nil, err
		}
		return wf.Resume(ctx)
	})
}

// Decide submits the review decision of a workflow at the review gate.
// Returns domain.ErrNotAwaitingDecision otherwise.
func (s *Service) Decide(ctx context.Context, key domain.WorkflowKey, approved bool, feedback string) (*domain.WorkflowState, error) {
	feedback, err := SanitizeFeedback(feedback, s.maxFeedback)
	if err != nil {
		return nil, err
	}
	state, err := s.sessions.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if state.Status != domain.StepAwaitingHuman.Status() {
		return state, fmt.Errorf("%w: status is %s", domain.ErrNotAwaitingDecision, state.Status)
	}

	return s.launch(ctx, key, func(ctx context.Context, first chan<- *domain.WorkflowState) (*domain.WorkflowState, error) {
		wf, err := s.rehydrate(ctx, key, first)
		if err != nil {
			return nil, err
		}
		return wf.SubmitDecision(ctx, approved, feedback)
	})
}

// Get returns the stored state of key.
func (s *Service) Get(ctx context.Context, key domain.WorkflowKey) (*domain.WorkflowState, error) {
	return s.sessions.Load(ctx, key)
}

// List returns stored workflows, newest first.
func (s *Service) List(ctx context.Context, opts ports.ListOptions) ([]domain.Snapshot, error) {
	return s.sessions.List(ctx, opts)
}

// Delete removes a stored workflow. Running workflows cannot be deleted.
func (s *Service) Delete(ctx context.Context, key domain.WorkflowKey) error {
	if s.Running(key) {
		return fmt.Errorf("%w: %s", domain.ErrWorkflowBusy, key)
	}
	return s.sessions.Delete(ctx, key)
}

// Running reports whether an operation is in progress for key.
func (s *Service) Running(key domain.WorkflowKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[key]
}

// Issues lists the open issues of owner/repo with the status of their workflows.
func (s *Service) Issues(ctx context.Context, owner, repo string) ([]IssueStatus, error) {
	r, err := s.provider.Repository(owner, repo)
	if err != nil {
		return nil, err
	}
	issues, err := r.ListIssues(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	snaps, err := s.sessions.List(ctx, ports.ListOptions{Owner: owner, Repo: repo})
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	byIssue := make(map[int]domain.Snapshot, len(snaps))
	for _, snap := range snaps {
		byIssue[snap.Key.Issue] = snap
	}

	out := make([]IssueStatus, 0, len(issues))
	for _, is := range issues {
		st := IssueStatus{Issue: is, Status: domain.StatusIdle}
		if snap, ok := byIssue[is.Number]; ok {
			st.Status = snap.Status
			st.PublishedURL = snap.Published
		}
		out = append(out, st)
	}
	return out, nil
}

// Repositories lists the repositories visible to the provider.
func (s *Service) Repositories(ctx context.Context) ([]ports.RepositoryInfo, error) {
	lister, ok := s.provider.(ports.RepositoryLister)
	if !ok {
		return nil, ErrListingUnsupported
	}
	return lister.ListRepositories(ctx)
}

// Observe registers fn for every persisted state of every workflow.
// The returned function unregisters it.
func (s *Service) Observe(fn Observer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextObsID++
	id := s.nextObsID
	s.observers = append(s.observers, observerEntry{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, o := range s.observers {
			if o.id == id {
				s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

// Wait blocks until every background run has returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Close cancels background runs and waits for them. Cancelled runs stay
// resumable from their last checkpoint.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

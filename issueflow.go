package issueflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/issueflow/internal/logging"
	"github.com/aretw0/issueflow/internal/runtime"
	"github.com/aretw0/issueflow/pkg/domain"
	"github.com/aretw0/issueflow/pkg/dsl"
	"github.com/aretw0/issueflow/pkg/ports"
)

const (
	// DefaultMaxResearchLoops is the number of tool rounds after which research is forced into planning.
	DefaultMaxResearchLoops = 15
	// DefaultMaxResearchTurns caps model turns, counting plain-text replies that never reach the tool step.
	DefaultMaxResearchTurns = 40
)

// Listener receives every broadcast state. The pointer is shared by all
// listeners of a broadcast and must be treated as read-only.
type Listener func(*domain.WorkflowState)

// Workflow drives the resolution of one issue.
// It guards its current state and listener list, but does not serialize
// lifecycle calls: hosts run at most one Start/Resume/SubmitDecision per
// workflow at a time (see package session).
type Workflow struct {
	key      domain.WorkflowKey
	repo     ports.RepositoryAccess
	model    ports.ModelClient
	logger   *slog.Logger
	hooks    domain.LifecycleHooks
	headless bool
	maxLoops int
	maxTurns int
	now      func() time.Time
	engine   *runtime.Engine

	mu        sync.Mutex
	state     *domain.WorkflowState
	listeners []subscription
	nextSubID int
}

type subscription struct {
	id int
	fn Listener
}

// Option defines a functional option for configuring the Workflow.
type Option func(*Workflow)

// WithLogger sets a custom structured logger for the workflow and its engine.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workflow) {
		w.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(w *Workflow) {
		w.hooks = hooks
	}
}

// WithHeadless builds the graph without the review interrupt: the run
// publishes as soon as the patches are generated.
func WithHeadless(headless bool) Option {
	return func(w *Workflow) {
		w.headless = headless
	}
}

// WithInitialState rehydrates the workflow from a stored snapshot.
func WithInitialState(state *domain.WorkflowState) Option {
	return func(w *Workflow) {
		w.state = state.Clone()
	}
}

// WithMaxResearchLoops overrides DefaultMaxResearchLoops.
func WithMaxResearchLoops(n int) Option {
	return func(w *Workflow) {
		w.maxLoops = n
	}
}

// WithMaxResearchTurns overrides DefaultMaxResearchTurns.
func WithMaxResearchTurns(n int) Option {
	return func(w *Workflow) {
		w.maxTurns = n
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) {
		w.now = now
	}
}

// New creates a workflow for key.
func New(key domain.WorkflowKey, repo ports.RepositoryAccess, model ports.ModelClient, opts ...Option) (*Workflow, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if repo == nil {
		return nil, errors.New("repository access is required")
	}
	if model == nil {
		return nil, errors.New("model client is required")
	}

	w := &Workflow{
		key:      key,
		repo:     repo,
		model:    model,
		logger:   logging.NewNop(),
		maxLoops: DefaultMaxResearchLoops,
		maxTurns: DefaultMaxResearchTurns,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}

	if w.state == nil {
		w.state = domain.NewWorkflowState(key)
	} else if w.state.Key != key {
		return nil, fmt.Errorf("%w: initial state belongs to %s, not %s", domain.ErrInvalidKey, w.state.Key, key)
	}

	w.logger = w.logger.With("workflow", key.String())

	graph, err := w.buildGraph()
	if err != nil {
		return nil, err
	}
	w.engine = runtime.NewEngine(graph,
		runtime.WithLogger(w.logger),
		runtime.WithLifecycleHooks(w.hooks),
		runtime.WithClock(w.now),
	)
	return w, nil
}

// Key returns the identity of the workflow.
func (w *Workflow) Key() domain.WorkflowKey {
	return w.key
}

// Graph returns the compiled graph the workflow runs.
func (w *Workflow) Graph() *dsl.Graph {
	return w.engine.Graph()
}

// State returns the latest broadcast state.
func (w *Workflow) State() *domain.WorkflowState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Subscribe registers fn and immediately calls it with the current state.
// Later broadcasts call every listener synchronously in registration order.
// The returned function unregisters fn.
func (w *Workflow) Subscribe(fn Listener) func() {
	w.mu.Lock()
	w.nextSubID++
	id := w.nextSubID
	w.listeners = append(w.listeners, subscription{id: id, fn: fn})
	current := w.state
	w.mu.Unlock()

	fn(current)

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		for i, sub := range w.listeners {
			if sub.id == id {
				w.listeners = append(w.listeners[:i:i], w.listeners[i+1:]...)
				return
			}
		}
	}
}

func (w *Workflow) broadcast(state *domain.WorkflowState) {
	w.mu.Lock()
	w.state = state
	listeners := w.listeners
	w.mu.Unlock()

	for _, sub := range listeners {
		sub.fn(state)
	}
}

// Start resets the workflow and researches issue from the entry step.
// It returns when the run completes, fails, pauses or reaches the review gate.
// The error is non-nil only when ctx ends the run early.
func (w *Workflow) Start(ctx context.Context, issue domain.Issue) (*domain.WorkflowState, error) {
	if issue.Number != w.key.Issue {
		return nil, fmt.Errorf("%w: issue #%d does not belong to %s", domain.ErrInvalidKey, issue.Number, w.key)
	}

	current := w.State()
	next := *current
	next.Status = domain.StepResearchDecision.Status()
	next.Issue = &issue
	next.Logs = domain.AppendLogs(current.Logs, fmt.Sprintf("Starting Iterative Research for #%d...", issue.Number))
	next.RelevantFiles = []domain.RelevantFile{}
	next.Plan = nil
	next.Patches = nil
	next.PublishedURL = ""
	next.Error = ""
	next.ResearchHistory = []domain.Turn{}
	next.ResearchLoopCount = 0
	next.LastCompletedCheckpoint = ""
	next.PauseReason = ""
	next.PauseContext = nil
	next.UpdatedAt = w.now()

	w.logger.Info("workflow started", "title", issue.Title)
	w.broadcast(&next)
	return w.engine.Run(ctx, &next, w.broadcast)
}

// Resume re-enters the engine on the current state. A quota pause retries
// the paused step; a workflow at the review gate continues to publishing.
// Idle and terminal workflows are returned unchanged.
func (w *Workflow) Resume(ctx context.Context) (*domain.WorkflowState, error) {
	current := w.State()
	switch current.Status {
	case domain.StatusIdle, domain.StatusCompleted, domain.StatusFailed:
		w.logger.Debug("nothing to resume", "status", current.Status)
		return current, nil
	}

	state := current
	if current.Status == domain.StatusPausedQuota {
		step, attempt := domain.Step("checkpoint"), 1
		if pc := current.PauseContext; pc != nil {
			step, attempt = pc.StepName, pc.AttemptCount+1
		}
		next := *current
		next.Logs = domain.AppendLogs(current.Logs, fmt.Sprintf("[System] Resuming %s (attempt %d)...", step, attempt))
		next.UpdatedAt = w.now()
		w.logger.Info("resuming workflow", "step", step, "attempt", attempt)
		w.broadcast(&next)
		state = &next
	}
	return w.engine.Run(ctx, state, w.broadcast)
}

// SubmitDecision records the review outcome. A rejection fails the workflow
// with the feedback and contacts no collaborator; an approval goes straight
// to publishing without re-running earlier steps.
// Returns domain.ErrNotAwaitingDecision outside the review gate.
func (w *Workflow) SubmitDecision(ctx context.Context, approved bool, feedback string) (*domain.WorkflowState, error) {
	current := w.State()
	if current.Status != domain.StepAwaitingHuman.Status() {
		return current, fmt.Errorf("%w: status is %s", domain.ErrNotAwaitingDecision, current.Status)
	}

	next := *current
	next.UpdatedAt = w.now()

	if !approved {
		next.Status = domain.StatusFailed
		next.Error = "Feedback: " + feedback
		next.Logs = domain.AppendLogs(current.Logs, "[Human] Changes requested: "+feedback)
		w.logger.Info("changes requested", "feedback", feedback)
		w.broadcast(&next)
		return &next, nil
	}

	next.Logs = domain.AppendLogs(current.Logs, "[Human] Approved. Creating PR...")
	w.logger.Info("changes approved")
	w.broadcast(&next)
	return w.engine.Run(ctx, &next, w.broadcast, runtime.StartAt(domain.StepCreatingPR))
}

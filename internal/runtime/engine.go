package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/issueflow/internal/logging"
	"github.com/aretw0/issueflow/pkg/domain"
	"github.com/aretw0/issueflow/pkg/dsl"
)

// Listener receives every snapshot the engine produces, synchronously and in order.
type Listener func(*domain.WorkflowState)

// Engine executes a compiled graph over a WorkflowState.
// It holds no per-run state and may be shared by concurrent runs.
type Engine struct {
	graph  *dsl.Graph
	logger *slog.Logger
	hooks  domain.LifecycleHooks
	now    func() time.Time
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithLogger sets the structured logger for engine events.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine for graph.
func NewEngine(graph *dsl.Graph, opts ...EngineOption) *Engine {
	e := &Engine{
		graph:  graph,
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Graph returns the graph the engine runs.
func (e *Engine) Graph() *dsl.Graph {
	return e.graph
}

type runConfig struct {
	startAt domain.Step
}

// RunOption configures a single Run.
type RunOption func(*runConfig)

// StartAt jumps straight to step, skipping resume positioning and the
// interrupt check for that first step.
func StartAt(step domain.Step) RunOption {
	return func(c *runConfig) {
		c.startAt = step
	}
}

// run carries the mutable bookkeeping of one Run call.
type run struct {
	*Engine
	ctx   context.Context
	state domain.WorkflowState
	emit  Listener

	// retryStep/retryAttempts survive the clearing of the pause context so a
	// repeated quota failure at the same step counts up.
	retryStep     domain.Step
	retryAttempts int
}

// Run executes the graph starting from state until the run completes, fails,
// pauses or reaches an interrupt. Node failures are recorded in the returned
// state; the error is non-nil only when ctx ends the run early.
func (e *Engine) Run(ctx context.Context, state *domain.WorkflowState, emit Listener, opts ...RunOption) (*domain.WorkflowState, error) {
	cfg := runConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if emit == nil {
		emit = func(*domain.WorkflowState) {}
	}

	r := &run{Engine: e, ctx: ctx, state: *state, emit: emit}

	step := e.graph.Entry()
	firstJump := false
	switch {
	case cfg.startAt != "":
		if _, ok := e.graph.Node(cfg.startAt); !ok {
			return nil, fmt.Errorf("cannot start at %s: no such node", cfg.startAt)
		}
		step = cfg.startAt
		firstJump = true
	case r.state.PauseContext != nil || r.state.LastCompletedCheckpoint != "":
		step = r.resumePoint()
	}

	for {
		if err := ctx.Err(); err != nil {
			return r.snapshot(), err
		}

		if step == dsl.End {
			r.update(domain.Update{Status: domain.Set(domain.StatusCompleted)})
			e.logger.Info("workflow completed", "workflow", r.state.Key.String())
			r.hook(e.hooks.OnComplete, &domain.StepEvent{})
			return r.snapshot(), nil
		}

		node, ok := e.graph.Node(step)
		if !ok {
			return r.fail(step, fmt.Errorf("no node registered for step %s", step)), nil
		}

		if !firstJump && e.graph.Interrupts(step) && r.state.Status != step.Status() {
			r.update(domain.Update{Status: domain.Set(step.Status())})
			e.logger.Info("workflow interrupted", "workflow", r.state.Key.String(), "step", step)
			return r.snapshot(), nil
		}
		firstJump = false

		r.update(domain.Update{Status: domain.Set(step.Status())})
		e.logger.Debug("entering step", "workflow", r.state.Key.String(), "step", step)
		r.hook(e.hooks.OnStepEnter, &domain.StepEvent{Step: step})

		started := e.now()
		current := r.state
		upd, err := node(ctx, &current)
		r.hook(e.hooks.OnStepLeave, &domain.StepEvent{Step: step, Duration: e.now().Sub(started), Err: err})

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return r.snapshot(), ctxErr
			}
			if Classify(err) == domain.KindRateLimited {
				return r.pause(step, err), nil
			}
			return r.fail(step, err), nil
		}

		upd.LastCompletedCheckpoint = domain.Set(step)
		r.update(upd)
		if r.retryStep == step {
			r.retryStep, r.retryAttempts = "", 0
		}

		step = e.graph.Next(step, r.snapshot())
	}
}

// resumePoint positions a rehydrated run: at the paused step when the pause
// context names one, else at the successor of the checkpoint. Conditional
// edges are evaluated against the stored state.
func (r *run) resumePoint() domain.Step {
	step := r.graph.Entry()
	if pc := r.state.PauseContext; pc != nil && pc.StepName.Valid() {
		if _, ok := r.graph.Node(pc.StepName); ok {
			step = pc.StepName
			r.retryStep, r.retryAttempts = pc.StepName, pc.AttemptCount
		}
	} else if cp := r.state.LastCompletedCheckpoint; cp != "" {
		step = r.graph.Next(cp, r.snapshot())
	}

	r.update(domain.Update{
		PauseReason:  domain.Set(domain.PauseReason("")),
		PauseContext: domain.Set[*domain.PauseContext](nil),
	})
	r.logger.Debug("resuming workflow", "workflow", r.state.Key.String(), "step", step,
		"checkpoint", r.state.LastCompletedCheckpoint)
	return step
}

func (r *run) pause(step domain.Step, err error) *domain.WorkflowState {
	attempts := 1
	if r.retryStep == step {
		attempts = r.retryAttempts + 1
	}
	r.retryStep, r.retryAttempts = step, attempts

	r.update(domain.Update{
		Status:      domain.Set(domain.StatusPausedQuota),
		PauseReason: domain.Set(domain.PauseReasonQuotaExhausted),
		PauseContext: domain.Set(&domain.PauseContext{
			StepName:     step,
			AttemptCount: attempts,
			LastError:    err.Error(),
			Timestamp:    r.now(),
		}),
	})
	r.logger.Warn("workflow paused on quota", "workflow", r.state.Key.String(), "step", step,
		"attempt", attempts, "err", err)
	r.hook(r.hooks.OnPause, &domain.StepEvent{Step: step, Attempt: attempts,
		Err: &domain.StepError{Step: step, Kind: domain.KindRateLimited, Err: err}})
	return r.snapshot()
}

func (r *run) fail(step domain.Step, err error) *domain.WorkflowState {
	r.update(domain.Update{
		Status: domain.Set(domain.StatusFailed),
		Error:  domain.Set(err.Error()),
	})
	r.logger.Error("workflow failed", "workflow", r.state.Key.String(), "step", step, "err", err)
	r.hook(r.hooks.OnFailure, &domain.StepEvent{Step: step,
		Err: &domain.StepError{Step: step, Kind: domain.KindGeneric, Err: err}})
	return r.snapshot()
}

// update merges u and emits the resulting snapshot.
func (r *run) update(u domain.Update) {
	r.state = domain.Apply(r.state, u)
	r.state.UpdatedAt = r.now()
	r.emit(r.snapshot())
}

// snapshot returns a fresh pointer to the current value. Slices are shared
// with earlier snapshots but never written in place.
func (r *run) snapshot() *domain.WorkflowState {
	s := r.state
	return &s
}

func (r *run) hook(fn func(context.Context, *domain.StepEvent), e *domain.StepEvent) {
	if fn == nil {
		return
	}
	e.Timestamp = r.now()
	e.Key = r.state.Key
	fn(r.ctx, e)
}

package domain

import (
	"context"
	"time"
)

// StepEvent describes a step transition of a workflow run.
type StepEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	Key       WorkflowKey   `json:"key"`
	Step      Step          `json:"step,omitempty"`
	Attempt   int           `json:"attempt,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Err       error         `json:"-"`
}

// LifecycleHooks defines callbacks for engine observability.
// Any of them may be nil.
type LifecycleHooks struct {
	OnStepEnter func(context.Context, *StepEvent)
	OnStepLeave func(context.Context, *StepEvent)
	OnPause     func(context.Context, *StepEvent)
	OnFailure   func(context.Context, *StepEvent)
	OnComplete  func(context.Context, *StepEvent)
}

// CombineHooks fans every callback out to all of hooks, in order.
func CombineHooks(hooks ...LifecycleHooks) LifecycleHooks {
	pick := func(get func(LifecycleHooks) func(context.Context, *StepEvent)) func(context.Context, *StepEvent) {
		var fns []func(context.Context, *StepEvent)
		for _, h := range hooks {
			if fn := get(h); fn != nil {
				fns = append(fns, fn)
			}
		}
		if len(fns) == 0 {
			return nil
		}
		return func(ctx context.Context, e *StepEvent) {
			for _, fn := range fns {
				fn(ctx, e)
			}
		}
	}
	return LifecycleHooks{
		OnStepEnter: pick(func(h LifecycleHooks) func(context.Context, *StepEvent) { return h.OnStepEnter }),
		OnStepLeave: pick(func(h LifecycleHooks) func(context.Context, *StepEvent) { return h.OnStepLeave }),
		OnPause:     pick(func(h LifecycleHooks) func(context.Context, *StepEvent) { return h.OnPause }),
		OnFailure:   pick(func(h LifecycleHooks) func(context.Context, *StepEvent) { return h.OnFailure }),
		OnComplete:  pick(func(h LifecycleHooks) func(context.Context, *StepEvent) { return h.OnComplete }),
	}
}

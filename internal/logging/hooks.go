package logging

import (
	"context"
	"log/slog"

	"github.com/aretw0/issueflow/pkg/domain"
)

// Hooks returns lifecycle hooks that log step transitions to logger.
func Hooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepEnter: func(ctx context.Context, e *domain.StepEvent) {
			logger.InfoContext(ctx, "step_enter", "workflow", e.Key.String(), "step", e.Step)
		},
		OnStepLeave: func(ctx context.Context, e *domain.StepEvent) {
			attrs := []any{"workflow", e.Key.String(), "step", e.Step, "duration", e.Duration}
			if e.Err != nil {
				attrs = append(attrs, "err", e.Err)
			}
			logger.InfoContext(ctx, "step_leave", attrs...)
		},
		OnPause: func(ctx context.Context, e *domain.StepEvent) {
			logger.WarnContext(ctx, "workflow_paused", "workflow", e.Key.String(), "step", e.Step,
				"attempt", e.Attempt, "err", e.Err)
		},
		OnFailure: func(ctx context.Context, e *domain.StepEvent) {
			logger.ErrorContext(ctx, "workflow_failed", "workflow", e.Key.String(), "step", e.Step, "err", e.Err)
		},
		OnComplete: func(ctx context.Context, e *domain.StepEvent) {
			logger.InfoContext(ctx, "workflow_completed", "workflow", e.Key.String())
		},
	}
}

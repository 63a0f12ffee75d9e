package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/issueflow/pkg/domain"
	"github.com/aretw0/issueflow/pkg/ports"
)

const mask = "***"

// DefaultSecretPatterns match GitHub tokens and Google API keys.
var DefaultSecretPatterns = []string{
	`gh[pousr]_[A-Za-z0-9]{36,}`,
	`github_pat_[A-Za-z0-9_]{22,}`,
	`AIza[0-9A-Za-z_\-]{35}`,
}

type redactMiddleware struct {
	next     ports.SnapshotStore
	patterns []*regexp.Regexp
}

// NewRedactMiddleware creates a middleware that masks text matching the patterns
// in logs and error messages before they are persisted.
func NewRedactMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.SnapshotStore) ports.SnapshotStore {
		return &redactMiddleware{next: next, patterns: patterns}
	}
}

func (m *redactMiddleware) Save(ctx context.Context, state *domain.WorkflowState) error {
	// The caller keeps using its state, so mask a copy.
	cloned := state.Clone()
	for i, line := range cloned.Logs {
		cloned.Logs[i] = m.redact(line)
	}
	cloned.Error = m.redact(cloned.Error)
	if cloned.PauseContext != nil {
		cloned.PauseContext.LastError = m.redact(cloned.PauseContext.LastError)
	}
	return m.next.Save(ctx, cloned)
}

func (m *redactMiddleware) redact(s string) string {
	for _, p := range m.patterns {
		s = p.ReplaceAllString(s, mask)
	}
	return s
}

func (m *redactMiddleware) Load(ctx context.Context, key domain.WorkflowKey) (*domain.WorkflowState, error) {
	return m.next.Load(ctx, key)
}

func (m *redactMiddleware) Delete(ctx context.Context, key domain.WorkflowKey) error {
	return m.next.Delete(ctx, key)
}

func (m *redactMiddleware) List(ctx context.Context, opts ports.ListOptions) ([]domain.Snapshot, error) {
	return m.next.List(ctx, opts)
}

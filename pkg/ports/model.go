package ports

import (
	"context"

	"github.com/aretw0/issueflow/pkg/domain"
)

// FileContent is a repository file handed to the model.
type FileContent struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ModelClient produces the research, planning and fix outputs of a workflow.
// Failures caused by exhausted quota should wrap domain.ErrRateLimited.
type ModelClient interface {
	// ResearchStep returns the next model turn for the conversation so far.
	// The turn may carry zero or more action calls.
	ResearchStep(ctx context.Context, history []domain.Turn) (domain.Turn, error)

	// Plan drafts a fix plan from the issue and the files read during research.
	Plan(ctx context.Context, title, body string, files []FileContent) (domain.Plan, error)

	// GenerateFix proposes new content for a single file.
	GenerateFix(ctx context.Context, issueBody, analysis, path, content string) (domain.Fix, error)
}

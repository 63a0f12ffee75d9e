package ports

import (
	"context"

	"github.com/aretw0/issueflow/pkg/domain"
)

// DirEntry is a single entry of a directory listing.
type DirEntry struct {
	Path string `json:"path"`
	// Kind is "file" or "dir".
	Kind string `json:"kind"`
}

// FileChange is the new content of one file in a change request.
type FileChange struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ChangeRequest describes a change to publish for an issue.
type ChangeRequest struct {
	IssueNumber int
	Title       string
	Body        string
	Files       []FileChange
}

// RepositoryAccess browses a single repository and publishes changes to it.
// Implementations must be safe for concurrent use.
type RepositoryAccess interface {
	// ListDirectory lists the entries directly under path ("" is the root).
	ListDirectory(ctx context.Context, path string) ([]DirEntry, error)

	// ReadFile returns the content of path.
	// Returns domain.ErrFileNotFound if it does not exist.
	ReadFile(ctx context.Context, path string) (string, error)

	// SearchCode returns paths matching query.
	SearchCode(ctx context.Context, query string) ([]string, error)

	// PublishChange opens a change request and returns its URL.
	// Returns an error wrapping domain.ErrPermissionDenied on insufficient scope.
	PublishChange(ctx context.Context, req ChangeRequest) (string, error)
}

// IssueSource lists and fetches the tracked issues of a repository.
type IssueSource interface {
	ListIssues(ctx context.Context) ([]domain.Issue, error)
	GetIssue(ctx context.Context, number int) (domain.Issue, error)
}

// Repository is everything a workflow host needs from one repository.
type Repository interface {
	RepositoryAccess
	IssueSource
}

// RepositoryProvider hands out repositories by owner and name.
type RepositoryProvider interface {
	Repository(owner, name string) (Repository, error)
}

// RepositoryInfo describes a repository visible to the configured credentials.
type RepositoryInfo struct {
	Owner       string `json:"owner"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
}

// RepositoryLister is optionally implemented by providers that can enumerate repositories.
type RepositoryLister interface {
	ListRepositories(ctx context.Context) ([]RepositoryInfo, error)
}

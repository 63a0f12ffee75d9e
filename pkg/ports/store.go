package ports

import (
	"context"
	"slices"

	"github.com/aretw0/issueflow/pkg/domain"
)

// ListOptions filters a snapshot listing.
type ListOptions struct {
	// Owner and Repo restrict the listing to one repository when set.
	Owner string
	Repo  string
	// Limit caps the number of results; zero means no limit.
	Limit int
}

// Matches reports whether key passes the owner/repo filter.
func (o ListOptions) Matches(key domain.WorkflowKey) bool {
	if o.Owner != "" && o.Owner != key.Owner {
		return false
	}
	if o.Repo != "" && o.Repo != key.Repo {
		return false
	}
	return true
}

// SnapshotStore persists the latest state of every workflow, keyed by its WorkflowKey.
// This allows a workflow paused on quota or at the review gate to be resumed by another process.
type SnapshotStore interface {
	// Save persists state under state.Key, replacing any previous snapshot.
	Save(ctx context.Context, state *domain.WorkflowState) error

	// Load retrieves the snapshot for key.
	// Returns domain.ErrWorkflowNotFound if the workflow does not exist.
	Load(ctx context.Context, key domain.WorkflowKey) (*domain.WorkflowState, error)

	// Delete removes the snapshot for key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key domain.WorkflowKey) error

	// List returns snapshots ordered by UpdatedAt, newest first.
	List(ctx context.Context, opts ListOptions) ([]domain.Snapshot, error)
}

// Collect filters snaps by opts, orders them newest first and applies the limit.
// Stores without a native index use it to implement List.
func Collect(snaps []domain.Snapshot, opts ListOptions) []domain.Snapshot {
	out := make([]domain.Snapshot, 0, len(snaps))
	for _, s := range snaps {
		if opts.Matches(s.Key) {
			out = append(out, s)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.Snapshot) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}

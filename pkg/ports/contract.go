package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/issueflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSnapshotStoreContract runs a suite of tests to verify that a SnapshotStore
// implementation adheres to the defined interface contract.
// The store is expected to be empty.
func RunSnapshotStoreContract(t *testing.T, store SnapshotStore) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	newState := func(owner, repo string, issue int, at time.Time) *domain.WorkflowState {
		s := domain.NewWorkflowState(domain.WorkflowKey{Owner: owner, Repo: repo, Issue: issue})
		s.Status = domain.StepAwaitingHuman.Status()
		s.Issue = &domain.Issue{Number: issue, Title: "Crash on start", Body: "stack trace"}
		s.Logs = []string{"Starting", "[Agent] Plan generated: fix nil check"}
		s.RelevantFiles = []domain.RelevantFile{{Path: "main.go", Reason: "Read by Research Agent", Content: "package main"}}
		s.Plan = &domain.Plan{Analysis: "fix nil check", Steps: []string{"guard"}}
		s.Patches = []domain.Patch{{File: "main.go", OriginalContent: "package main", NewContent: "package main\n", Explanation: "newline"}}
		s.ResearchHistory = []domain.Turn{
			{Role: domain.RoleUser, Text: "research"},
			{Role: domain.RoleModel, Calls: []domain.ActionCall{{ID: "c1", Name: domain.ActionReadFile, Args: map[string]any{"path": "main.go"}}}},
			{Role: domain.RoleTool, Results: []domain.ActionResult{{CallID: "c1", Name: domain.ActionReadFile, Output: "ok"}}},
		}
		s.ResearchLoopCount = 1
		s.LastCompletedCheckpoint = domain.StepGeneratingFix
		s.UpdatedAt = at
		return s
	}

	t.Run("Save and Load", func(t *testing.T) {
		state := newState("contract", "store", 1, base)
		require.NoError(t, store.Save(ctx, state), "Save should not return error")

		loaded, err := store.Load(ctx, state.Key)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, state.Key, loaded.Key)
		assert.Equal(t, state.Status, loaded.Status)
		assert.Equal(t, state.Issue, loaded.Issue)
		assert.Equal(t, state.Logs, loaded.Logs)
		assert.Equal(t, state.RelevantFiles, loaded.RelevantFiles)
		assert.Equal(t, state.Plan, loaded.Plan)
		assert.Equal(t, state.Patches, loaded.Patches)
		assert.Equal(t, state.LastCompletedCheckpoint, loaded.LastCompletedCheckpoint)
		assert.Equal(t, state.ResearchLoopCount, loaded.ResearchLoopCount)
		require.Len(t, loaded.ResearchHistory, 3)
		assert.Equal(t, "main.go", loaded.ResearchHistory[1].Calls[0].Args["path"])
		assert.True(t, state.UpdatedAt.Equal(loaded.UpdatedAt))

		require.NoError(t, store.Delete(ctx, state.Key))
	})

	t.Run("Save Overwrites", func(t *testing.T) {
		state := newState("contract", "store", 2, base)
		require.NoError(t, store.Save(ctx, state))

		state.Status = domain.StatusCompleted
		state.PublishedURL = "https://example.com/pr/1"
		require.NoError(t, store.Save(ctx, state))

		loaded, err := store.Load(ctx, state.Key)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, loaded.Status)
		assert.Equal(t, "https://example.com/pr/1", loaded.PublishedURL)

		require.NoError(t, store.Delete(ctx, state.Key))
	})

	t.Run("Pause Fields Round Trip", func(t *testing.T) {
		state := newState("contract", "store", 3, base)
		state.Status = domain.StatusPausedQuota
		state.PauseReason = domain.PauseReasonQuotaExhausted
		state.PauseContext = &domain.PauseContext{
			StepName: domain.StepPlanning, AttemptCount: 2, LastError: "429", Timestamp: base,
		}
		require.NoError(t, store.Save(ctx, state))

		loaded, err := store.Load(ctx, state.Key)
		require.NoError(t, err)
		assert.Equal(t, domain.PauseReasonQuotaExhausted, loaded.PauseReason)
		require.NotNil(t, loaded.PauseContext)
		assert.Equal(t, domain.StepPlanning, loaded.PauseContext.StepName)
		assert.Equal(t, 2, loaded.PauseContext.AttemptCount)

		require.NoError(t, store.Delete(ctx, state.Key))
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, domain.WorkflowKey{Owner: "contract", Repo: "missing", Issue: 1})
		assert.ErrorIs(t, err, domain.ErrWorkflowNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		state := newState("contract", "store", 4, base)
		require.NoError(t, store.Save(ctx, state))
		require.NoError(t, store.Delete(ctx, state.Key), "Delete should not return error")

		_, err := store.Load(ctx, state.Key)
		assert.ErrorIs(t, err, domain.ErrWorkflowNotFound, "Load after Delete should return ErrWorkflowNotFound")

		assert.NoError(t, store.Delete(ctx, state.Key), "Deleting twice is not an error")
	})

	t.Run("List", func(t *testing.T) {
		oldest := newState("contract", "alpha", 1, base)
		middle := newState("contract", "beta", 2, base.Add(time.Minute))
		newest := newState("contract", "alpha", 3, base.Add(2*time.Minute))
		other := newState("someone", "alpha", 4, base.Add(3*time.Minute))
		all := []*domain.WorkflowState{oldest, middle, newest, other}
		for _, s := range all {
			require.NoError(t, store.Save(ctx, s))
		}
		defer func() {
			for _, s := range all {
				_ = store.Delete(ctx, s.Key)
			}
		}()

		keys := func(snaps []domain.Snapshot) []domain.WorkflowKey {
			out := make([]domain.WorkflowKey, len(snaps))
			for i, s := range snaps {
				out[i] = s.Key
			}
			return out
		}

		snaps, err := store.List(ctx, ListOptions{})
		require.NoError(t, err)
		assert.Equal(t, []domain.WorkflowKey{other.Key, newest.Key, middle.Key, oldest.Key}, keys(snaps))
		assert.Equal(t, "Crash on start", snaps[0].IssueTitle)
		assert.Equal(t, domain.StepAwaitingHuman.Status(), snaps[0].Status)

		snaps, err = store.List(ctx, ListOptions{Owner: "contract", Repo: "alpha"})
		require.NoError(t, err)
		assert.Equal(t, []domain.WorkflowKey{newest.Key, oldest.Key}, keys(snaps))

		snaps, err = store.List(ctx, ListOptions{Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []domain.WorkflowKey{other.Key, newest.Key}, keys(snaps))
	})
}

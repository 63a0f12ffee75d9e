package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/issueflow/internal/config"
	"github.com/aretw0/issueflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadEventIssue(t *testing.T) {
	dir := t.TempDir()
	withIssue := filepath.Join(dir, "issue.json")
	require.NoError(t, os.WriteFile(withIssue, []byte(`{"action":"opened","issue":{"number":42,"title":"Crash"}}`), 0644))
	push := filepath.Join(dir, "push.json")
	require.NoError(t, os.WriteFile(push, []byte(`{"ref":"refs/heads/main"}`), 0644))

	n, err := readEventIssue(withIssue)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	n, err = readEventIssue(push)
	require.NoError(t, err)
	assert.Zero(t, n, "events without an issue are skipped")

	_, err = readEventIssue(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestRunOutcome(t *testing.T) {
	key := domain.WorkflowKey{Owner: "acme", Repo: "api", Issue: 7}
	state := domain.NewWorkflowState(key)

	state.Status = domain.StatusCompleted
	assert.NoError(t, runOutcome(state))

	var exit *exitError
	state.Status, state.Error = domain.StatusFailed, "boom"
	require.True(t, errors.As(runOutcome(state), &exit))
	assert.Equal(t, 1, exit.code)
	assert.Contains(t, exit.Error(), "boom")

	state.Status = domain.StatusPausedQuota
	state.PauseContext = &domain.PauseContext{StepName: domain.StepPlanning}
	require.True(t, errors.As(runOutcome(state), &exit))
	assert.Equal(t, 2, exit.code)
	assert.Contains(t, exit.Error(), string(domain.StepPlanning))
}

func TestParseKey(t *testing.T) {
	cfg = config.Default()
	t.Cleanup(func() { cfg = nil })

	key, err := parseKey("acme/api#7")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowKey{Owner: "acme", Repo: "api", Issue: 7}, key)

	_, err = parseKey("7")
	assert.ErrorIs(t, err, domain.ErrInvalidKey, "bare numbers need a repository")

	cfg.GitHub.Repository = "acme/web"
	key, err = parseKey("7")
	require.NoError(t, err)
	assert.Equal(t, "acme/web#7", key.String())

	_, err = parseKey("seven")
	assert.ErrorIs(t, err, domain.ErrInvalidKey)
}

func TestOpenSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	dir := t.TempDir()
	ctx := context.Background()
	key := domain.WorkflowKey{Owner: "acme", Repo: "api", Issue: 7}

	stores := map[string]config.Store{
		"memory": {Driver: config.StoreMemory},
		"file":   {Driver: config.StoreFile, DSN: filepath.Join(dir, "workflows")},
		"sqlite": {Driver: config.StoreSQLite, DSN: filepath.Join(dir, "issueflow.db")},
		"redis":  {Driver: config.StoreRedis, DSN: mr.Addr()},
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			c := config.Default()
			c.Store = store
			sessions, closeStore, err := openSessions(ctx, c)
			require.NoError(t, err)
			defer closeStore()

			state := domain.NewWorkflowState(key)
			require.NoError(t, sessions.Save(ctx, state))
			got, err := sessions.Load(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, key, got.Key)
		})
	}

	c := config.Default()
	c.Store.Driver = "etcd"
	_, _, err := openSessions(ctx, c)
	assert.Error(t, err)
}

func TestNewService_RequiresCredentials(t *testing.T) {
	c := config.Default()
	c.Store = config.Store{Driver: config.StoreMemory}
	_, _, err := newService(context.Background(), c)
	assert.ErrorContains(t, err, "GITHUB_TOKEN")
}

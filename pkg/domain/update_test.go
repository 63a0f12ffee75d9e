package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApply_LastWriteWins(t *testing.T) {
	base := WorkflowState{
		Status:            StepPlanning.Status(),
		Logs:              []string{"a", "b"},
		ResearchLoopCount: 3,
		Error:             "kept",
	}

	got := Apply(base, Update{
		Logs:              Set([]string{"c"}),
		ResearchLoopCount: Set(4),
	})

	assert.Equal(t, []string{"c"}, got.Logs, "sequences are replaced, not concatenated")
	assert.Equal(t, 4, got.ResearchLoopCount)
	assert.Equal(t, "kept", got.Error, "unset fields are untouched")
	assert.Equal(t, []string{"a", "b"}, base.Logs, "input is not modified")
}

func TestApply_ClearsWithZeroValues(t *testing.T) {
	base := WorkflowState{
		PauseReason:  PauseReasonQuotaExhausted,
		PauseContext: &PauseContext{StepName: StepPlanning, AttemptCount: 2},
	}

	got := Apply(base, Update{
		PauseReason:  Set(PauseReason("")),
		PauseContext: Set[*PauseContext](nil),
	})

	assert.Empty(t, got.PauseReason)
	assert.Nil(t, got.PauseContext)
}

func TestAppendLogs_DoesNotAlias(t *testing.T) {
	logs := make([]string, 1, 8)
	logs[0] = "a"

	first := AppendLogs(logs, "b")
	second := AppendLogs(logs, "c")

	assert.Equal(t, []string{"a", "b"}, first)
	assert.Equal(t, []string{"a", "c"}, second)
}

func TestStatus_Valid(t *testing.T) {
	for _, step := range Steps() {
		assert.True(t, step.Status().Valid(), step)
	}
	assert.True(t, StatusPausedQuota.Valid())
	assert.False(t, Status("RUNNING").Valid())

	_, err := ParseStep("NOPE")
	assert.Error(t, err)
}

func TestParseKey(t *testing.T) {
	key, err := ParseKey("acme/api#42")
	assert.NoError(t, err)
	assert.Equal(t, WorkflowKey{Owner: "acme", Repo: "api", Issue: 42}, key)
	assert.Equal(t, "acme_api_42", key.ID())

	for _, bad := range []string{"acme/api", "acme#1", "acme/api#x", "acme/api#0", "/api#1"} {
		_, err := ParseKey(bad)
		assert.ErrorIs(t, err, ErrInvalidKey, bad)
	}
}

func TestWorkflowState_Clone(t *testing.T) {
	s := NewWorkflowState(WorkflowKey{Owner: "acme", Repo: "api", Issue: 1})
	s.Plan = &Plan{Analysis: "x", Steps: []string{"one"}}
	s.ResearchHistory = []Turn{{Role: RoleModel, Calls: []ActionCall{{Name: ActionReadFile, Args: map[string]any{"path": "a"}}}}}

	c := s.Clone()
	c.Plan.Steps[0] = "changed"
	c.ResearchHistory[0].Calls[0].Args["path"] = "b"

	assert.Equal(t, "one", s.Plan.Steps[0])
	assert.Equal(t, "a", s.ResearchHistory[0].Calls[0].Args["path"])
}

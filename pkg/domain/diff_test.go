package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff(t *testing.T) {
	key := WorkflowKey{Owner: "acme", Repo: "api", Issue: 7}
	research := StepResearchDecision.Status()
	failed := StatusFailed

	tests := []struct {
		name     string
		old      *WorkflowState
		new      *WorkflowState
		wantDiff *StateDiff // nil means no diff
	}{
		{
			name: "Initial Load (Old is Nil)",
			old:  nil,
			new: &WorkflowState{
				Key:    key,
				Status: research,
				Logs:   []string{"Starting"},
			},
			wantDiff: &StateDiff{
				Key:    "acme/api#7",
				Status: &research,
				Logs:   &LogDelta{Appended: []string{"Starting"}},
			},
		},
		{
			name:     "No Changes",
			old:      &WorkflowState{Key: key, Status: research, Logs: []string{"a"}},
			new:      &WorkflowState{Key: key, Status: research, Logs: []string{"a"}},
			wantDiff: nil,
		},
		{
			name: "Log Append",
			old:  &WorkflowState{Key: key, Status: research, Logs: []string{"a"}},
			new:  &WorkflowState{Key: key, Status: research, Logs: []string{"a", "b"}},
			wantDiff: &StateDiff{
				Key:  "acme/api#7",
				Logs: &LogDelta{Appended: []string{"b"}},
			},
		},
		{
			name: "Log Rewrite",
			old:  &WorkflowState{Key: key, Status: StatusCompleted, Logs: []string{"a", "b"}},
			new:  &WorkflowState{Key: key, Status: StatusCompleted, Logs: []string{"Starting"}},
			wantDiff: &StateDiff{
				Key:  "acme/api#7",
				Logs: &LogDelta{Appended: []string{"Starting"}, Reset: true},
			},
		},
		{
			name: "Failure",
			old:  &WorkflowState{Key: key, Status: StepCreatingPR.Status()},
			new:  &WorkflowState{Key: key, Status: StatusFailed, Error: "boom"},
			wantDiff: &StateDiff{
				Key:    "acme/api#7",
				Status: &failed,
				Error:  &[]string{"boom"}[0],
			},
		},
		{
			name: "Files Added",
			old: &WorkflowState{Key: key, RelevantFiles: []RelevantFile{
				{Path: "a.go"},
			}},
			new: &WorkflowState{Key: key, RelevantFiles: []RelevantFile{
				{Path: "a.go"}, {Path: "b.go"},
			}},
			wantDiff: &StateDiff{
				Key:           "acme/api#7",
				RelevantFiles: []string{"b.go"},
			},
		},
		{
			name: "Pause Cleared",
			old: &WorkflowState{Key: key, PauseReason: PauseReasonQuotaExhausted, PauseContext: &PauseContext{
				StepName: StepPlanning, AttemptCount: 1,
			}},
			new: &WorkflowState{Key: key},
			wantDiff: &StateDiff{
				Key:   "acme/api#7",
				Pause: &PauseDelta{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.old, tt.new)
			if tt.wantDiff == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantDiff, got)
		})
	}
}

func TestDiffJSONSerialization(t *testing.T) {
	t.Run("Unchanged Fields Omitted", func(t *testing.T) {
		s1 := &WorkflowState{Status: StatusCompleted, Logs: []string{"a"}}
		s2 := &WorkflowState{Status: StatusCompleted, Logs: []string{"a", "b"}}
		diff := Diff(s1, s2)
		require.NotNil(t, diff)

		bytes, err := json.Marshal(diff)
		require.NoError(t, err)
		assert.False(t, strings.Contains(string(bytes), `"status"`), "got: %s", bytes)
		assert.Contains(t, string(bytes), `"appended":["b"]`)
	})
}

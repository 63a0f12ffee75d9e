package domain

import (
	"reflect"
	"slices"
)

// StateDiff represents the changes between two snapshots.
// It is serialized to JSON for partial updates on the client.
type StateDiff struct {
	// Key is always present to identify the target.
	Key string `json:"key"`

	Status *Status `json:"status,omitempty"`

	Logs *LogDelta `json:"logs,omitempty"`

	// RelevantFiles lists paths added since the previous snapshot.
	RelevantFiles []string `json:"relevantFiles,omitempty"`

	Plan         *Plan   `json:"plan,omitempty"`
	Patches      []Patch `json:"patches,omitempty"`
	PublishedURL *string `json:"publishedUrl,omitempty"`
	Error        *string `json:"error,omitempty"`

	ResearchLoopCount *int `json:"researchLoopCount,omitempty"`

	// Pause is present whenever the pause fields changed; an empty
	// PauseDelta means the pause was cleared.
	Pause *PauseDelta `json:"pause,omitempty"`
}

// LogDelta represents changes to the log sequence.
// Reset is set when the sequence was rewritten (a fresh start) and
// Appended then carries the whole new sequence.
type LogDelta struct {
	Appended []string `json:"appended"`
	Reset    bool     `json:"reset,omitempty"`
}

// PauseDelta carries the current pause fields.
type PauseDelta struct {
	Reason  PauseReason   `json:"reason,omitempty"`
	Context *PauseContext `json:"context,omitempty"`
}

// Diff calculates the difference between oldState and newState.
// If oldState is nil, it returns a diff representing the entire newState (initial load).
// It returns nil when nothing observable changed.
func Diff(oldState, newState *WorkflowState) *StateDiff {
	if newState == nil {
		return nil
	}

	old := oldState
	if old == nil {
		old = &WorkflowState{}
	}

	diff := &StateDiff{
		Key: newState.Key.String(),
	}

	if oldState == nil || old.Status != newState.Status {
		diff.Status = &newState.Status
	}
	diff.Logs = diffLogs(old.Logs, newState.Logs)
	diff.RelevantFiles = diffFiles(old.RelevantFiles, newState.RelevantFiles)

	if newState.Plan != nil && !reflect.DeepEqual(old.Plan, newState.Plan) {
		diff.Plan = newState.Plan
	}
	if !reflect.DeepEqual(old.Patches, newState.Patches) && len(newState.Patches) > 0 {
		diff.Patches = newState.Patches
	}
	if old.PublishedURL != newState.PublishedURL {
		diff.PublishedURL = &newState.PublishedURL
	}
	if old.Error != newState.Error {
		diff.Error = &newState.Error
	}
	if old.ResearchLoopCount != newState.ResearchLoopCount {
		diff.ResearchLoopCount = &newState.ResearchLoopCount
	}
	if old.PauseReason != newState.PauseReason || !reflect.DeepEqual(old.PauseContext, newState.PauseContext) {
		diff.Pause = &PauseDelta{Reason: newState.PauseReason, Context: newState.PauseContext}
	}

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

// diffLogs assumes append-only logs and falls back to a reset otherwise.
func diffLogs(old, new []string) *LogDelta {
	if len(new) == 0 && len(old) == 0 {
		return nil
	}
	if len(new) >= len(old) && slices.Equal(old, new[:len(old)]) {
		if len(new) == len(old) {
			return nil
		}
		return &LogDelta{Appended: new[len(old):]}
	}
	return &LogDelta{Appended: new, Reset: true}
}

func diffFiles(old, new []RelevantFile) []string {
	seen := make(map[string]bool, len(old))
	for _, f := range old {
		seen[f.Path] = true
	}
	var added []string
	for _, f := range new {
		if !seen[f.Path] {
			added = append(added, f.Path)
		}
	}
	return added
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *StateDiff) IsEmpty() bool {
	return d.Status == nil &&
		d.Logs == nil &&
		len(d.RelevantFiles) == 0 &&
		d.Plan == nil &&
		len(d.Patches) == 0 &&
		d.PublishedURL == nil &&
		d.Error == nil &&
		d.ResearchLoopCount == nil &&
		d.Pause == nil
}

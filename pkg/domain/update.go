package domain

import "slices"

// Field is an optional value in an Update. The zero Field is unset.
type Field[T any] struct {
	value T
	set   bool
}

// Set returns a Field carrying v.
func Set[T any](v T) Field[T] {
	return Field[T]{value: v, set: true}
}

// Get returns the carried value and whether the field is set.
func (f Field[T]) Get() (T, bool) {
	return f.value, f.set
}

// IsSet reports whether the field carries a value.
func (f Field[T]) IsSet() bool {
	return f.set
}

// Update is the record of fields a node changed.
// The issue is not part of it: it is fixed once a run starts.
type Update struct {
	Status                  Field[Status]
	Logs                    Field[[]string]
	RelevantFiles           Field[[]RelevantFile]
	Plan                    Field[*Plan]
	Patches                 Field[[]Patch]
	PublishedURL            Field[string]
	Error                   Field[string]
	ResearchHistory         Field[[]Turn]
	ResearchLoopCount       Field[int]
	LastCompletedCheckpoint Field[Step]
	PauseReason             Field[PauseReason]
	PauseContext            Field[*PauseContext]
}

// Apply merges u onto s and returns the result. Every set field replaces the
// prior value; sequences are replaced, never concatenated. s is not modified.
func Apply(s WorkflowState, u Update) WorkflowState {
	if v, ok := u.Status.Get(); ok {
		s.Status = v
	}
	if v, ok := u.Logs.Get(); ok {
		s.Logs = v
	}
	if v, ok := u.RelevantFiles.Get(); ok {
		s.RelevantFiles = v
	}
	if v, ok := u.Plan.Get(); ok {
		s.Plan = v
	}
	if v, ok := u.Patches.Get(); ok {
		s.Patches = v
	}
	if v, ok := u.PublishedURL.Get(); ok {
		s.PublishedURL = v
	}
	if v, ok := u.Error.Get(); ok {
		s.Error = v
	}
	if v, ok := u.ResearchHistory.Get(); ok {
		s.ResearchHistory = v
	}
	if v, ok := u.ResearchLoopCount.Get(); ok {
		s.ResearchLoopCount = v
	}
	if v, ok := u.LastCompletedCheckpoint.Get(); ok {
		s.LastCompletedCheckpoint = v
	}
	if v, ok := u.PauseReason.Get(); ok {
		s.PauseReason = v
	}
	if v, ok := u.PauseContext.Get(); ok {
		s.PauseContext = v
	}
	return s
}

// AppendLogs returns a new sequence made of logs followed by entries.
// The backing array of logs is never shared with the result.
func AppendLogs(logs []string, entries ...string) []string {
	return slices.Concat(logs, entries)
}

// AppendTurns is AppendLogs for research history.
func AppendTurns(history []Turn, turns ...Turn) []Turn {
	return slices.Concat(history, turns)
}

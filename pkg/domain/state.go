package domain

import (
	"slices"
	"time"
)

// Issue is the tracked issue a workflow resolves.
type Issue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	URL    string `json:"url,omitempty"`
}

// RelevantFile is a repository file read during research.
type RelevantFile struct {
	Path    string `json:"path"`
	Reason  string `json:"reason"`
	Content string `json:"content,omitempty"`
}

// Plan is the structured fix plan produced by the planning step.
type Plan struct {
	Analysis string   `json:"analysis"`
	Steps    []string `json:"steps"`
}

// Fix is the model's proposal for a single file.
type Fix struct {
	NewContent  string `json:"newContent"`
	Explanation string `json:"explanation"`
}

// Patch is a proposed change to one file.
type Patch struct {
	File            string `json:"file"`
	OriginalContent string `json:"originalContent"`
	NewContent      string `json:"newContent"`
	Explanation     string `json:"explanation"`
}

// PauseContext records where a quota pause happened.
type PauseContext struct {
	StepName     Step      `json:"stepName"`
	AttemptCount int       `json:"attemptCount"`
	LastError    string    `json:"lastError"`
	Timestamp    time.Time `json:"timestamp"`
}

// WorkflowState is the snapshot of one workflow run.
//
// Snapshots handed to observers are never mutated afterwards: every change
// produces a new value through Apply.
type WorkflowState struct {
	Key    WorkflowKey `json:"key"`
	Status Status      `json:"status"`
	Issue  *Issue      `json:"issue,omitempty"`

	// Logs holds the full accumulated event sequence.
	Logs []string `json:"logs"`

	RelevantFiles []RelevantFile `json:"relevantFiles"`
	Plan          *Plan          `json:"plan,omitempty"`
	Patches       []Patch        `json:"patches,omitempty"`
	PublishedURL  string         `json:"publishedUrl,omitempty"`
	Error         string         `json:"error,omitempty"`

	ResearchHistory   []Turn `json:"researchHistory"`
	ResearchLoopCount int    `json:"researchLoopCount"`

	LastCompletedCheckpoint Step          `json:"lastCompletedCheckpoint,omitempty"`
	PauseReason             PauseReason   `json:"pauseReason,omitempty"`
	PauseContext            *PauseContext `json:"pauseContext,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// NewWorkflowState returns an idle state for key.
func NewWorkflowState(key WorkflowKey) *WorkflowState {
	return &WorkflowState{
		Key:             key,
		Status:          StatusIdle,
		Logs:            []string{},
		RelevantFiles:   []RelevantFile{},
		ResearchHistory: []Turn{},
	}
}

// Clone returns a deep copy of s.
func (s *WorkflowState) Clone() *WorkflowState {
	if s == nil {
		return nil
	}
	c := *s
	if s.Issue != nil {
		issue := *s.Issue
		c.Issue = &issue
	}
	c.Logs = slices.Clone(s.Logs)
	c.RelevantFiles = slices.Clone(s.RelevantFiles)
	if s.Plan != nil {
		plan := Plan{Analysis: s.Plan.Analysis, Steps: slices.Clone(s.Plan.Steps)}
		c.Plan = &plan
	}
	c.Patches = slices.Clone(s.Patches)
	if s.ResearchHistory != nil {
		c.ResearchHistory = make([]Turn, len(s.ResearchHistory))
		for i, t := range s.ResearchHistory {
			c.ResearchHistory[i] = t.clone()
		}
	}
	if s.PauseContext != nil {
		pc := *s.PauseContext
		c.PauseContext = &pc
	}
	return &c
}

// Snapshot summarizes s for listings.
func (s *WorkflowState) Snapshot() Snapshot {
	snap := Snapshot{
		Key:       s.Key,
		Status:    s.Status,
		UpdatedAt: s.UpdatedAt,
		Published: s.PublishedURL,
	}
	if s.Issue != nil {
		snap.IssueTitle = s.Issue.Title
	}
	return snap
}

// Snapshot is the listing view of a stored workflow.
type Snapshot struct {
	Key        WorkflowKey `json:"key"`
	Status     Status      `json:"status"`
	IssueTitle string      `json:"issueTitle,omitempty"`
	Published  string      `json:"publishedUrl,omitempty"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

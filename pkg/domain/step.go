package domain

import "fmt"

// Step identifies a node of the workflow graph.
type Step string

const (
	StepResearchDecision Step = "RESEARCH_DECISION"
	StepResearchTool     Step = "RESEARCH_TOOL"
	StepPlanning         Step = "PLANNING"
	StepGeneratingFix    Step = "GENERATING_FIX"
	StepAwaitingHuman    Step = "AWAITING_HUMAN"
	StepCreatingPR       Step = "CREATING_PR"
)

var steps = []Step{
	StepResearchDecision,
	StepResearchTool,
	StepPlanning,
	StepGeneratingFix,
	StepAwaitingHuman,
	StepCreatingPR,
}

// Steps returns every step in graph order.
func Steps() []Step {
	out := make([]Step, len(steps))
	copy(out, steps)
	return out
}

// Valid reports whether s is one of the declared steps.
func (s Step) Valid() bool {
	switch s {
	case StepResearchDecision, StepResearchTool, StepPlanning,
		StepGeneratingFix, StepAwaitingHuman, StepCreatingPR:
		return true
	}
	return false
}

// Status returns the status a workflow reports while executing s.
func (s Step) Status() Status {
	return Status(s)
}

func (s Step) String() string {
	return string(s)
}

// ParseStep validates a step name.
func ParseStep(name string) (Step, error) {
	s := Step(name)
	if !s.Valid() {
		return "", fmt.Errorf("unknown step %q", name)
	}
	return s, nil
}

// Status is the externally visible status of a workflow.
// It is either a step name or one of the lifecycle values below.
type Status string

const (
	StatusIdle        Status = "IDLE"
	StatusCompleted   Status = "COMPLETED"
	StatusFailed      Status = "FAILED"
	StatusPausedQuota Status = "PAUSED_QUOTA"
)

// Step returns the step a status names, if any.
func (s Status) Step() (Step, bool) {
	step := Step(s)
	return step, step.Valid()
}

// Terminal reports whether no further execution is possible without a fresh start.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a declared step name or lifecycle value.
func (s Status) Valid() bool {
	switch s {
	case StatusIdle, StatusCompleted, StatusFailed, StatusPausedQuota:
		return true
	}
	_, ok := s.Step()
	return ok
}

// PauseReason explains why a workflow stopped without failing.
type PauseReason string

const PauseReasonQuotaExhausted PauseReason = "QUOTA_EXHAUSTED"

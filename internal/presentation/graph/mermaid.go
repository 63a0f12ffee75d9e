package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/issueflow/pkg/domain"
	"github.com/aretw0/issueflow/pkg/dsl"
)

const (
	startID = "START"
	endID   = "END"
)

// Overlay contains run state to visualize on the graph.
type Overlay struct {
	Visited []domain.Step
	Current domain.Step
	// Failed marks Current as the step that failed or paused.
	Failed bool
	// Done marks the run as completed.
	Done bool
}

// OverlayFor derives the overlay of a stored workflow. Idle workflows have none.
func OverlayFor(state *domain.WorkflowState) *Overlay {
	if state == nil || state.Status == domain.StatusIdle {
		return nil
	}
	o := &Overlay{}
	switch state.Status {
	case domain.StatusCompleted:
		o.Visited = domain.Steps()
		o.Done = true
	case domain.StatusPausedQuota:
		if state.PauseContext != nil {
			o.Current = state.PauseContext.StepName
			o.Failed = true
		}
	case domain.StatusFailed:
		o.Failed = true
	default:
		o.Current, _ = state.Status.Step()
	}

	if !o.Done {
		o.Visited = visitedBefore(o.Current, state.LastCompletedCheckpoint)
	}
	return o
}

// visitedBefore lists the steps up to the current step, or through the checkpoint when there is no current step.
func visitedBefore(current, checkpoint domain.Step) []domain.Step {
	var out []domain.Step
	for _, s := range domain.Steps() {
		if s == current {
			return out
		}
		if current == "" && checkpoint == "" {
			return out
		}
		out = append(out, s)
		if current == "" && s == checkpoint {
			return out
		}
	}
	return out
}

// GenerateMermaid produces a Mermaid flowchart of g.
// It applies semantic styling:
// - Start and end: ((Circle))
// - Tool execution: [[Subroutine]]
// - Human review (interrupts): [/Parallelogram/]
// - Default: [Rectangle]
// Conditional edges are dotted; overlay styles are applied if provided.
func GenerateMermaid(g *dsl.Graph, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	fmt.Fprintf(&sb, "    %s((\"start\"))\n", startID)
	fmt.Fprintf(&sb, "    %s((\"end\"))\n", endID)
	fmt.Fprintf(&sb, "    %s --> %s\n", startID, sanitizeMermaidID(string(g.Entry())))

	for _, step := range g.Steps() {
		safeID := sanitizeMermaidID(string(step))

		opener, closer := "[", "]"
		switch {
		case g.Interrupts(step):
			opener, closer = "[/", "/]"
		case step == domain.StepResearchTool:
			opener, closer = "[[", "]]"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, step, closer)

		edge, ok := g.Edge(step)
		if !ok {
			fmt.Fprintf(&sb, "    %s --> %s\n", safeID, endID)
			continue
		}
		arrow := "-->"
		if edge.Conditional() {
			arrow = "-.->"
		}
		for _, to := range edge.Targets() {
			fmt.Fprintf(&sb, "    %s %s %s\n", safeID, arrow, targetID(to))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		sb.WriteString("    classDef failed fill:#ffcdd2,stroke:#c62828,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, step := range overlay.Visited {
			safeID := sanitizeMermaidID(string(step))
			if !seen[safeID] && safeID != "" {
				seen[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}
		if overlay.Done {
			fmt.Fprintf(&sb, "    class %s current;\n", endID)
		}
		if overlay.Current != "" {
			class := "current"
			if overlay.Failed {
				class = "failed"
			}
			fmt.Fprintf(&sb, "    class %s %s;\n", sanitizeMermaidID(string(overlay.Current)), class)
		}
	}

	return sb.String()
}

func targetID(step domain.Step) string {
	if step == dsl.End {
		return endID
	}
	return sanitizeMermaidID(string(step))
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}

package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/issueflow/pkg/domain"
)

// DefaultLogTail is the number of log lines WorkflowMarkdown shows.
const DefaultLogTail = 15

// WorkflowMarkdown describes a workflow for `workflow inspect`.
func WorkflowMarkdown(state *domain.WorkflowState, logTail int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", state.Key)
	fmt.Fprintf(&sb, "**Status:** `%s`", state.Status)
	if !state.UpdatedAt.IsZero() {
		fmt.Fprintf(&sb, " (updated %s)", state.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
	}
	sb.WriteString("\n\n")

	if state.Issue != nil {
		fmt.Fprintf(&sb, "## Issue #%d: %s\n\n", state.Issue.Number, state.Issue.Title)
		if body := strings.TrimSpace(state.Issue.Body); body != "" {
			sb.WriteString(quote(body))
			sb.WriteString("\n\n")
		}
	}

	if pc := state.PauseContext; pc != nil {
		fmt.Fprintf(&sb, "> Paused at `%s` after %d attempt(s): %s\n\n", pc.StepName, pc.AttemptCount, pc.LastError)
	}
	if state.Error != "" {
		fmt.Fprintf(&sb, "**Error:** %s\n\n", state.Error)
	}

	if len(state.RelevantFiles) > 0 {
		sb.WriteString("## Files read\n\n")
		for _, f := range state.RelevantFiles {
			fmt.Fprintf(&sb, "- `%s`\n", f.Path)
		}
		sb.WriteString("\n")
	}

	if state.Plan != nil {
		sb.WriteString("## Plan\n\n")
		sb.WriteString(state.Plan.Analysis)
		sb.WriteString("\n\n")
		for i, step := range state.Plan.Steps {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, step)
		}
		if len(state.Plan.Steps) > 0 {
			sb.WriteString("\n")
		}
	}

	if len(state.Patches) > 0 {
		sb.WriteString("## Patches\n\n")
		for _, p := range state.Patches {
			fmt.Fprintf(&sb, "### `%s`\n\n%s\n\n", p.File, p.Explanation)
		}
	}

	if state.PublishedURL != "" {
		fmt.Fprintf(&sb, "**Pull request:** %s\n\n", state.PublishedURL)
	}

	if len(state.Logs) > 0 {
		logs := state.Logs
		if logTail > 0 && len(logs) > logTail {
			logs = logs[len(logs)-logTail:]
		}
		sb.WriteString("## Log\n\n```\n")
		for _, line := range logs {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
		sb.WriteString("```\n")
	}
	return sb.String()
}

func quote(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n")
}

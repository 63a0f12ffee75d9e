package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/aretw0/issueflow"
	"github.com/aretw0/issueflow/internal/logging"
	"github.com/aretw0/issueflow/pkg/domain"
	"github.com/aretw0/issueflow/pkg/service"
	"github.com/spf13/cobra"
)

// issueEvent is the part of a GitHub issues webhook payload the run command reads.
type issueEvent struct {
	Issue *struct {
		Number int `json:"number"`
	} `json:"issue"`
}

// readEventIssue returns the issue number in the event at path, or zero when it has none.
func readEventIssue(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read event: %w", err)
	}
	var ev issueEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return 0, fmt.Errorf("failed to parse event: %w", err)
	}
	if ev.Issue == nil {
		return 0, nil
	}
	return ev.Issue.Number, nil
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Resolve one issue without review (CI mode)",
	Long: `Runs a workflow headless: the patches are published without waiting for approval.
The issue comes from --issue, or from the event file at --event (default $GITHUB_EVENT_PATH).
Exits 1 when the workflow fails and 2 when it pauses on a rate limit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		repository, _ := cmd.Flags().GetString("repo")
		if repository != "" {
			cfg.GitHub.Repository = repository
		}
		number, _ := cmd.Flags().GetInt("issue")
		if number == 0 {
			eventPath, _ := cmd.Flags().GetString("event")
			if eventPath == "" {
				eventPath = os.Getenv("GITHUB_EVENT_PATH")
			}
			if eventPath == "" {
				return fmt.Errorf("--issue or --event (GITHUB_EVENT_PATH) is required")
			}
			n, err := readEventIssue(eventPath)
			if err != nil {
				return err
			}
			if n == 0 {
				logger.Info("No issue found in event data. Skipping.")
				return nil
			}
			number = n
		}

		key, err := parseKey(fmt.Sprint(number))
		if err != nil {
			return err
		}

		svc, closeSvc, err := newService(cmd.Context(), cfg,
			service.WithSynchronous(true),
			service.WithLifecycleHooks(logging.Hooks(logger)),
			service.WithWorkflowOptions(issueflow.WithHeadless(true)),
		)
		if err != nil {
			return err
		}
		defer closeSvc()

		logger.Info("Starting issueflow run", "workflow", key.String())
		state, err := svc.Start(cmd.Context(), key)
		if err != nil {
			return err
		}
		return runOutcome(state)
	},
}

// runOutcome maps a finished headless run to the process exit status.
func runOutcome(state *domain.WorkflowState) error {
	switch state.Status {
	case domain.StatusCompleted:
		fmt.Println(state.PublishedURL)
		return nil
	case domain.StatusFailed:
		return &exitError{code: 1, msg: fmt.Sprintf("workflow %s failed: %s", state.Key, state.Error)}
	case domain.StatusPausedQuota:
		step := domain.Step("")
		if state.PauseContext != nil {
			step = state.PauseContext.StepName
		}
		return &exitError{code: 2, msg: fmt.Sprintf("workflow %s paused on a rate limit at %s; resume it later", state.Key, step)}
	default:
		return &exitError{code: 1, msg: fmt.Sprintf("workflow %s stopped at %s", state.Key, state.Status)}
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Int("issue", 0, "Issue number (overrides --event)")
	runCmd.Flags().String("event", "", "GitHub event payload (default $GITHUB_EVENT_PATH)")
	runCmd.Flags().String("repo", "", "Repository owner/name (default $GITHUB_REPOSITORY)")
}

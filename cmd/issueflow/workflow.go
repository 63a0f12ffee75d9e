package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/aretw0/issueflow/internal/logging"
	"github.com/aretw0/issueflow/internal/presentation/tui"
	"github.com/aretw0/issueflow/pkg/domain"
	"github.com/aretw0/issueflow/pkg/ports"
	"github.com/aretw0/issueflow/pkg/service"
	"github.com/spf13/cobra"
)

var workflowCmd = &cobra.Command{
	Use:     "workflow",
	Aliases: []string{"wf"},
	Short:   "Manage stored workflows",
	Long:    `List, inspect, remove and drive the workflows kept in the configured store.`,
}

var workflowLsCmd = &cobra.Command{
	Use:   "ls [owner/repo]",
	Short: "List workflows, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, closeStore, err := openSessions(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		limit, _ := cmd.Flags().GetInt("limit")
		opts := ports.ListOptions{Limit: limit}
		if len(args) == 1 {
			if opts.Owner, opts.Repo, err = domain.ParseRepository(args[0]); err != nil {
				return err
			}
		}
		snaps, err := sessions.List(cmd.Context(), opts)
		if err != nil {
			return fmt.Errorf("listing workflows: %w", err)
		}
		if len(snaps) == 0 {
			fmt.Println("No workflows found.")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "WORKFLOW\tSTATUS\tUPDATED\tTITLE")
		for _, s := range snaps {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Key, s.Status, s.UpdatedAt.Local().Format(time.DateTime), s.IssueTitle)
		}
		return tw.Flush()
	},
}

var workflowInspectCmd = &cobra.Command{
	Use:   "inspect <owner/repo#n | n>",
	Short: "Show a workflow's plan, patches and recent log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := parseKey(args[0])
		if err != nil {
			return err
		}
		sessions, closeStore, err := openSessions(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		state, err := sessions.Load(cmd.Context(), key)
		if err != nil {
			return fmt.Errorf("loading workflow '%s': %w", key, err)
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			data, err := json.MarshalIndent(state, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		tail, _ := cmd.Flags().GetInt("logs")
		out, err := tui.NewRenderer(os.Stdout)(tui.WorkflowMarkdown(state, tail))
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

var workflowRmCmd = &cobra.Command{
	Use:   "rm <owner/repo#n | n>...",
	Short: "Remove one or more workflows",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, closeStore, err := openSessions(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		failed := 0
		for _, arg := range args {
			key, err := parseKey(arg)
			if err == nil {
				err = sessions.Delete(cmd.Context(), key)
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error removing '%s': %v\n", arg, err)
				failed++
				continue
			}
			fmt.Printf("Removed workflow '%s'\n", key)
		}
		if failed > 0 {
			return &exitError{code: 1, msg: fmt.Sprintf("%d workflow(s) not removed", failed)}
		}
		return nil
	},
}

// driveCommand builds a command that runs one service operation in the foreground.
func driveCommand(use, short string, op func(cmd *cobra.Command, svc *service.Service, key domain.WorkflowKey) (*domain.WorkflowState, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <owner/repo#n | n>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}
			svc, closeSvc, err := newService(cmd.Context(), cfg,
				service.WithSynchronous(true),
				service.WithLifecycleHooks(logging.Hooks(logger)),
			)
			if err != nil {
				return err
			}
			defer closeSvc()

			state, err := op(cmd, svc, key)
			if err != nil {
				return err
			}
			out, err := tui.NewRenderer(os.Stdout)(tui.WorkflowMarkdown(state, tui.DefaultLogTail))
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
}

var workflowStartCmd = driveCommand("start", "Start resolving an issue and stop at review",
	func(cmd *cobra.Command, svc *service.Service, key domain.WorkflowKey) (*domain.WorkflowState, error) {
		return svc.Start(cmd.Context(), key)
	})

var workflowResumeCmd = driveCommand("resume", "Resume a workflow paused on a rate limit",
	func(cmd *cobra.Command, svc *service.Service, key domain.WorkflowKey) (*domain.WorkflowState, error) {
		return svc.Resume(cmd.Context(), key)
	})

var workflowApproveCmd = driveCommand("approve", "Approve the patches and open the pull request",
	func(cmd *cobra.Command, svc *service.Service, key domain.WorkflowKey) (*domain.WorkflowState, error) {
		return svc.Decide(cmd.Context(), key, true, "")
	})

var workflowRejectCmd = driveCommand("reject", "Reject the patches",
	func(cmd *cobra.Command, svc *service.Service, key domain.WorkflowKey) (*domain.WorkflowState, error) {
		feedback, _ := cmd.Flags().GetString("feedback")
		return svc.Decide(cmd.Context(), key, false, feedback)
	})

func init() {
	rootCmd.AddCommand(workflowCmd)
	workflowCmd.AddCommand(workflowLsCmd, workflowInspectCmd, workflowRmCmd,
		workflowStartCmd, workflowResumeCmd, workflowApproveCmd, workflowRejectCmd)

	workflowLsCmd.Flags().Int("limit", 20, "Maximum number of workflows (0 for all)")
	workflowInspectCmd.Flags().Bool("json", false, "Print the raw state as JSON")
	workflowInspectCmd.Flags().Int("logs", tui.DefaultLogTail, "Number of log lines to show")
	workflowRejectCmd.Flags().String("feedback", "", "Why the patches were rejected")
}

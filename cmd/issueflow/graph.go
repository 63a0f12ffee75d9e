package main

import (
	"fmt"

	"github.com/aretw0/issueflow"
	"github.com/aretw0/issueflow/internal/presentation/graph"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph [owner/repo#n | n]",
	Short: "Export the workflow graph as Mermaid",
	Long: `Outputs a Mermaid diagram (graph TD) of the workflow steps.
Given a workflow, its progress is highlighted from the stored state.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		headless, _ := cmd.Flags().GetBool("headless")
		g, err := issueflow.BuildGraph(headless)
		if err != nil {
			return err
		}

		var overlay *graph.Overlay
		if len(args) == 1 {
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
			overlay = graph.OverlayFor(state)
		}

		fmt.Print(graph.GenerateMermaid(g, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().Bool("headless", false, "Render the graph without the review gate")
}

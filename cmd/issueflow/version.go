package main

import (
	"fmt"

	"github.com/aretw0/issueflow"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of issueflow",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("issueflow version %s\n", issueflow.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

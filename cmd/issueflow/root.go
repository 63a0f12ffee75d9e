package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/issueflow/internal/config"
	"github.com/aretw0/issueflow/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfg    *config.Config
	logger *slog.Logger = logging.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "issueflow",
	Short: "issueflow resolves GitHub issues with a reviewed, model-generated fix",
	Long: `issueflow researches a repository for an issue, plans and generates a fix,
waits for a human to approve the patches, then opens a pull request.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Log.Level, _ = cmd.Flags().GetString("log-level")
		}
		if cmd.Flags().Changed("log-format") {
			loaded.Log.Format, _ = cmd.Flags().GetString("log-format")
		}
		if cmd.Flags().Changed("store") {
			loaded.Store.Driver, _ = cmd.Flags().GetString("store")
		}
		if cmd.Flags().Changed("store-dsn") {
			loaded.Store.DSN, _ = cmd.Flags().GetString("store-dsn")
		}
		if err := loaded.Validate(); err != nil {
			return err
		}

		level, err := logging.ParseLevel(loaded.Log.Level)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = logging.New(level, loaded.Log.Format)
		return nil
	},
}

// exitError ends the process with code after printing its message.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default "+config.DefaultPath+" when present)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format: text or json")
	rootCmd.PersistentFlags().String("store", "", "Workflow store: memory, file, redis, sqlite, postgres")
	rootCmd.PersistentFlags().String("store-dsn", "", "Store location (directory, path, address or URL)")
}

package main

import (
	"fmt"
	"log/slog"

	"github.com/rbhughes/old-purrio-geographix/internal/config"
	"github.com/rbhughes/old-purrio-geographix/internal/platform/logger"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "0.1.0"

var (
	configPath string

	cfg         *config.Config
	log         *slog.Logger
	closeLogger = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "purr",
	Short: "Task worker for legacy geoscience project databases",
	Long: `purr admits tasks addressed to this worker from the shared task table
and runs them: batch extraction of legacy SQL Anywhere assets into searchable
documents, project discovery and full-text search.

Configuration comes from config.yaml (or --config) and PURR_* environment
variables.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, err = config.LoadFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		log, closeLogger, err = logger.Setup(cfg.Worker)
		if err != nil {
			return fmt.Errorf("failed to set up logger: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLogger()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./config.yaml)")

	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(migrateCmd)
}

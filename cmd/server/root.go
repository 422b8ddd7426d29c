package main

import (
	"log/slog"
	"os"

	"bandsched/backend/internal/config"
	"bandsched/backend/internal/logging"

	"github.com/spf13/cobra"
)

const serviceName = "bandsched-api"

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the API server.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "bandsched-api",
		Short:         "Band scheduling API server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file path")
	cmd.PersistentFlags().String("app-env", "", "runtime environment (development, test, production)")
	cmd.PersistentFlags().String("store", "", "credential store (postgres, memory)")
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL")
	cmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", "", "log format (json, text)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}

// loadConfig reads configuration with cmd's flags as the top layer and
// builds the process logger from it.
func loadConfig(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cmd.Flags(), configFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger := logging.Setup(serviceName, version, cfg.LogFormat, cfg.LogLevel, os.Stderr)
	slog.SetDefault(logger)
	if cfg.UsingDefaultSecret {
		logger.Warn("JWT_SECRET not set, using the insecure default secret", "env", cfg.Env)
	}
	return cfg, logger, nil
}

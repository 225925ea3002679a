// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/codevault/codevault/internal/config"
)

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// serviceName labels every log line.
const serviceName = "codevault"

// NewRootCmd creates the root command for the CodeVault CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codevault",
		Short: "CodeVault - account service for the snippet vault",
		Long: `CodeVault runs the account service behind the snippet vault:
registration, sign-in, bearer tokens and self-service password recovery.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment (missing file is ignored)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewAccountCmd())

	return cmd
}

// loadConfig reads the configuration for cmd, layering its changed flags
// over the file and the environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(config.LoadOptions{
		File:   configFile,
		DotEnv: envFile,
		Flags:  cmd.Flags(),
	})
}

// addDatabaseFlags registers the flags shared by every command that talks
// to the database.
func addDatabaseFlags(fs *pflag.FlagSet) {
	fs.String("database-url", "", "database connection URL")
	fs.String("db-driver", config.DriverPostgres, "database driver (postgres or mongo)")
	fs.String("log-format", "json", "log format (json or text)")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
}

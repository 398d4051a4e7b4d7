// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/sessionauth/internal/config"
	"github.com/holomush/sessionauth/internal/logging"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the sessionauth CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessionauth",
		Short: "sessionauth - password login with signed session tokens",
		Long: `sessionauth verifies usernames and passwords against PostgreSQL,
issues signed, time-limited session tokens and keeps them in an
encrypted session cookie.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/sessionauth/config.yaml)")
	// Names map to config keys with dashes replaced by dots.
	flags.String("log-format", "json", "log format (json or text)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("http-addr", "127.0.0.1:8080", "HTTP listen address")
	flags.String("metrics-addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")
	flags.Duration("session-maxage", 0, "maximum token age (default 1h)")
	flags.String("session-backend", "", "session backend (cookie or redis)")
	flags.String("token-format", "", "token format (itsdangerous or jwt)")
	flags.String("password-algorithm", "", "password hash algorithm (sha256, argon2id or bcrypt)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewHashPasswordCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// loadConfig reads configuration for cmd, honoring flags set on the command
// line.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	return config.Load(configFile, cmd.Flags())
}

func setupLogging(cmd *cobra.Command, cfg config.Config) {
	logging.SetDefault(logging.Options{
		Service: "sessionauth",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Writer:  cmd.ErrOrStderr(),
	})
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/authgate/authgate/internal/config"
)

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	configFile string
	envFiles   []string
}

// NewRootCmd creates the root command for the AuthGate CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(defaultMigratorFactory)
}

func newRootCmd(migrators migratorFactory) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "authgate",
		Short: "AuthGate - credential auth behind a request security gate",
		Long: `AuthGate serves sign-up, sign-in and sign-out over HTTP with bcrypt
password storage and JWT session cookies. Every request first passes a
security gate of shield, bot and sliding-window rate-limit rules.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/authgate/config.yaml)")
	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files to load")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts, migrators))
	cmd.AddCommand(NewSchemaCmd())
	cmd.AddCommand(NewCertCmd())

	return cmd
}

// loadConfig resolves configuration for a running subcommand.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	//nolint:wrapcheck // config errors carry their own codes
	return config.Load(config.LoadOptions{
		ConfigFile: opts.configFile,
		EnvFiles:   opts.envFiles,
		Flags:      cmd.Flags(),
	})
}

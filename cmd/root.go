// Copyright (c) 2025 Pgrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for the Pgrun CLI. It
// implements subcommands for managing connection profiles, executing SQL
// scripts against saved profiles, and cancelling running statements, using the
// Cobra CLI framework with a rich terminal UI.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	showVersion bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:           "pgrun",
	Short:         "Run SQL scripts against saved PostgreSQL connection profiles",
	Long: `Pgrun is a command-line tool for executing SQL scripts against PostgreSQL.
Connection profiles are stored locally with passwords in the OS keychain;
scripts run statement by statement on reusable session connections, so
temporary tables and open transactions survive between runs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Printf("pgrun %s\n", Version)
			return nil
		}
		// If no flag is set, show help
		return cmd.Help()
	},
}

// Execute runs the CLI application.
// It executes the root command and handles any errors that occur during execution.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show version information")
}

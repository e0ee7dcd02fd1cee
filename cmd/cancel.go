// Copyright (c) 2025 Pgrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"os"

	"pgrun/cli/internal/config"
	"pgrun/cli/internal/connmux"
	"pgrun/cli/internal/logging"
	"pgrun/cli/internal/pgcancel"
	"pgrun/cli/internal/profile"
	"pgrun/cli/internal/secure"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	cancelProfile  string
	cancelDatabase string
	cancelPID      uint32
)

// cancelCmd asks the server to cancel the statement running on a backend. The
// signal travels over an independent pooled connection, so it works while the
// target session is busy.
var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel the statement running on a backend",
	Long: `The cancel command sends pg_cancel_backend to the server for the given
backend pid, interrupting the statement it is currently running. The backend
keeps its connection; only the statement is cancelled.

The backend pid of a session is printed with each statement result of
'pgrun run'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return signalBackend(cmd, false)
	},
}

// terminateCmd closes a backend's connection entirely.
var terminateCmd = &cobra.Command{
	Use:   "terminate",
	Short: "Terminate a backend, closing its connection",
	Long: `The terminate command sends pg_terminate_backend to the server for the
given backend pid, closing that backend's connection. A session whose backend
was terminated reconnects on its next use.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return signalBackend(cmd, true)
	},
}

func signalBackend(cmd *cobra.Command, terminate bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	prof, err := cfg.FindProfile(cancelProfile)
	if err != nil {
		return err
	}

	mux := connmux.New(secure.Store{})
	defer func() {
		if err := mux.CloseAll(cmd.Context()); err != nil {
			fmt.Fprintln(os.Stderr, logging.PresentError("close connections", err))
		}
	}()

	ctrl := pgcancel.New(mux)
	ok, err := send(cmd, ctrl, prof, terminate)
	if err != nil {
		pterm.Println("❌ " + logging.PresentError("signal failed", err))
		return err
	}
	if !ok {
		pterm.Printf("⚠️  Server declined: no cancellable backend with pid %d\n", cancelPID)
		return nil
	}
	if terminate {
		pterm.Printf("✅ Backend %d terminated\n", cancelPID)
	} else {
		pterm.Printf("✅ Cancel requested for backend %d\n", cancelPID)
	}
	return nil
}

func send(cmd *cobra.Command, ctrl *pgcancel.Controller, prof *profile.Profile, terminate bool) (bool, error) {
	if terminate {
		return ctrl.RequestTerminate(cmd.Context(), prof, cancelDatabase, cancelPID)
	}
	return ctrl.RequestCancel(cmd.Context(), prof, cancelDatabase, cancelPID)
}

func init() {
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(terminateCmd)
	for _, c := range []*cobra.Command{cancelCmd, terminateCmd} {
		c.Flags().StringVarP(&cancelProfile, "profile", "p", "", "Connection profile id (required)")
		c.Flags().StringVarP(&cancelDatabase, "database", "d", "", "Target database (default: profile's database)")
		c.Flags().Uint32Var(&cancelPID, "pid", 0, "Backend pid to signal (required)")
		_ = c.MarkFlagRequired("profile")
		_ = c.MarkFlagRequired("pid")
	}
}

// Copyright (c) 2025 Pgrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"pgrun/cli/internal/config"
	"pgrun/cli/internal/connmux"
	"pgrun/cli/internal/history"
	"pgrun/cli/internal/logging"
	"pgrun/cli/internal/profile"
	"pgrun/cli/internal/secure"
	"pgrun/cli/internal/splitter"
	"pgrun/cli/internal/sqlexec"
	"pgrun/cli/internal/stream"
	"pgrun/cli/internal/xdg"

	"atomicgo.dev/cursor"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	runProfile   string
	runDatabase  string
	runSession   string
	runExecute   string
	runFile      string
	runStream    bool
	runBatchSize int
	verboseRun   bool
)

// streamLimitThreshold is the LIMIT at or below which a query is answered in
// one response instead of a cursor stream.
const streamLimitThreshold = 1000

// runCmd executes a SQL script against a saved profile.
var runCmd = &cobra.Command{
	Use:   "run [script.sql]",
	Short: "Execute a SQL script against a saved profile",
	Long: `The run command splits a SQL script into statements and executes them in
order on a session connection. Results are rendered per statement as soon as
they arrive; the first failing statement stops the script.

Session connections are identified by --session and reused across invocations,
so temporary tables and open transactions created by one run are visible to
the next run with the same session id.

The script is read from --execute, from the file argument, or from stdin.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Enable verbose mode for all modules if --verbose is set
		if verboseRun {
			os.Setenv(logging.VerboseEnv, "1")
		}

		script, err := resolveScript(args)
		if err != nil {
			return err
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		prof, err := cfg.FindProfile(runProfile)
		if err != nil {
			return err
		}

		sessionID := runSession
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		mux := connmux.New(secure.Store{})
		defer func() {
			if err := mux.CloseAll(cmd.Context()); err != nil {
				fmt.Fprintln(os.Stderr, logging.PresentError("close connections", err))
			}
		}()

		var sink history.Sink = history.Nop{}
		if stateDir, err := xdg.StateDir(); err == nil {
			sink = history.NewFileSink(stateDir)
		}

		// Hide the cursor while result areas repaint.
		cursor.Hide()
		defer cursor.Show()

		statements := splitter.Split(script)
		if runStream && len(statements) == 1 && stream.ShouldStream(statements[0], streamLimitThreshold) {
			return runStreaming(cmd, mux, prof, statements[0], sessionID)
		}

		exec := sqlexec.New(mux, sink)
		failed := false
		err = exec.Execute(cmd.Context(), script, prof, runDatabase, sessionID, func(o sqlexec.Outcome) {
			if o.Err != nil {
				failed = true
				renderExecError(o.Err)
				return
			}
			renderResult(o.Result)
		})
		if err != nil {
			pterm.Println("❌ " + logging.PresentError("execution failed", err))
			return err
		}
		if failed {
			return errors.New("script stopped at first failing statement")
		}
		return nil
	},
}

// runStreaming reads one query through a server-side cursor, rendering each
// batch as it arrives.
func runStreaming(cmd *cobra.Command, mux *connmux.Multiplexer, prof *profile.Profile, query, sessionID string) error {
	lease, err := mux.AcquireSession(cmd.Context(), prof, runDatabase, sessionID)
	if err != nil {
		return err
	}
	defer lease.Release()

	reader := stream.NewReader(runBatchSize)
	err = reader.Stream(cmd.Context(), lease.Conn(), query, func(b stream.Batch) bool {
		if len(b.Rows) > 0 {
			renderTable(b.Columns, b.Rows)
		}
		if b.Last {
			pterm.Printf("(%d rows, %d batches)\n", b.CumulativeRows, b.Number)
		}
		return true
	})
	if err != nil {
		pterm.Println("❌ " + logging.PresentError("streaming failed", err))
		return err
	}
	return nil
}

// resolveScript picks the script source: --execute wins, then the file
// argument, then piped stdin.
func resolveScript(args []string) (string, error) {
	if strings.TrimSpace(runExecute) != "" {
		return runExecute, nil
	}
	path := runFile
	if path == "" && len(args) > 0 {
		path = args[0]
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	if fi, err := os.Stdin.Stat(); err == nil && (fi.Mode()&os.ModeCharDevice) == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(string(data)) != "" {
			return string(data), nil
		}
	}
	return "", errors.New("no script given; pass a file, --execute, or pipe to stdin")
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runProfile, "profile", "p", "", "Connection profile id (required)")
	runCmd.Flags().StringVarP(&runDatabase, "database", "d", "", "Target database (default: profile's database)")
	runCmd.Flags().StringVarP(&runSession, "session", "s", "", "Session id for connection reuse (default: fresh id)")
	runCmd.Flags().StringVarP(&runExecute, "execute", "e", "", "Execute the given SQL instead of reading a file")
	runCmd.Flags().StringVarP(&runFile, "file", "f", "", "Read the script from a file")
	runCmd.Flags().BoolVar(&runStream, "stream", false, "Stream large results through a server-side cursor")
	runCmd.Flags().IntVar(&runBatchSize, "batch-size", stream.DefaultBatchSize, "Rows per cursor fetch when streaming")
	runCmd.Flags().BoolVarP(&verboseRun, "verbose", "v", false, "Enable verbose debug output")
	_ = runCmd.MarkFlagRequired("profile")
}

// Copyright (c) 2025 Pgrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package sqlexec drives multi-statement SQL script execution over session
// connections from the connection multiplexer. A script is split into
// statements, the statements run strictly in order on one session connection
// (later statements may depend on session-local state such as temporary
// tables or an open transaction), and one result or error is emitted per
// statement as soon as it is known.
//
// The executor is fail-fast: after the first failing statement nothing else
// in the script runs. Every statement, successful or not, is forwarded to the
// execution-history sink. Auxiliary lookups (primary-key hints, backend pid,
// notices) are best-effort and never fail an execution.
package sqlexec

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/lo"

	"pgrun/cli/internal/connmux"
	"pgrun/cli/internal/history"
	"pgrun/cli/internal/profile"
	"pgrun/cli/internal/splitter"
)

// Querier is the minimal statement-running surface shared by session and
// pooled connections.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Result is the outcome of one successfully executed statement.
type Result struct {
	Statement   string
	Columns     []string
	ColumnTypes []string
	Rows        [][]any
	RowCount    int64
	CommandTag  string
	Notices     []string
	Elapsed     time.Duration
	BackendPID  uint32
	// PrimaryKeyColumns is a best-effort hint for write-back features;
	// empty when inference was not possible.
	PrimaryKeyColumns []string
}

// ExecError is the outcome of one failed statement. Once emitted, no further
// statements of the same script execute.
type ExecError struct {
	Statement string
	Message   string
	// Position is the 1-based character offset of the error within
	// Statement, as reported by the server; 0 when unknown. Statements are
	// submitted individually, so the offset is relative to the statement,
	// not the whole script.
	Position int
	Elapsed  time.Duration
}

// Outcome is one element of the per-statement execution sequence: exactly
// one of Result or Err is set.
type Outcome struct {
	Result *Result
	Err    *ExecError
}

// EmitFunc receives outcomes incrementally, one per statement, so callers can
// render partial progress while the script is still running.
type EmitFunc func(Outcome)

// Session is the slice of a connmux session lease the executor needs.
type Session interface {
	Conn() connmux.SessionConn
	BackendPID() uint32
	OnNotice(fn func(message string)) (release func())
	Release()
}

// SessionSource acquires session leases. Satisfied by the connection
// multiplexer through a thin adapter.
type SessionSource interface {
	AcquireSession(ctx context.Context, prof *profile.Profile, database, sessionID string) (Session, error)
}

// muxSource adapts *connmux.Multiplexer to SessionSource.
type muxSource struct {
	mux *connmux.Multiplexer
}

func (m muxSource) AcquireSession(ctx context.Context, prof *profile.Profile, database, sessionID string) (Session, error) {
	lease, err := m.mux.AcquireSession(ctx, prof, database, sessionID)
	if err != nil {
		return nil, err
	}
	return lease, nil
}

// Executor executes scripts against sessions and reports each statement to
// the history sink.
type Executor struct {
	source  SessionSource
	history history.Sink
}

// New creates an Executor over the multiplexer's session registry.
func New(mux *connmux.Multiplexer, sink history.Sink) *Executor {
	return newWithSource(muxSource{mux: mux}, sink)
}

func newWithSource(source SessionSource, sink history.Sink) *Executor {
	if sink == nil {
		sink = history.Nop{}
	}
	return &Executor{source: source, history: sink}
}

// Execute splits script and runs its statements strictly sequentially on the
// session identified by (profile, database, sessionID), emitting one Outcome
// per statement. A session acquisition failure is returned as an error; a
// statement failure is emitted as an Outcome and stops the script without an
// error return. The session connection survives statement failures and stays
// registered for the next script.
func (e *Executor) Execute(ctx context.Context, script string, prof *profile.Profile, database, sessionID string, emit EmitFunc) error {
	statements := splitter.Split(script)
	if len(statements) == 0 {
		return nil
	}

	lease, err := e.source.AcquireSession(ctx, prof, database, sessionID)
	if err != nil {
		return err
	}
	defer lease.Release()

	conn := lease.Conn()
	// Best-effort: a zero pid only disables out-of-band cancellation.
	pid := lease.BackendPID()

	var (
		noticeMu sync.Mutex
		notices  []string
	)
	releaseNotices := lease.OnNotice(func(message string) {
		noticeMu.Lock()
		notices = append(notices, message)
		noticeMu.Unlock()
	})
	defer releaseNotices()

	drainNotices := func() []string {
		noticeMu.Lock()
		defer noticeMu.Unlock()
		out := notices
		notices = nil
		return out
	}

	for _, stmt := range statements {
		start := time.Now()
		res, execErr := runStatement(ctx, conn, stmt)
		elapsed := time.Since(start)

		if execErr != nil {
			e.history.Record(history.Entry{
				Statement:  stmt,
				Success:    false,
				DurationMS: elapsed.Milliseconds(),
				At:         time.Now(),
			})
			emit(Outcome{Err: newExecError(stmt, execErr, elapsed)})
			// Fail-fast: remaining statements never run.
			return nil
		}

		res.Statement = stmt
		res.Elapsed = elapsed
		res.BackendPID = pid
		res.Notices = drainNotices()
		if len(res.Columns) > 0 {
			// Optional convenience; inference failures are swallowed.
			res.PrimaryKeyColumns = inferPrimaryKeys(ctx, conn, stmt)
		}

		e.history.Record(history.Entry{
			Statement:  stmt,
			Success:    true,
			DurationMS: elapsed.Milliseconds(),
			RowCount:   res.RowCount,
			At:         time.Now(),
		})
		emit(Outcome{Result: res})
	}

	return nil
}

// runStatement executes a single statement and materializes its result.
func runStatement(ctx context.Context, conn Querier, stmt string) (*Result, error) {
	rows, err := conn.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	res := &Result{
		Columns: lo.Map(fds, func(fd pgconn.FieldDescription, _ int) string {
			return fd.Name
		}),
		ColumnTypes: lo.Map(fds, func(fd pgconn.FieldDescription, _ int) string {
			return TypeName(fd.DataTypeOID)
		}),
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tag := rows.CommandTag()
	res.CommandTag = tag.String()
	if len(res.Rows) > 0 {
		res.RowCount = int64(len(res.Rows))
	} else {
		res.RowCount = tag.RowsAffected()
	}
	return res, nil
}

// newExecError converts a statement failure, extracting the server-reported
// position when available.
func newExecError(stmt string, err error, elapsed time.Duration) *ExecError {
	ee := &ExecError{
		Statement: stmt,
		Message:   err.Error(),
		Elapsed:   elapsed,
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		ee.Position = int(pgErr.Position)
	}
	return ee
}

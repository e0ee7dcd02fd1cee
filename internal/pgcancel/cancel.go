// Copyright (c) 2025 Pgrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package pgcancel requests cancellation of running backends out of band. A
// session executing a long statement cannot be asked to stop over its own
// connection, so the controller borrows an independent pooled connection to
// the same server and calls pg_cancel_backend (or pg_terminate_backend) with
// the target's backend pid.
package pgcancel

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"pgrun/cli/internal/connmux"
	errs "pgrun/cli/internal/errors"
	"pgrun/cli/internal/profile"
)

// Lease is a borrowed pooled connection; satisfied by *connmux.PooledLease.
type Lease interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Release()
}

// PoolSource hands out pooled leases for the signalling connection.
type PoolSource interface {
	AcquirePooled(ctx context.Context, prof *profile.Profile, database string) (Lease, error)
}

// muxPools adapts *connmux.Multiplexer to PoolSource.
type muxPools struct {
	mux *connmux.Multiplexer
}

func (m muxPools) AcquirePooled(ctx context.Context, prof *profile.Profile, database string) (Lease, error) {
	lease, err := m.mux.AcquirePooled(ctx, prof, database)
	if err != nil {
		return nil, err
	}
	return lease, nil
}

// Controller sends backend cancellation requests.
type Controller struct {
	pools PoolSource
}

// New creates a Controller borrowing signalling connections from the
// multiplexer's pools.
func New(mux *connmux.Multiplexer) *Controller {
	return newWithSource(muxPools{mux: mux})
}

func newWithSource(pools PoolSource) *Controller {
	return &Controller{pools: pools}
}

// RequestCancel asks the server to cancel the current statement of the backend
// with the given pid. The backend keeps its connection; only the running
// statement is interrupted. Returns the server's verdict: false means the pid
// did not name a cancellable backend.
func (c *Controller) RequestCancel(ctx context.Context, prof *profile.Profile, database string, pid uint32) (bool, error) {
	return c.signal(ctx, prof, database, pid, "SELECT pg_cancel_backend($1)")
}

// RequestTerminate asks the server to terminate the backend with the given
// pid, closing its connection. A session whose backend was terminated is
// replaced on its next acquire.
func (c *Controller) RequestTerminate(ctx context.Context, prof *profile.Profile, database string, pid uint32) (bool, error) {
	return c.signal(ctx, prof, database, pid, "SELECT pg_terminate_backend($1)")
}

func (c *Controller) signal(ctx context.Context, prof *profile.Profile, database string, pid uint32, query string) (bool, error) {
	if pid == 0 {
		return false, errs.New(errs.CancelFailed, "no backend pid known for the target session")
	}

	lease, err := c.pools.AcquirePooled(ctx, prof, database)
	if err != nil {
		return false, errs.Wrap(errs.CancelFailed, "acquire signalling connection", err)
	}
	defer lease.Release()

	rows, err := lease.Query(ctx, query, int32(pid))
	if err != nil {
		return false, errs.Wrap(errs.CancelFailed, "send backend signal", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return false, errs.Wrap(errs.CancelFailed, "read signal result", err)
		}
		return false, errs.New(errs.CancelFailed, "signal query returned no result")
	}
	var ok bool
	if err := rows.Scan(&ok); err != nil {
		return false, errs.Wrap(errs.CancelFailed, "read signal result", err)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, errs.Wrap(errs.CancelFailed, "read signal result", err)
	}
	return ok, nil
}

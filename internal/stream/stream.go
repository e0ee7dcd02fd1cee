// Copyright (c) 2025 Pgrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package stream reads large result sets incrementally through a server-side
// cursor instead of materializing them in one response. The reader wraps the
// query in a transaction, declares a NO SCROLL cursor, and fetches fixed-size
// batches until the server runs dry, handing each batch to the caller as soon
// as it arrives.
//
// Streaming only makes sense for plain row-producing SELECTs; ShouldStream is
// the heuristic deciding whether a query qualifies.
package stream

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/lo"

	errs "pgrun/cli/internal/errors"
	"pgrun/cli/internal/sqlexec"
)

// DefaultBatchSize is the number of rows fetched per cursor round-trip.
const DefaultBatchSize = 200

// Querier runs statements on the connection carrying the cursor. The cursor is
// transaction-scoped, so all calls must hit the same connection; a session
// lease from the connection multiplexer satisfies that.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Batch is one fetched slice of the result set.
type Batch struct {
	Columns     []string
	ColumnTypes []string
	Rows        [][]any
	// Number counts batches from 1.
	Number int
	// CumulativeRows is the running total of rows delivered up to and
	// including this batch.
	CumulativeRows int
	First          bool
	// Last marks the final batch: the fetch returned fewer rows than the
	// batch size, so the cursor is exhausted.
	Last bool
}

// YieldFunc receives batches in order. Returning false abandons the stream;
// the cursor and transaction are still cleaned up.
type YieldFunc func(Batch) bool

// aggregateMarkers disqualify a query from streaming: aggregated results are
// small by construction and fetching them through a cursor only adds
// round-trips.
var aggregateMarkers = []string{"count(", "sum(", "avg(", "min(", "max(", "group by"}

var limitPattern = regexp.MustCompile(`(?i)\blimit\s+(\d+)`)

// ShouldStream reports whether a query is worth running through a cursor: a
// plain SELECT without aggregation, and without a LIMIT at or below the
// threshold (a small limited result fits in a single response anyway).
func ShouldStream(query string, limitThreshold int) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if !strings.HasPrefix(q, "select") {
		return false
	}
	for _, marker := range aggregateMarkers {
		if strings.Contains(q, marker) {
			return false
		}
	}
	if match := limitPattern.FindStringSubmatch(q); match != nil {
		limit, err := strconv.Atoi(match[1])
		if err == nil && limit <= limitThreshold {
			return false
		}
	}
	return true
}

// Reader streams query results in batches over a single connection.
type Reader struct {
	batchSize int
}

// NewReader creates a reader fetching batchSize rows per round-trip; zero or
// negative means DefaultBatchSize.
func NewReader(batchSize int) *Reader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Reader{batchSize: batchSize}
}

// Stream runs query through a server-side cursor on q, calling yield once per
// batch in order. The final batch carries Last=true; when the row count is an
// exact multiple of the batch size the final batch is empty. The cursor and
// its transaction are torn down on every exit path, including early
// abandonment and fetch errors.
func (r *Reader) Stream(ctx context.Context, q Querier, query string, yield YieldFunc) error {
	cursor := cursorName()

	if _, err := q.Exec(ctx, "BEGIN"); err != nil {
		return errs.Wrap(errs.StatementFailed, "begin cursor transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			// Rollback closes the cursor with the transaction.
			_, _ = q.Exec(ctx, "ROLLBACK")
		}
	}()

	declare := fmt.Sprintf("DECLARE %s NO SCROLL CURSOR WITHOUT HOLD FOR %s", cursor, query)
	if _, err := q.Exec(ctx, declare); err != nil {
		return errs.Wrap(errs.StatementFailed, "declare cursor", err)
	}

	fetch := fmt.Sprintf("FETCH FORWARD %d FROM %s", r.batchSize, cursor)
	var (
		columns     []string
		columnTypes []string
		number      int
		delivered   int
	)
	for {
		batch, err := r.fetchBatch(ctx, q, fetch)
		if err != nil {
			return err
		}
		number++
		delivered += len(batch.Rows)

		if number == 1 {
			columns = batch.Columns
			columnTypes = batch.ColumnTypes
		}
		batch.Columns = columns
		batch.ColumnTypes = columnTypes
		batch.Number = number
		batch.CumulativeRows = delivered
		batch.First = number == 1
		batch.Last = len(batch.Rows) < r.batchSize

		if !yield(batch) {
			break
		}
		if batch.Last {
			break
		}
	}

	if _, err := q.Exec(ctx, "CLOSE "+cursor); err != nil {
		return errs.Wrap(errs.StatementFailed, "close cursor", err)
	}
	if _, err := q.Exec(ctx, "COMMIT"); err != nil {
		return errs.Wrap(errs.StatementFailed, "commit cursor transaction", err)
	}
	committed = true
	return nil
}

// fetchBatch runs one FETCH and materializes its rows.
func (r *Reader) fetchBatch(ctx context.Context, q Querier, fetch string) (Batch, error) {
	rows, err := q.Query(ctx, fetch)
	if err != nil {
		return Batch{}, errs.Wrap(errs.StatementFailed, "fetch from cursor", err)
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	batch := Batch{
		Columns: lo.Map(fds, func(fd pgconn.FieldDescription, _ int) string {
			return fd.Name
		}),
		ColumnTypes: lo.Map(fds, func(fd pgconn.FieldDescription, _ int) string {
			return sqlexec.TypeName(fd.DataTypeOID)
		}),
	}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return Batch{}, errs.Wrap(errs.StatementFailed, "read cursor row", err)
		}
		batch.Rows = append(batch.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return Batch{}, errs.Wrap(errs.StatementFailed, "read cursor rows", err)
	}
	return batch, nil
}

// cursorName generates a collision-free cursor identifier.
func cursorName() string {
	return "pgrun_cursor_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

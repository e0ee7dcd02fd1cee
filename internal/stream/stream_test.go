// Copyright (c) 2025 Pgrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package stream

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// fakeRows implements pgx.Rows over fixed data.
type fakeRows struct {
	fds  []pgconn.FieldDescription
	rows [][]any
	idx  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return r.fds }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }
func (r *fakeRows) Scan(dest ...any) error                       { return nil }

func (r *fakeRows) Next() bool {
	if r.idx < len(r.rows) {
		r.idx++
		return true
	}
	return false
}

func (r *fakeRows) Values() ([]any, error) { return r.rows[r.idx-1], nil }

// cursorConn simulates the server side of a cursor: Exec handles transaction
// and cursor statements, Query serves FETCH from a fixed row store.
type cursorConn struct {
	total     int
	remaining int
	executed  []string
	fetchErr  error
}

func newCursorConn(total int) *cursorConn {
	return &cursorConn{total: total, remaining: total}
}

func (c *cursorConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.executed = append(c.executed, sql)
	return pgconn.CommandTag{}, nil
}

func (c *cursorConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	c.executed = append(c.executed, sql)
	if c.fetchErr != nil {
		return nil, c.fetchErr
	}
	fields := strings.Fields(sql)
	if len(fields) < 3 || fields[0] != "FETCH" {
		return nil, errors.New("unexpected query: " + sql)
	}
	n, err := strconv.Atoi(fields[2])
	if err != nil {
		return nil, err
	}
	if n > c.remaining {
		n = c.remaining
	}
	c.remaining -= n
	rows := make([][]any, n)
	for i := range rows {
		rows[i] = []any{int32(c.total - c.remaining - n + i + 1)}
	}
	return &fakeRows{
		fds:  []pgconn.FieldDescription{{Name: "id", DataTypeOID: pgtype.Int4OID}},
		rows: rows,
	}, nil
}

func (c *cursorConn) lastStatements(prefix string) []string {
	var out []string
	for _, s := range c.executed {
		if strings.HasPrefix(s, prefix) {
			out = append(out, s)
		}
	}
	return out
}

func TestShouldStream(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  bool
	}{
		{"plain select", "SELECT * FROM events", true},
		{"lowercase with whitespace", "  select id from users ", true},
		{"insert", "INSERT INTO t VALUES (1)", false},
		{"count", "SELECT count(*) FROM events", false},
		{"group by", "SELECT user_id, max(at) FROM events GROUP BY user_id", false},
		{"small limit", "SELECT * FROM events LIMIT 50", false},
		{"limit at threshold", "SELECT * FROM events LIMIT 1000", false},
		{"large limit", "SELECT * FROM events LIMIT 100000", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldStream(tt.query, 1000); got != tt.want {
				t.Errorf("ShouldStream(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestStreamBatches(t *testing.T) {
	conn := newCursorConn(450)
	reader := NewReader(200)

	var batches []Batch
	err := reader.Stream(context.Background(), conn, "SELECT id FROM events", func(b Batch) bool {
		batches = append(batches, b)
		return true
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	for i, want := range []int{200, 200, 50} {
		if len(batches[i].Rows) != want {
			t.Errorf("batch %d: %d rows, want %d", i+1, len(batches[i].Rows), want)
		}
		if batches[i].Number != i+1 {
			t.Errorf("batch %d: number = %d", i+1, batches[i].Number)
		}
	}
	for i, want := range []int{200, 400, 450} {
		if batches[i].CumulativeRows != want {
			t.Errorf("batch %d: cumulative rows = %d, want %d", i+1, batches[i].CumulativeRows, want)
		}
	}
	if !batches[0].First || batches[1].First || batches[2].First {
		t.Error("only the first batch should carry First")
	}
	if batches[0].Last || batches[1].Last || !batches[2].Last {
		t.Error("only the final batch should carry Last")
	}
	if got := strings.Join(batches[2].Columns, ","); got != "id" {
		t.Errorf("columns carried to every batch, got %q", got)
	}
	if got := strings.Join(batches[2].ColumnTypes, ","); got != "integer" {
		t.Errorf("column types = %q", got)
	}

	if n := len(conn.lastStatements("CLOSE ")); n != 1 {
		t.Errorf("cursor CLOSE statements = %d, want 1", n)
	}
	if n := len(conn.lastStatements("COMMIT")); n != 1 {
		t.Errorf("COMMIT statements = %d, want 1", n)
	}
	if n := len(conn.lastStatements("ROLLBACK")); n != 0 {
		t.Errorf("unexpected ROLLBACK on the success path")
	}
}

func TestStreamExactMultipleEmitsEmptyLastBatch(t *testing.T) {
	conn := newCursorConn(400)
	reader := NewReader(200)

	var batches []Batch
	err := reader.Stream(context.Background(), conn, "SELECT id FROM events", func(b Batch) bool {
		batches = append(batches, b)
		return true
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches (200, 200, empty), got %d", len(batches))
	}
	last := batches[2]
	if !last.Last || len(last.Rows) != 0 {
		t.Errorf("final batch: Last=%v rows=%d", last.Last, len(last.Rows))
	}
	if last.CumulativeRows != 400 {
		t.Errorf("final cumulative rows = %d, want 400", last.CumulativeRows)
	}
}

func TestStreamEarlyAbandonmentCleansUp(t *testing.T) {
	conn := newCursorConn(1000)
	reader := NewReader(200)

	calls := 0
	err := reader.Stream(context.Background(), conn, "SELECT id FROM events", func(b Batch) bool {
		calls++
		return false
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if calls != 1 {
		t.Errorf("yield called %d times after abandoning, want 1", calls)
	}
	if n := len(conn.lastStatements("CLOSE ")); n != 1 {
		t.Errorf("cursor not closed after abandonment")
	}
}

func TestStreamFetchErrorRollsBack(t *testing.T) {
	conn := newCursorConn(100)
	conn.fetchErr = errors.New("connection reset")
	reader := NewReader(200)

	err := reader.Stream(context.Background(), conn, "SELECT id FROM events", func(Batch) bool {
		t.Fatal("yield must not run on fetch failure")
		return false
	})
	if err == nil {
		t.Fatal("expected fetch error")
	}
	if n := len(conn.lastStatements("ROLLBACK")); n != 1 {
		t.Errorf("ROLLBACK statements = %d, want 1", n)
	}
	if n := len(conn.lastStatements("COMMIT")); n != 0 {
		t.Errorf("COMMIT must not run on failure")
	}
}

func TestNewReaderDefaultBatchSize(t *testing.T) {
	if r := NewReader(0); r.batchSize != DefaultBatchSize {
		t.Errorf("batch size = %d, want %d", r.batchSize, DefaultBatchSize)
	}
}

func TestCursorNameIsValidIdentifier(t *testing.T) {
	name := cursorName()
	if !strings.HasPrefix(name, "pgrun_cursor_") {
		t.Errorf("cursor name = %q", name)
	}
	if strings.Contains(name, "-") {
		t.Errorf("cursor name must be a plain identifier, got %q", name)
	}
	if name == cursorName() {
		t.Error("cursor names must not repeat")
	}
}

// Copyright (c) 2025 Pgrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package history

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileSinkAppendsJSONLines(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir)

	sink.Record(Entry{Statement: "SELECT 1;", Success: true, DurationMS: 12, RowCount: 1, At: time.Now()})
	sink.Record(Entry{Statement: "SELECT nope;", Success: false, DurationMS: 3, At: time.Now()})

	f, err := os.Open(filepath.Join(dir, "history.jsonl"))
	if err != nil {
		t.Fatalf("history file missing: %v", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("invalid JSON line %q: %v", scanner.Text(), err)
		}
		entries = append(entries, e)
	}

	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if !entries[0].Success || entries[0].RowCount != 1 {
		t.Errorf("first entry wrong: %+v", entries[0])
	}
	if entries[1].Success {
		t.Errorf("second entry should be a failure: %+v", entries[1])
	}
}

func TestFileSinkSwallowsWriteErrors(t *testing.T) {
	// Point the sink at a directory path so opening the file fails.
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "history.jsonl"), 0o700); err != nil {
		t.Fatal(err)
	}
	sink := NewFileSink(dir)
	// Must not panic or error.
	sink.Record(Entry{Statement: "SELECT 1;", Success: true})
}

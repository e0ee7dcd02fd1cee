// Copyright (c) 2025 Pgrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package history records per-statement execution history. The executor
// forwards one entry per statement, successful or not; sinks decide where the
// entries go. The file sink appends JSON lines under the XDG state dir.
package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one executed statement as recorded in history.
type Entry struct {
	Statement  string    `json:"statement"`
	Success    bool      `json:"success"`
	DurationMS int64     `json:"duration_ms"`
	RowCount   int64     `json:"row_count,omitempty"`
	At         time.Time `json:"at"`
}

// Sink consumes execution history entries. Implementations must tolerate
// being called from the middle of a running script; recording failures must
// never disturb execution.
type Sink interface {
	Record(e Entry)
}

// Nop is a Sink that discards everything.
type Nop struct{}

func (Nop) Record(Entry) {}

// FileSink appends history entries as JSON lines to a file.
type FileSink struct {
	mu   sync.Mutex
	path string
}

// NewFileSink creates a sink writing to history.jsonl in the given directory.
func NewFileSink(dir string) *FileSink {
	return &FileSink{path: filepath.Join(dir, "history.jsonl")}
}

// Record appends the entry. Write errors are swallowed: history is an
// auxiliary record, not part of execution.
func (s *FileSink) Record(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return
	}
	defer f.Close()

	b, err := json.Marshal(e)
	if err != nil {
		return
	}
	b = append(b, '\n')
	_, _ = f.Write(b)
}

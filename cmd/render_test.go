// Copyright (c) 2025 Pgrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"strings"
	"testing"
	"time"

	"pgrun/cli/internal/sqlexec"
)

func TestSummaryLineIncludesBackendPID(t *testing.T) {
	res := &sqlexec.Result{
		CommandTag: "SELECT 2",
		Elapsed:    42 * time.Millisecond,
		BackendPID: 777,
	}
	line := summaryLine(res)
	if !strings.Contains(line, "SELECT 2") {
		t.Errorf("summary missing command tag: %q", line)
	}
	if !strings.Contains(line, "backend pid 777") {
		t.Errorf("summary missing backend pid: %q", line)
	}
}

func TestSummaryLineWithoutPID(t *testing.T) {
	res := &sqlexec.Result{RowCount: 5, Elapsed: 3 * time.Millisecond}
	line := summaryLine(res)
	if !strings.Contains(line, "5 rows") {
		t.Errorf("summary missing row count: %q", line)
	}
	if strings.Contains(line, "backend pid") {
		t.Errorf("unknown pid must not be printed: %q", line)
	}
}

func TestMarkPosition(t *testing.T) {
	tests := []struct {
		name     string
		stmt     string
		position int
		want     string
	}{
		{"start of statement", "SELEC 1", 1, "»SELEC 1"},
		{"mid statement", "SELECT x FROM", 8, "SELECT »x FROM"},
		{"second line only", "SELECT 1\nFROM nowhere", 10, "»FROM nowhere"},
		{"out of range", "SELECT 1", 99, "SELECT 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := markPosition(tt.stmt, tt.position); got != tt.want {
				t.Errorf("markPosition(%q, %d) = %q, want %q", tt.stmt, tt.position, got, tt.want)
			}
		})
	}
}

func TestFormatValue(t *testing.T) {
	if got := formatValue(nil); got != "NULL" {
		t.Errorf("nil = %q", got)
	}
	if got := formatValue([]byte{0xde, 0xad}); got != `\xdead` {
		t.Errorf("bytes = %q", got)
	}
	if got := formatValue(int64(7)); got != "7" {
		t.Errorf("int = %q", got)
	}
}

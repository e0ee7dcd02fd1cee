// Copyright (c) 2025 Pgrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"strings"
	"time"

	"pgrun/cli/internal/sqlexec"

	"github.com/pterm/pterm"
)

// maxInlineRows caps how many rows of one statement are printed before the
// output is truncated with a hint to use --stream.
const maxInlineRows = 1000

// renderResult prints one statement outcome: notices first, then the row set
// or command tag, then a summary line.
func renderResult(res *sqlexec.Result) {
	for _, notice := range res.Notices {
		pterm.Println(pterm.NewStyle(pterm.FgYellow).Sprint("NOTICE: " + notice))
	}

	if len(res.Columns) > 0 {
		shown := res.Rows
		truncated := false
		if len(shown) > maxInlineRows {
			shown = shown[:maxInlineRows]
			truncated = true
		}
		renderTable(res.Columns, shown)
		if truncated {
			pterm.Printf("… %d more rows not shown, rerun with --stream\n", len(res.Rows)-maxInlineRows)
		}
	}

	pterm.Println(pterm.NewStyle(pterm.FgGray).Sprint(summaryLine(res)))
	pterm.Println()
}

// summaryLine builds the per-statement footer. The backend pid is included so
// the session can be targeted with 'pgrun cancel --pid' while a later
// statement runs.
func summaryLine(res *sqlexec.Result) string {
	summary := res.CommandTag
	if summary == "" {
		summary = fmt.Sprintf("%d rows", res.RowCount)
	}
	if res.BackendPID > 0 {
		return fmt.Sprintf("%s  (%s, backend pid %d)", summary, formatElapsed(res.Elapsed), res.BackendPID)
	}
	return fmt.Sprintf("%s  (%s)", summary, formatElapsed(res.Elapsed))
}

// renderExecError prints a failed statement with the server-reported error
// position when available.
func renderExecError(ee *sqlexec.ExecError) {
	pterm.Println(pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint("❌ " + ee.Message))
	if ee.Position > 0 && ee.Position <= len(ee.Statement) {
		pterm.Println(pterm.NewStyle(pterm.FgGray).Sprint("   " + markPosition(ee.Statement, ee.Position)))
	}
	pterm.Println(pterm.NewStyle(pterm.FgGray).Sprintf("   failed after %s", formatElapsed(ee.Elapsed)))
}

// markPosition returns the statement line containing the error position with
// the offending spot bracketed.
func markPosition(stmt string, position int) string {
	i := position - 1
	if i < 0 || i >= len(stmt) {
		return stmt
	}
	lineStart := strings.LastIndexByte(stmt[:i], '\n') + 1
	lineEnd := strings.IndexByte(stmt[i:], '\n')
	if lineEnd == -1 {
		lineEnd = len(stmt)
	} else {
		lineEnd += i
	}
	return stmt[lineStart:i] + "»" + stmt[i:lineEnd]
}

// renderTable prints a row set as a bordered table.
func renderTable(columns []string, rows [][]any) {
	data := pterm.TableData{columns}
	for _, row := range rows {
		line := make([]string, len(row))
		for i, v := range row {
			line[i] = formatValue(v)
		}
		data = append(data, line)
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

// formatValue renders one cell value for display.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return fmt.Sprintf("\\x%x", x)
	case time.Time:
		return x.Format(time.RFC3339)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func formatElapsed(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(10 * time.Millisecond).String()
}

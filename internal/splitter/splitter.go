// Copyright (c) 2025 Pgrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package splitter partitions raw SQL script text into individual executable
// statements. It understands single-quoted strings (including '' escapes),
// dollar-quoted strings, line comments and block comments, so that semicolons
// embedded in any of those constructs are never treated as statement
// terminators.
//
// The splitter never fails: malformed or unterminated constructs degrade to
// "absorb the rest of the input as literal text", and any trailing text left
// in the accumulator at end of input is emitted as a final statement rather
// than silently dropped.
package splitter

import (
	"regexp"
	"strings"
)

// state is the scanner state of the splitter's finite-state machine.
type state int

const (
	// stateNormal is ordinary SQL text; semicolons terminate statements.
	stateNormal state = iota
	// stateSingleQuote is inside a 'single-quoted' string literal.
	stateSingleQuote
	// stateDollarQuote is inside a $tag$-quoted string; only the exact same
	// tag closes it.
	stateDollarQuote
	// stateBlockComment is inside a /* block comment */. Nesting is not
	// supported: the first */ closes the comment.
	stateBlockComment
)

// dollarTagPattern matches a dollar-quote opening tag at the start of the
// input, e.g. $$, $tag$, $body$. The tag may be empty.
var dollarTagPattern = regexp.MustCompile(`^\$[A-Za-z_0-9]*\$`)

// Split partitions a SQL script into its individual statements, preserving
// each statement's text (including its terminating semicolon) and original
// order. Empty or whitespace-only input yields no statements.
//
// Statements are delimited by semicolons that appear outside string literals
// and comments. Line comments run to end of line; block comments run to the
// first */. At end of input any non-empty accumulated text is emitted as a
// final statement, even when a quote or comment was left unterminated.
func Split(script string) []string {
	var (
		statements []string
		buf        strings.Builder
		st         = stateNormal
		tag        string // active dollar-quote tag, including both dollars
	)

	emit := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			statements = append(statements, s)
		}
		buf.Reset()
	}

	i, n := 0, len(script)
	for i < n {
		c := script[i]
		switch st {
		case stateNormal:
			switch {
			case c == '/' && i+1 < n && script[i+1] == '*':
				buf.WriteString("/*")
				st = stateBlockComment
				i += 2
			case c == '-' && i+1 < n && script[i+1] == '-':
				// Line comment: consume to end of line (or end of input)
				// and remain in normal state.
				if nl := strings.IndexByte(script[i:], '\n'); nl >= 0 {
					buf.WriteString(script[i : i+nl+1])
					i += nl + 1
				} else {
					buf.WriteString(script[i:])
					i = n
				}
			case c == '$':
				if t := dollarTagPattern.FindString(script[i:]); t != "" {
					tag = t
					buf.WriteString(t)
					st = stateDollarQuote
					i += len(t)
				} else {
					buf.WriteByte(c)
					i++
				}
			case c == '\'':
				buf.WriteByte(c)
				st = stateSingleQuote
				i++
			case c == ';':
				buf.WriteByte(c)
				emit()
				i++
			default:
				buf.WriteByte(c)
				i++
			}

		case stateSingleQuote:
			if c == '\'' {
				// Two consecutive quotes are an escaped quote inside the
				// literal, not a terminator.
				if i+1 < n && script[i+1] == '\'' {
					buf.WriteString("''")
					i += 2
					break
				}
				buf.WriteByte(c)
				st = stateNormal
				i++
				break
			}
			buf.WriteByte(c)
			i++

		case stateDollarQuote:
			// Only an exact repeat of the opening tag closes the quote; a
			// differently-tagged dollar token is ordinary text.
			if c == '$' && strings.HasPrefix(script[i:], tag) {
				buf.WriteString(tag)
				i += len(tag)
				tag = ""
				st = stateNormal
				break
			}
			buf.WriteByte(c)
			i++

		case stateBlockComment:
			if c == '*' && i+1 < n && script[i+1] == '/' {
				buf.WriteString("*/")
				st = stateNormal
				i += 2
				break
			}
			buf.WriteByte(c)
			i++
		}
	}

	// Trailing text, even from an unterminated construct, is a statement.
	emit()

	return statements
}

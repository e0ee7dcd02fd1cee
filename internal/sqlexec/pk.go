// Copyright (c) 2025 Pgrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"regexp"
	"strings"
)

// fromPattern extracts the first table referenced by a FROM clause. It is a
// deliberately simple heuristic: joins, subqueries and quoted identifiers are
// out of scope for the hint.
var fromPattern = regexp.MustCompile(`(?is)\bfrom\s+([a-zA-Z_][a-zA-Z0-9_$]*(?:\.[a-zA-Z_][a-zA-Z0-9_$]*)?)`)

// primaryKeyQuery lists primary key columns of one table in order.
const primaryKeyQuery = `
	SELECT c.column_name
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kc ON tc.constraint_name = kc.constraint_name
	JOIN information_schema.columns c ON kc.table_name = c.table_name AND kc.column_name = c.column_name
	WHERE tc.table_schema = $1 AND tc.table_name = $2 AND tc.constraint_type = 'PRIMARY KEY'
	ORDER BY kc.ordinal_position`

// inferPrimaryKeys returns a best-effort primary key hint for the table a
// SELECT statement reads from. Any failure (no FROM clause, catalog query
// error, scan error) yields nil; the hint is an optional convenience and must
// never surface as an execution error.
func inferPrimaryKeys(ctx context.Context, q Querier, stmt string) []string {
	table := tableFromStatement(stmt)
	if table == "" {
		return nil
	}
	schema, name := splitTableName(table)

	rows, err := q.Query(ctx, primaryKeyQuery, schema, name)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var column string
		if err := rows.Scan(&column); err != nil {
			return nil
		}
		columns = append(columns, column)
	}
	if rows.Err() != nil {
		return nil
	}
	return columns
}

// tableFromStatement extracts the first FROM-clause table name, or "".
func tableFromStatement(stmt string) string {
	match := fromPattern.FindStringSubmatch(stmt)
	if len(match) < 2 {
		return ""
	}
	return match[1]
}

// splitTableName splits a possibly schema-qualified table name, defaulting
// the schema to "public".
func splitTableName(table string) (schema, name string) {
	if i := strings.IndexByte(table, '.'); i >= 0 {
		return table[:i], table[i+1:]
	}
	return "public", table
}

// Copyright (c) 2025 Pgrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"github.com/jackc/pgx/v5/pgtype"
)

// defaultTypeName classifies any type id we do not recognize.
const defaultTypeName = "string"

// typeNames maps the common PostgreSQL type OIDs to the display names the
// result renderer understands. Anything else falls back to a generic string
// classification.
var typeNames = map[uint32]string{
	pgtype.BoolOID:        "boolean",
	pgtype.Int2OID:        "integer",
	pgtype.Int4OID:        "integer",
	pgtype.Int8OID:        "bigint",
	pgtype.Float4OID:      "real",
	pgtype.Float8OID:      "double precision",
	pgtype.NumericOID:     "numeric",
	pgtype.TextOID:        "text",
	pgtype.VarcharOID:     "varchar",
	pgtype.BPCharOID:      "char",
	pgtype.NameOID:        "name",
	pgtype.DateOID:        "date",
	pgtype.TimeOID:        "time",
	pgtype.TimestampOID:   "timestamp",
	pgtype.TimestamptzOID: "timestamptz",
	pgtype.IntervalOID:    "interval",
	pgtype.UUIDOID:        "uuid",
	pgtype.JSONOID:        "json",
	pgtype.JSONBOID:       "jsonb",
	pgtype.ByteaOID:       "bytea",
	pgtype.OIDOID:         "oid",
}

// TypeName returns the display name for a PostgreSQL type OID.
func TypeName(oid uint32) string {
	if name, ok := typeNames[oid]; ok {
		return name
	}
	return defaultTypeName
}

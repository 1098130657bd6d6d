// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package database

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/whrelay/internal/database/query"
	"github.com/tomtom215/whrelay/internal/records"
)

// Dialect captures what differs between the supported drivers.
type Dialect struct {
	Name        string
	Driver      string
	Placeholder query.Placeholder

	// MaxParams is the bind parameter limit of one statement.
	MaxParams int

	// SecondaryIndexes is false where secondary indexes interfere with
	// ON CONFLICT updates.
	SecondaryIndexes bool

	types map[records.ColumnType]string
}

var dialects = map[string]Dialect{
	"duckdb": {
		Name:        "duckdb",
		Driver:      "duckdb",
		Placeholder: query.Question,
		MaxParams:   65535,
		types: map[records.ColumnType]string{
			records.TypeInt:    "INTEGER",
			records.TypeBigInt: "BIGINT",
			records.TypeFloat:  "DOUBLE",
			records.TypeBool:   "BOOLEAN",
			records.TypeText:   "VARCHAR",
			records.TypeTime:   "TIMESTAMP",
		},
	},
	"postgres": {
		Name:             "postgres",
		Driver:           "postgres",
		Placeholder:      query.Dollar,
		MaxParams:        65535,
		SecondaryIndexes: true,
		types: map[records.ColumnType]string{
			records.TypeInt:    "INTEGER",
			records.TypeBigInt: "BIGINT",
			records.TypeFloat:  "DOUBLE PRECISION",
			records.TypeBool:   "BOOLEAN",
			records.TypeText:   "TEXT",
			records.TypeTime:   "TIMESTAMP",
		},
	},
	"sqlite": {
		Name:             "sqlite",
		Driver:           "sqlite",
		Placeholder:      query.Question,
		MaxParams:        32766,
		SecondaryIndexes: true,
		types: map[records.ColumnType]string{
			records.TypeInt:    "INTEGER",
			records.TypeBigInt: "INTEGER",
			records.TypeFloat:  "REAL",
			records.TypeBool:   "BOOLEAN",
			records.TypeText:   "TEXT",
			records.TypeTime:   "TIMESTAMP",
		},
	},
}

// DialectFor returns the dialect registered under name.
func DialectFor(name string) (Dialect, error) {
	d, ok := dialects[name]
	if !ok {
		return Dialect{}, fmt.Errorf("%w: %q", ErrUnknownDriver, name)
	}
	return d, nil
}

// Rebind rewrites ? placeholders for this dialect.
func (d Dialect) Rebind(q string) string {
	return query.Rebind(q, d.Placeholder)
}

// TypeName returns the SQL type for t.
func (d Dialect) TypeName(t records.ColumnType) string {
	return d.types[t]
}

// columnDef renders one column for CREATE TABLE or ADD COLUMN. Added
// columns never carry NOT NULL since DuckDB rejects constraints there.
func (d Dialect) columnDef(c records.Column, adding bool) string {
	var b strings.Builder
	b.WriteString(query.Quote(c.Name))
	b.WriteByte(' ')
	b.WriteString(d.TypeName(c.Type))
	if lit, ok := defaultLiteral(c); ok {
		b.WriteString(" DEFAULT ")
		b.WriteString(lit)
	}
	if !c.Nullable && !adding {
		b.WriteString(" NOT NULL")
	}
	return b.String()
}

// createTable renders CREATE TABLE for schema with the columns that exist
// at version.
func (d Dialect) createTable(s *records.Schema, version int) string {
	defs := make([]string, 0, len(s.Columns)+1)
	for _, c := range s.Columns {
		if c.Since <= version {
			defs = append(defs, d.columnDef(c, false))
		}
	}
	defs = append(defs, "PRIMARY KEY ("+query.QuoteAll(s.Identity)+")")
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", query.Quote(s.Table), strings.Join(defs, ",\n\t"))
}

func (d Dialect) addColumn(table string, c records.Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", query.Quote(table), d.columnDef(c, true))
}

// defaultLiteral renders a constant column default as SQL. The "now"
// default becomes CURRENT_TIMESTAMP.
func defaultLiteral(c records.Column) (string, bool) {
	if c.Default == nil {
		return "", false
	}
	switch v := c.Default(time.Time{}).(type) {
	case time.Time:
		return "CURRENT_TIMESTAMP", true
	case bool:
		if v {
			return "TRUE", true
		}
		return "FALSE", true
	case int64:
		return strconv.FormatInt(v, 10), true
	case int:
		return strconv.Itoa(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'", true
	}
	return "", false
}

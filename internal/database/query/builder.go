// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package query

import (
	"strconv"
	"strings"
)

// Placeholder renders the n-th (1-based) bind parameter.
type Placeholder func(n int) string

// Question renders ? for every parameter (DuckDB, SQLite).
func Question(int) string { return "?" }

// Dollar renders $n (PostgreSQL).
func Dollar(n int) string { return "$" + strconv.Itoa(n) }

// Quote double-quotes an identifier.
func Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// QuoteAll quotes every identifier and joins them with ", ".
func QuoteAll(idents []string) string {
	quoted := make([]string, len(idents))
	for i, id := range idents {
		quoted[i] = Quote(id)
	}
	return strings.Join(quoted, ", ")
}

// Rebind rewrites every ? in q outside string literals using ph.
func Rebind(q string, ph Placeholder) string {
	if ph == nil || ph(1) == "?" {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	inString := false
	for i := 0; i < len(q); i++ {
		c := q[i]
		switch {
		case c == '\'':
			inString = !inString
			b.WriteByte(c)
		case c == '?' && !inString:
			n++
			b.WriteString(ph(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Upsert describes a multi-row INSERT. With Conflict set it becomes an
// upsert that overwrites every non-key column from EXCLUDED. When every
// column is part of the key the conflict is ignored.
type Upsert struct {
	Table    string
	Columns  []string
	Conflict []string
}

// Build renders the statement for rows. Each row must have one value per
// column, in column order. The returned args are the rows flattened.
func (u Upsert) Build(rows [][]any, ph Placeholder) (string, []any) {
	if ph == nil {
		ph = Question
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(Quote(u.Table))
	b.WriteString(" (")
	b.WriteString(QuoteAll(u.Columns))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(u.Columns))
	n := 0
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := range u.Columns {
			if j > 0 {
				b.WriteString(", ")
			}
			n++
			b.WriteString(ph(n))
			args = append(args, row[j])
		}
		b.WriteByte(')')
	}

	if len(u.Conflict) > 0 {
		b.WriteString(" ON CONFLICT (")
		b.WriteString(QuoteAll(u.Conflict))
		b.WriteString(")")

		key := make(map[string]bool, len(u.Conflict))
		for _, c := range u.Conflict {
			key[c] = true
		}
		var sets []string
		for _, c := range u.Columns {
			if key[c] {
				continue
			}
			sets = append(sets, Quote(c)+" = EXCLUDED."+Quote(c))
		}
		if len(sets) == 0 {
			b.WriteString(" DO NOTHING")
		} else {
			b.WriteString(" DO UPDATE SET ")
			b.WriteString(strings.Join(sets, ", "))
		}
	}
	return b.String(), args
}

// MaxRows returns how many rows of width columns fit under maxParams bind
// parameters, capped at chunk. The result is at least 1.
func MaxRows(chunk, width, maxParams int) int {
	if width < 1 {
		return max(chunk, 1)
	}
	limit := maxParams / width
	if chunk > 0 && chunk < limit {
		limit = chunk
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

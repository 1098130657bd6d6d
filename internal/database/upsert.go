// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/whrelay/internal/database/query"
	"github.com/tomtom215/whrelay/internal/metrics"
	"github.com/tomtom215/whrelay/internal/records"
)

// UpsertResult summarizes one Upsert call.
type UpsertResult struct {
	Rows    int
	Chunks  int
	Failed  int
	Retries int
}

// Upsert writes rows into the schema's table. Rows sharing a primary key
// collapse to the last one. Missing columns take their declared default.
// The returned error is non-nil only when ctx ended; chunk failures are
// reported through Failed.
func (db *DB) Upsert(ctx context.Context, schema *records.Schema, rows []records.Record) (UpsertResult, error) {
	var res UpsertResult
	if len(rows) == 0 {
		return res, nil
	}

	now := time.Now().UTC()
	columns := schema.ColumnNames()
	unique := dedupeRows(schema, rows)

	size := query.MaxRows(db.cfg.ChunkSize, len(columns), db.dialect.MaxParams)
	stmt := query.Upsert{Table: schema.Table, Columns: columns, Conflict: schema.Identity}

	for start := 0; start < len(unique); start += size {
		end := min(start+size, len(unique))
		chunk := unique[start:end]

		values := make([][]any, len(chunk))
		for i, row := range chunk {
			values[i] = rowValues(schema, row, columns, now)
		}
		q, args := stmt.Build(values, db.dialect.Placeholder)

		written, retries, err := db.writeChunk(ctx, schema.Table, q, args, chunk)
		res.Chunks++
		res.Retries += retries
		if written {
			res.Rows += len(chunk)
		} else {
			res.Failed++
		}
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// writeChunk executes one chunk with the retry policy. It returns an error
// only when ctx is done.
func (db *DB) writeChunk(ctx context.Context, table, q string, args []any, chunk []records.Record) (bool, int, error) {
	retries := 0
	for {
		start := time.Now()
		_, err := db.conn.ExecContext(ctx, q, args...)
		if err == nil {
			metrics.RecordUpsertChunk(table, "ok", len(chunk), time.Since(start))
			db.logger.Debug().
				Str("table", table).
				Int("rows", len(chunk)).
				Dur("took", time.Since(start)).
				Msg("Upserted chunk")
			return true, retries, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, retries, ctxErr
		}

		if IsConstraintError(err) {
			metrics.RecordUpsertChunk(table, "constraint", len(chunk), 0)
			db.logger.Warn().
				Err(err).
				Str("table", table).
				Interface("data", chunk).
				Msg("Chunk rejected, not retrying")
			db.archive(ctx, table, err.Error(), chunk)
			return false, retries, nil
		}

		if retries >= db.cfg.MaxRetries {
			metrics.RecordUpsertChunk(table, "exhausted", len(chunk), 0)
			db.logger.Error().
				Err(fmt.Errorf("%w: %w", ErrRetriesExhausted, err)).
				Str("table", table).
				Int("rows", len(chunk)).
				Int("attempts", retries+1).
				Msg("Dropping chunk")
			db.archive(ctx, table, err.Error(), chunk)
			return false, retries, nil
		}

		retries++
		metrics.RecordUpsertChunk(table, "retried", len(chunk), 0)
		db.logger.Warn().
			Err(err).
			Str("table", table).
			Int("attempt", retries).
			Dur("delay", db.cfg.RetryDelay).
			Msg("Chunk failed, retrying")
		if err := db.sleep(ctx, db.cfg.RetryDelay); err != nil {
			return false, retries, err
		}
	}
}

// dedupeRows keeps the last row per primary key, in first-seen order.
// Rows without a complete key are dropped.
func dedupeRows(schema *records.Schema, rows []records.Record) []records.Record {
	index := make(map[string]int, len(rows))
	out := make([]records.Record, 0, len(rows))
	for _, r := range rows {
		id, ok := schema.IdentityOf(r)
		if !ok {
			continue
		}
		if i, seen := index[id]; seen {
			out[i] = r
			continue
		}
		index[id] = len(out)
		out = append(out, r)
	}
	return out
}

func rowValues(schema *records.Schema, row records.Record, columns []string, now time.Time) []any {
	vals := make([]any, len(columns))
	for i, name := range columns {
		v, ok := row[name]
		if !ok {
			if c, found := schema.Column(name); found && c.Default != nil {
				v = c.Default(now)
			}
		}
		vals[i] = v
	}
	return vals
}

// UpsertTable is Upsert addressed by table name.
func (db *DB) UpsertTable(ctx context.Context, table string, rows []records.Record) (UpsertResult, error) {
	schema, ok := records.ByTable(table)
	if !ok {
		return UpsertResult{}, fmt.Errorf("database: unknown table %q", table)
	}
	return db.Upsert(ctx, schema, rows)
}

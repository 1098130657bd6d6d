// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/whrelay/internal/database/query"
	"github.com/tomtom215/whrelay/internal/metrics"
	"github.com/tomtom215/whrelay/internal/records"
)

var errEmptyGymID = errors.New("database: empty gym id")

// ReplaceRoster replaces every gymmember row of gymID with members in one
// transaction. Readers never see a mix of old and new members. The whole
// transaction follows the chunk retry policy.
func (db *DB) ReplaceRoster(ctx context.Context, gymID string, members []records.Record) error {
	if gymID == "" {
		return errEmptyGymID
	}
	schema := records.MustLookup(records.KindGymMember)
	now := time.Now().UTC()
	columns := schema.ColumnNames()

	unique := dedupeRows(schema, members)
	size := query.MaxRows(db.cfg.ChunkSize, len(columns), db.dialect.MaxParams)
	ins := query.Upsert{Table: schema.Table, Columns: columns, Conflict: schema.Identity}

	type stmt struct {
		q    string
		args []any
	}
	stmts := []stmt{{q: db.dialect.Rebind(`DELETE FROM gymmember WHERE gym_id = ?`), args: []any{gymID}}}
	for start := 0; start < len(unique); start += size {
		end := min(start+size, len(unique))
		values := make([][]any, 0, end-start)
		for _, m := range unique[start:end] {
			values = append(values, rowValues(schema, m, columns, now))
		}
		q, args := ins.Build(values, db.dialect.Placeholder)
		stmts = append(stmts, stmt{q: q, args: args})
	}

	retries := 0
	for {
		started := time.Now()
		err := db.inTx(ctx, func(exec func(q string, args ...any) error) error {
			for _, s := range stmts {
				if err := exec(s.q, s.args...); err != nil {
					return err
				}
			}
			return nil
		})
		if err == nil {
			metrics.RecordUpsertChunk(schema.Table, "ok", len(unique), time.Since(started))
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if IsConstraintError(err) {
			metrics.RecordUpsertChunk(schema.Table, "constraint", len(unique), 0)
			db.logger.Warn().Err(err).Str("gym_id", gymID).Interface("data", unique).Msg("Roster rejected, not retrying")
			db.archive(ctx, schema.Table, err.Error(), unique)
			return fmt.Errorf("%w: %w", ErrConstraint, err)
		}
		if retries >= db.cfg.MaxRetries {
			metrics.RecordUpsertChunk(schema.Table, "exhausted", len(unique), 0)
			db.logger.Error().Err(err).Str("gym_id", gymID).Int("attempts", retries+1).Msg("Dropping roster update")
			db.archive(ctx, schema.Table, err.Error(), unique)
			return fmt.Errorf("%w: %w", ErrRetriesExhausted, err)
		}
		retries++
		metrics.RecordUpsertChunk(schema.Table, "retried", len(unique), 0)
		db.logger.Warn().Err(err).Str("gym_id", gymID).Int("attempt", retries).Msg("Roster update failed, retrying")
		if err := db.sleep(ctx, db.cfg.RetryDelay); err != nil {
			return err
		}
	}
}

// inTx runs fn inside a transaction and commits when it returns nil.
func (db *DB) inTx(ctx context.Context, fn func(exec func(q string, args ...any) error) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	exec := func(q string, args ...any) error {
		_, err := tx.ExecContext(ctx, q, args...)
		return err
	}
	if err := fn(exec); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RosterMembers returns the pokemon_uid values stored for gymID.
func (db *DB) RosterMembers(ctx context.Context, gymID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		db.dialect.Rebind(`SELECT pokemon_uid FROM gymmember WHERE gym_id = ? ORDER BY pokemon_uid`), gymID)
	if err != nil {
		return nil, fmt.Errorf("failed to query roster: %w", err)
	}
	defer closeWithLog(rows, "rows")

	var out []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("failed to scan roster row: %w", err)
		}
		out = append(out, uid)
	}
	return out, rows.Err()
}

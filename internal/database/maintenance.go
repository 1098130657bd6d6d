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
	"github.com/tomtom215/whrelay/internal/records"
)

// ClearData deletes every row from the telemetry tables. Tokens and the
// schema version are kept.
func (db *DB) ClearData(ctx context.Context) error {
	return db.inTx(ctx, func(exec func(q string, args ...any) error) error {
		for _, s := range records.All() {
			if err := exec("DELETE FROM " + query.Quote(s.Table)); err != nil {
				return fmt.Errorf("clear %s: %w", s.Table, err)
			}
		}
		return nil
	})
}

// UnflagExpiredLures clears lure fields on pokestops whose lure ended
// before now. It returns the rows changed.
func (db *DB) UnflagExpiredLures(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.exec(ctx,
		`UPDATE pokestop SET lure_expiration = NULL, active_fort_modifier = NULL WHERE lure_expiration < ?`,
		now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to unflag lures: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// PurgePokemon deletes sightings that disappeared before cutoff.
func (db *DB) PurgePokemon(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.exec(ctx, `DELETE FROM pokemon WHERE disappear_time < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge pokemon: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Count returns the number of rows in table.
func (db *DB) Count(ctx context.Context, table string) (int64, error) {
	if _, ok := records.ByTable(table); !ok && table != "authorizations" {
		return 0, fmt.Errorf("database: unknown table %q", table)
	}
	var n int64
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+query.Quote(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/whrelay/internal/database/query"
	"github.com/tomtom215/whrelay/internal/records"
)

const schemaVersionKey = "schema_version"

const versionsTable = `CREATE TABLE IF NOT EXISTS versions (
	"key" VARCHAR(64) PRIMARY KEY,
	val INTEGER NOT NULL
)`

const authorizationsTable = `CREATE TABLE IF NOT EXISTS authorizations (
	token VARCHAR(32) PRIMARY KEY,
	name VARCHAR(64) NOT NULL
)`

// secondaryIndexes are created with the version that introduced their table.
var secondaryIndexes = map[int][]string{
	1: {
		`CREATE INDEX IF NOT EXISTS pokemon_disappear_time_pokemon_id ON pokemon (disappear_time, pokemon_id)`,
		`CREATE INDEX IF NOT EXISTS pokestop_lure_expiration ON pokestop (lure_expiration)`,
		`CREATE INDEX IF NOT EXISTS gym_last_modified ON gym (last_modified)`,
		`CREATE INDEX IF NOT EXISTS gympokemon_trainer_name ON gympokemon (trainer_name)`,
		`CREATE INDEX IF NOT EXISTS authorizations_name ON authorizations (name)`,
	},
	2: {
		`CREATE INDEX IF NOT EXISTS raid_end ON raid ("end")`,
		`CREATE INDEX IF NOT EXISTS weather_last_updated ON weather (last_updated)`,
	},
}

// migrationContext bounds schema work.
func migrationContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, 2*time.Minute)
}

// SchemaVersion returns the stored schema version, or 0 for an empty database.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := db.conn.QueryRowContext(ctx,
		db.dialect.Rebind(`SELECT val FROM versions WHERE "key" = ?`), schemaVersionKey).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

// migrate brings the schema to records.SchemaVersion. Every step runs in
// its own transaction and records its version before committing.
func (db *DB) migrate(parent context.Context) error {
	ctx, cancel := migrationContext(parent)
	defer cancel()

	for _, stmt := range []string{versionsTable, authorizationsTable} {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create bookkeeping tables: %w", err)
		}
	}

	current, err := db.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if current > records.SchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", current, records.SchemaVersion)
	}
	if current < records.SchemaVersion {
		db.logger.Info().Int("from", current).Int("to", records.SchemaVersion).Msg("Migrating database schema")
	}

	for v := current + 1; v <= records.SchemaVersion; v++ {
		if err := db.applyVersion(ctx, v); err != nil {
			return fmt.Errorf("migration to version %d: %w", v, err)
		}
	}
	return nil
}

func (db *DB) migrationStatements(v int) []string {
	var stmts []string
	for _, s := range records.All() {
		switch {
		case s.Since == v:
			stmts = append(stmts, db.dialect.createTable(s, v))
		case s.Since < v:
			for _, c := range s.Columns {
				if c.Since == v {
					stmts = append(stmts, db.dialect.addColumn(s.Table, c))
				}
			}
		}
	}
	if db.dialect.SecondaryIndexes {
		stmts = append(stmts, secondaryIndexes[v]...)
	}
	return stmts
}

func (db *DB) applyVersion(ctx context.Context, v int) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range db.migrationStatements(v) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", truncateForLog(stmt, 80), err)
		}
	}

	res, err := tx.ExecContext(ctx, db.dialect.Rebind(`UPDATE versions SET val = ? WHERE "key" = ?`), v, schemaVersionKey)
	if err != nil {
		return fmt.Errorf("update version: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		ins := query.Upsert{Table: "versions", Columns: []string{"key", "val"}}
		q, args := ins.Build([][]any{{schemaVersionKey, v}}, db.dialect.Placeholder)
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	db.logger.Debug().Int("version", v).Msg("Applied schema migration")
	return nil
}

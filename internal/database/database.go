// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/tomtom215/whrelay/internal/config"
	"github.com/tomtom215/whrelay/internal/logging"
)

// Archiver receives chunks that could not be written.
type Archiver interface {
	Archive(ctx context.Context, source, target, reason string, payload any) error
}

// DB wraps the SQL connection and the write policy.
type DB struct {
	conn    *sql.DB
	dialect Dialect
	cfg     config.DatabaseConfig
	logger  zerolog.Logger

	archiver Archiver

	// sleep is replaced in tests to avoid real retry delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// Open connects with the configured driver, pings, and migrates the schema.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	dsn, err := dataSourceName(dialect, cfg)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{
		conn:    conn,
		dialect: dialect,
		cfg:     cfg,
		logger:  logging.WithComponent("database"),
		sleep:   sleepContext,
	}
	db.configureConnectionPool()

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to ping %s database: %w", dialect.Name, err)
	}

	if err := db.migrate(ctx); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	db.logger.Info().Str("driver", dialect.Name).Msg("Database ready")
	return db, nil
}

func dataSourceName(d Dialect, cfg config.DatabaseConfig) (string, error) {
	switch d.Name {
	case "postgres":
		return cfg.DSN, nil
	case "sqlite":
		if cfg.DSN != "" {
			return cfg.DSN, nil
		}
		if cfg.Path == ":memory:" {
			return "file::memory:?_pragma=foreign_keys(1)&_time_format=sqlite", nil
		}
		if err := ensureDir(cfg.Path); err != nil {
			return "", err
		}
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite", cfg.Path), nil
	default:
		if cfg.DSN != "" {
			return cfg.DSN, nil
		}
		if cfg.Path == ":memory:" || cfg.Path == "" {
			return "", nil
		}
		if err := ensureDir(cfg.Path); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s?access_mode=read_write", cfg.Path), nil
	}
}

// ensureDir creates the parent directory of a database file.
func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}
	return nil
}

func (db *DB) configureConnectionPool() {
	switch db.dialect.Name {
	case "sqlite":
		// One connection keeps an in-memory database shared and avoids
		// SQLITE_BUSY between writers.
		db.conn.SetMaxOpenConns(1)
	case "duckdb":
		db.conn.SetMaxOpenConns(max(db.cfg.Threads, 1) + 2)
		db.conn.SetMaxIdleConns(2)
	default:
		db.conn.SetMaxOpenConns(max(db.cfg.Threads, 1) * 2)
		db.conn.SetMaxIdleConns(2)
		db.conn.SetConnMaxLifetime(time.Hour)
		db.conn.SetConnMaxIdleTime(5 * time.Minute)
	}
}

// SetArchiver sets where unwritable chunks go.
func (db *DB) SetArchiver(a Archiver) {
	db.archiver = a
}

// Dialect returns the active dialect.
func (db *DB) Dialect() Dialect { return db.dialect }

// Conn returns the underlying connection pool.
func (db *DB) Conn() *sql.DB { return db.conn }

// Ping checks connectivity.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the connection pool.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func (db *DB) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return db.conn.ExecContext(ctx, db.dialect.Rebind(q), args...)
}

func (db *DB) archive(ctx context.Context, target, reason string, payload any) {
	if db.archiver == nil {
		return
	}
	if err := db.archiver.Archive(ctx, "upsert", target, reason, payload); err != nil {
		db.logger.Warn().Err(err).Str("table", target).Msg("Failed to archive chunk")
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncateForLog(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

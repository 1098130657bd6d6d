// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

// Package database is the storage layer for WHRelay.
//
// # Drivers
//
// Three database/sql drivers are supported and chosen by database.driver:
//   - duckdb (default): embedded file, github.com/duckdb/duckdb-go/v2
//   - postgres: github.com/lib/pq, $n placeholders
//   - sqlite: modernc.org/sqlite, pure Go, used by the tests
//
// Statements are written with ? placeholders and rebound through the
// query package for the active Dialect.
//
// # Schema
//
// Table layouts come from the records package. A versions table holds
// schema_version and migrations are additive: each version creates the
// tables it introduces and adds the columns it introduces to older tables.
// The authorizations table holds ingress tokens.
//
// # Writes
//
// Upsert writes rows in chunks, one multi-row INSERT ... ON CONFLICT per
// chunk. Constraint and data errors are never retried. Other errors are
// retried after database.retry_delay up to database.max_retries times.
// Chunks that cannot be written are handed to the Archiver, if one is set.
//
// ReplaceRoster swaps the member set of a gym in one transaction.
package database

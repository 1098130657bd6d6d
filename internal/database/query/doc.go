// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

// Package query builds the SQL statements the storage layer sends, in the
// placeholder style of each supported driver.
//
// Statements are written once with ? placeholders and rebound per dialect:
//
//	q := query.Rebind("DELETE FROM pokemon WHERE disappear_time < ?", query.Dollar)
//	// DELETE FROM pokemon WHERE disappear_time < $1
//
// Upsert produces one multi-row INSERT with an ON CONFLICT clause:
//
//	u := query.Upsert{Table: "trainer", Columns: []string{"level", "name"}, Conflict: []string{"name"}}
//	sql, args := u.Build(rows, query.Question)
//	// INSERT INTO "trainer" ("level", "name") VALUES (?, ?), (?, ?)
//	//   ON CONFLICT ("name") DO UPDATE SET "level" = EXCLUDED."level"
package query

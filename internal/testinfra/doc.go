// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

// Package testinfra holds integration test helpers. Everything here is
// built only with the integration tag:
//
//	go test -tags integration ./internal/testinfra/...
//
// # Postgres
//
// StartPostgres runs a throwaway container with testcontainers-go and
// returns a lib/pq DSN. Tests are skipped when Docker is unavailable:
//
//	func TestStore(t *testing.T) {
//	    dsn := testinfra.StartPostgres(t)
//	    db, err := database.Open(ctx, config.DatabaseConfig{Driver: "postgres", DSN: dsn})
//	    // ...
//	}
//
// # Subscribers
//
// Subscriber is an httptest endpoint that records every frame delivered
// to it and can be switched to failing status codes mid-test.
package testinfra

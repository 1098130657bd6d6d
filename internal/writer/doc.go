// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

// Package writer drains the Storage Queue into the database.
//
// A Pool runs database.threads Workers. Each worker takes one Item at a
// time and either upserts a batch of rows for one kind or replaces the
// roster of one gym. Write failures are handled by the database layer's
// retry policy and never stop a worker; only context cancellation or a
// closed queue ends Serve.
//
// After each item the worker samples the queue. A new maximum depth is
// reported to stats as db_queue_max, and a backlog above
// database.backlog_warning logs a warning at most once per second.
package writer

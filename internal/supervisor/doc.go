// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

// Package supervisor builds the suture supervision tree that runs every
// long-lived WHRelay worker.
//
// The tree has three tiers so a crash loop in one layer backs off without
// tearing down the others:
//
//	whrelay (root)
//	├── storage   writer pool, db cleaner, token reload
//	├── pipeline  dispatch workers, delivery loops, stats, event bus
//	└── api       HTTP listener
//
// A worker that panics or returns an error is restarted by its tier.
// Services return ctx.Err() on shutdown.
package supervisor

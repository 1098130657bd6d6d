// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

// Package main is the entry point for the WHRelay server.
//
// WHRelay accepts telemetry webhooks on POST /<token>, normalizes and
// stores every record, and relays a de-duplicated, frame-batched stream
// to the configured subscribers.
//
// # Pipeline
//
// The serve command builds these stages, each supervised by suture:
//
//  1. Ingress: validates the token and queues the raw body
//  2. Dispatch workers: decode, normalize and route each envelope
//  3. Writer pool: batched upserts into DuckDB, Postgres or SQLite
//  4. Delivery loops: LFU dedup and frame batching, then fan-out to
//     webhook subscribers, the NATS event bus and the live feed
//
// # Configuration
//
// Configuration is layered with koanf (highest priority wins):
//   - Environment variables (WHSRV_ prefix)
//   - Config file (--config, CONFIG_PATH or ./config.yaml)
//   - Built-in defaults
//
// # Commands
//
//	whrelay serve                 run the pipeline (default)
//	whrelay tokens list           list ingress tokens
//	whrelay tokens generate NAME  create a token for NAME
//	whrelay tokens revoke TOKEN   delete a token
//	whrelay db clear              delete all stored records
//	whrelay deadletter list       show archived failures
//
// # Signal Handling
//
// SIGINT and SIGTERM stop the supervisor tree. Workers flush pending
// batches and frames before exiting.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

// Package deadletter keeps payloads the pipeline gave up on.
//
// Storage chunks that hit a constraint error or exhausted their retries,
// and frames an endpoint never accepted, are written to a BadgerDB
// store with a TTL. Entries are for operator inspection through the admin
// API and the CLI; nothing replays them.
package deadletter

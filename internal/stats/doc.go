// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

// Package stats aggregates pipeline counters into a periodic runtime report.
//
// Every stage publishes Events through a Recorder. Publishing never blocks:
// when the aggregator inbox is full the event is dropped and counted. All
// aggregated state is owned by the single Aggregator goroutine, so readers
// go through Snapshot which asks that goroutine for a copy.
//
// The aggregator is observability only. Nothing in the pipeline reads its
// state to make a decision.
package stats

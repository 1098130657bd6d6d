// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

// Package records defines the telemetry kinds and the per-kind schema that
// drives normalization, storage and delivery dedup.
//
// A Record is a flat map of column name to scalar value. Each Schema names
// the table a kind is stored in, the columns kept for storage with their
// types and defaults, the primary key, and for the inbound kinds the
// fields that identify an entity and decide whether a re-observation is
// worth delivering again.
//
// Schemas are the single source of truth for table layout: the database
// package generates its DDL and upsert statements from them.
package records

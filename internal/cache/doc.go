// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

// Package cache provides the bounded LFU cache used for delivery
// de-duplication.
//
// Entries live in per-frequency doubly linked lists so Get, Set and
// eviction are O(1). When the cache is full the entry with the lowest
// access count is evicted; among entries with that count the least
// recently touched one goes first.
package cache

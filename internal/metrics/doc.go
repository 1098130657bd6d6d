// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

// Package metrics declares the Prometheus collectors for the WHRelay
// pipeline and small helpers to record them.
//
// All collectors are registered on the default registry through promauto
// and exposed on GET /metrics.
//
// Example alert on a stuck delivery queue:
//
//	- alert: WHRelayDeliveryBacklog
//	  expr: whrelay_queue_depth{queue="delivery"} > 100
//	  for: 5m
package metrics

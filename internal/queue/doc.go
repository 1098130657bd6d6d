// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

// Package queue provides the bounded FIFO that connects pipeline stages.
//
// Put blocks while the queue is full, so a slow consumer pushes back on its
// producers instead of growing memory. Nothing is ever dropped. Each queue
// tracks its highest observed depth and reports depth and maximum to the
// whrelay_queue_depth and whrelay_queue_max_depth gauges.
package queue

// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

// Package delivery re-broadcasts telemetry to downstream subscribers.
//
// Each Loop pulls (kind, message) items from the Delivery Queue and offers
// them to the shared Deduper. A message whose identity is already cached
// with identical significant fields is suppressed; everything else joins
// the Loop's current Frame. A frame is published to every Sink once the
// time since its first message exceeds the frame interval, then cleared.
// Frames are never retried as a whole.
//
// The webhook Sender POSTs a frame to each endpoint in its own goroutine,
// bounded by a semaphore, so a slow endpoint never holds up the loop or
// the other endpoints. Server errors and transport failures are retried
// with exponential backoff; a frame that exhausts its retries for one
// endpoint is archived for that endpoint only.
package delivery

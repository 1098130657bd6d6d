// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package delivery

import (
	"context"
	"errors"
)

var (
	// ErrRetriesExhausted is returned when every attempt to an endpoint failed.
	ErrRetriesExhausted = errors.New("delivery: retries exhausted")

	// ErrRejected is returned for a non-retryable response status.
	ErrRejected = errors.New("delivery: endpoint rejected frame")

	// ErrEndpointSaturated is recorded for frames dropped because an
	// endpoint's backlog was full.
	ErrEndpointSaturated = errors.New("delivery: endpoint backlog full")
)

// Archiver stores frames that could not be delivered.
type Archiver interface {
	Archive(ctx context.Context, source, target, reason string, payload any) error
}

// isRetryableStatus reports whether a response status is worth retrying.
func isRetryableStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	}
	return false
}

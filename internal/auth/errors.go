// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package auth

import "errors"

var (
	// ErrUnknownToken is returned when a token is not in the gate.
	ErrUnknownToken = errors.New("auth: unknown token")

	// ErrNoSecret is returned when the admin JWT secret is empty.
	ErrNoSecret = errors.New("auth: jwt secret is empty")

	// ErrInvalidClaims is returned for a parsed token without a subject.
	ErrInvalidClaims = errors.New("auth: invalid token claims")
)

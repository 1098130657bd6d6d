// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package dispatch

import "errors"

var (
	// ErrEmptyBody is returned by Decode for a blank body.
	ErrEmptyBody = errors.New("dispatch: empty body")

	// ErrMalformed is returned by Decode when the body is not valid JSON
	// or not an envelope.
	ErrMalformed = errors.New("dispatch: malformed body")

	// ErrSchema is returned by a strict Decoder when the body does not
	// match the envelope schema.
	ErrSchema = errors.New("dispatch: envelope schema violation")

	// ErrUnknownKind is returned for an envelope type with no handler.
	ErrUnknownKind = errors.New("dispatch: unknown kind")

	// ErrMissingField is returned when a required message field is absent.
	ErrMissingField = errors.New("dispatch: missing field")
)

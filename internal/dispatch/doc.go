// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

// Package dispatch turns raw ingress bodies into storage and delivery work.
//
// A Pool of Workers pulls bodies from the Intake Queue. Each body decodes
// to one envelope or an array of envelopes ({"type", "message"}). Every
// envelope is routed through the Registry to the Handler for its kind,
// which normalizes the message:
//
//   - epoch seconds and milliseconds become UTC times
//   - base64 ids are decoded
//   - zero sentinels become null
//   - fields older senders omit are backfilled with null
//   - derived fields such as cp_multiplier are computed
//
// The handler's storage rows are accumulated per kind and flushed to the
// Storage Queue in batches. The untouched original message goes to the
// Delivery Queue when delivery is enabled and the kind was neither
// disabled nor ignored.
//
// A panic or error while handling one envelope is recovered, logged with
// the kind and counted; the rest of the body and the worker carry on.
package dispatch

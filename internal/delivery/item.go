// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package delivery

import "github.com/tomtom215/whrelay/internal/records"

// Item is one message waiting on the Delivery Queue.
type Item struct {
	Kind   records.Kind
	Record records.Record

	// View is the normalized form used for dedup, when Record arrived in
	// another field layout.
	View records.Record
}

// dedupView returns the record the deduper keys and compares on.
func (it Item) dedupView() records.Record {
	if it.View != nil {
		return it.View
	}
	return it.Record
}

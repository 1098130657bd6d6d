// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package dispatch

import (
	"time"

	"github.com/tomtom215/whrelay/internal/records"
)

type gymHandler struct {
	disabled bool
}

func (h *gymHandler) Kind() records.Kind { return records.KindGym }

func (h *gymHandler) Normalize(msg records.Record, now time.Time) (Result, error) {
	if h.disabled {
		return Result{Skipped: true}, nil
	}

	rec := msg.Clone()
	if err := detectGymDialect(msg).normalize(rec); err != nil {
		return Result{}, err
	}
	if rec["last_modified"] == nil {
		rec["last_modified"] = now
	}
	backfill(rec, "slots_available", "total_cp", "raid_active_until")

	return Result{
		Rows:         []Row{{Kind: records.KindGym, Record: rec}},
		Delivery:     msg,
		DeliveryView: rec,
	}, nil
}

// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package dispatch

import (
	"time"

	"github.com/tomtom215/whrelay/internal/records"
)

type pokestopHandler struct {
	disabled bool
}

func (h *pokestopHandler) Kind() records.Kind { return records.KindPokestop }

func (h *pokestopHandler) Normalize(msg records.Record, now time.Time) (Result, error) {
	if h.disabled {
		return Result{Skipped: true}, nil
	}
	if err := require(msg, "pokestop_id"); err != nil {
		return Result{}, err
	}

	rec := msg.Clone()
	rec["pokestop_id"] = decodeID(rec["pokestop_id"])

	switch {
	case rec.Has("last_modified_time"):
		if err := millis(rec, "last_modified_time", "last_modified"); err != nil {
			return Result{}, err
		}
	case rec.Has("last_modified"):
		if err := millis(rec, "last_modified", "last_modified"); err != nil {
			return Result{}, err
		}
	default:
		rec["last_modified"] = now
	}
	if err := seconds(rec, "lure_expiration"); err != nil {
		return Result{}, err
	}
	backfill(rec, "active_fort_modifier")

	return Result{
		Rows:     []Row{{Kind: records.KindPokestop, Record: rec}},
		Delivery: msg,
	}, nil
}

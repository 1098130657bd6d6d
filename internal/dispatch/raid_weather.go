// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package dispatch

import (
	"time"

	"github.com/tomtom215/whrelay/internal/records"
)

type raidHandler struct {
	disabled bool
}

func (h *raidHandler) Kind() records.Kind { return records.KindRaid }

func (h *raidHandler) Normalize(msg records.Record, _ time.Time) (Result, error) {
	if h.disabled {
		return Result{Skipped: true}, nil
	}
	if err := require(msg, "gym_id"); err != nil {
		return Result{}, err
	}

	rec := msg.Clone()
	rec["gym_id"] = decodeID(rec["gym_id"])
	for _, f := range []string{"spawn", "start", "end"} {
		if err := seconds(rec, f); err != nil {
			return Result{}, err
		}
	}
	// Eggs carry zeros for the boss fields.
	nullIfZero(rec, "pokemon_id", "cp", "move_1", "move_2")
	backfill(rec, "pokemon_id", "cp", "move_1", "move_2")

	return Result{
		Rows:     []Row{{Kind: records.KindRaid, Record: rec}},
		Delivery: msg,
	}, nil
}

type weatherHandler struct {
	disabled bool
}

func (h *weatherHandler) Kind() records.Kind { return records.KindWeather }

func (h *weatherHandler) Normalize(msg records.Record, _ time.Time) (Result, error) {
	if h.disabled {
		return Result{Skipped: true}, nil
	}
	if err := require(msg, "s2_cell_id"); err != nil {
		return Result{}, err
	}

	rec := msg.Clone()
	if err := seconds(rec, "world_time"); err != nil {
		return Result{}, err
	}
	if v, ok := rec["warn_weather"]; ok && v != nil {
		if _, isBool := v.(bool); !isBool {
			rec["warn_weather"] = !records.IsZero(v)
		}
	}

	return Result{
		Rows:     []Row{{Kind: records.KindWeather, Record: rec}},
		Delivery: msg,
	}, nil
}

// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package dispatch

import (
	"time"

	"github.com/tomtom215/whrelay/internal/records"
)

type pokemonHandler struct {
	disabled bool
	ignore   map[int64]struct{}
}

func newPokemonHandler(disabled bool, ignore []int) *pokemonHandler {
	h := &pokemonHandler{disabled: disabled, ignore: make(map[int64]struct{}, len(ignore))}
	for _, id := range ignore {
		h.ignore[int64(id)] = struct{}{}
	}
	return h
}

func (h *pokemonHandler) Kind() records.Kind { return records.KindPokemon }

func (h *pokemonHandler) Normalize(msg records.Record, now time.Time) (Result, error) {
	if h.disabled {
		return Result{Skipped: true}, nil
	}
	if err := require(msg, "encounter_id", "pokemon_id"); err != nil {
		return Result{}, err
	}
	if id, ok := records.Number(msg["pokemon_id"]); ok {
		if _, skip := h.ignore[int64(id)]; skip {
			return Result{Ignored: true}, nil
		}
	}

	rec := msg.Clone()
	if err := seconds(rec, "disappear_time"); err != nil {
		return Result{}, err
	}
	if rec.Has("last_modified") {
		if err := millis(rec, "last_modified", "last_modified"); err != nil {
			return Result{}, err
		}
	} else {
		rec["last_modified"] = now
	}

	// Unencountered sightings report zero IVs; keep them only when a cp
	// proves the encounter happened.
	if records.IsZero(rec["individual_attack"]) &&
		records.IsZero(rec["individual_defense"]) &&
		records.IsZero(rec["individual_stamina"]) &&
		records.IsZero(rec["cp"]) {
		rec["individual_attack"] = nil
		rec["individual_defense"] = nil
		rec["individual_stamina"] = nil
	}
	nullIfZero(rec, "move_1", "move_2", "cp", "weight", "height")

	deriveCPMultiplier(rec)
	backfill(rec, "form", "costume", "cp", "cp_multiplier", "weather_boosted_condition")

	return Result{
		Rows:     []Row{{Kind: records.KindPokemon, Record: rec}},
		Delivery: msg,
	}, nil
}

// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package dispatch

import (
	"fmt"
	"time"

	"github.com/tomtom215/whrelay/internal/records"
	"github.com/tomtom215/whrelay/internal/writer"
)

// gymDetailsHandler fans one gym_details message out into the gym's
// details, its trainers, their defending pokemon and a roster replace.
type gymDetailsHandler struct {
	disabled bool
}

func (h *gymDetailsHandler) Kind() records.Kind { return records.KindGymDetails }

func (h *gymDetailsHandler) Normalize(msg records.Record, _ time.Time) (Result, error) {
	if h.disabled {
		return Result{Skipped: true}, nil
	}

	var gymID string
	switch {
	case msg.Has("id"):
		gymID = fmt.Sprint(decodeID(msg["id"]))
	case msg.Has("gym_id"):
		gymID = fmt.Sprint(decodeID(msg["gym_id"]))
	default:
		return Result{}, fmt.Errorf("%w: id", ErrMissingField)
	}

	detail := records.Record{"gym_id": gymID}
	for _, f := range []string{"name", "description", "url"} {
		if v, ok := msg[f]; ok {
			detail[f] = v
		}
	}
	rows := []Row{{Kind: records.KindGymDetails, Record: detail}}

	members, err := rosterOf(msg["pokemon"])
	if err != nil {
		return Result{}, err
	}

	roster := &writer.RosterReplace{GymID: gymID, Members: make([]records.Record, 0, len(members))}
	trainers := make(map[string]bool, len(members))
	for i, m := range members {
		if !m.Has("pokemon_uid") {
			return Result{}, fmt.Errorf("%w: pokemon[%d].pokemon_uid", ErrMissingField, i)
		}

		if name, ok := m["trainer_name"].(string); ok && name != "" && !trainers[name] {
			trainers[name] = true
			rows = append(rows, Row{Kind: records.KindTrainer, Record: records.Record{
				"name":  name,
				"team":  msg["team"],
				"level": m["trainer_level"],
			}})
		}

		gp := m.Clone()
		deriveCPMultiplier(gp)
		rows = append(rows, Row{Kind: records.KindGymPokemon, Record: gp})

		member := records.Record{"gym_id": gymID, "pokemon_uid": m["pokemon_uid"]}
		if m.Has("deployment_time") {
			t, ok := records.EpochMillis(m["deployment_time"])
			if !ok {
				return Result{}, fmt.Errorf("pokemon[%d].deployment_time: not an epoch: %v", i, m["deployment_time"])
			}
			member["deployment_time"] = t
		}
		if v, ok := m["cp_decayed"]; ok {
			member["cp_decayed"] = v
		}
		roster.Members = append(roster.Members, member)
	}

	return Result{Rows: rows, Roster: roster, Delivery: msg}, nil
}

// rosterOf converts the decoded "pokemon" array into records.
func rosterOf(v any) ([]records.Record, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("pokemon: expected array, got %T", v)
	}
	out := make([]records.Record, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("pokemon[%d]: expected object, got %T", i, item)
		}
		out = append(out, records.Record(m))
	}
	return out, nil
}

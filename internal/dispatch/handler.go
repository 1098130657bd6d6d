// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package dispatch

import (
	"sort"
	"time"

	"github.com/tomtom215/whrelay/internal/config"
	"github.com/tomtom215/whrelay/internal/records"
	"github.com/tomtom215/whrelay/internal/writer"
)

// Row is one normalized record bound for a storage table.
type Row struct {
	Kind   records.Kind
	Record records.Record
}

// Result is the outcome of normalizing one message.
type Result struct {
	// Rows are normalized but not yet projected to their schema.
	Rows []Row

	// Roster replaces a gym's member list, when set.
	Roster *writer.RosterReplace

	// Delivery is the original message to forward, or nil.
	Delivery records.Record

	// DeliveryView is the normalized form the deduper keys and compares
	// on. Nil means Delivery is already in the normalized layout.
	DeliveryView records.Record

	// Skipped is set when the kind is disabled by configuration.
	Skipped bool

	// Ignored is set when the message matched an ignore rule.
	Ignored bool
}

// Handler normalizes messages of one kind. Normalize must not modify msg.
type Handler interface {
	Kind() records.Kind
	Normalize(msg records.Record, now time.Time) (Result, error)
}

// Registry maps kinds to their handlers.
type Registry struct {
	handlers map[records.Kind]Handler
}

// NewRegistry returns a registry holding the handler of every inbound kind.
func NewRegistry(cfg config.KindsConfig) *Registry {
	r := &Registry{handlers: make(map[records.Kind]Handler)}
	r.Register(newPokemonHandler(cfg.NoPokemon, cfg.IgnorePokemon))
	r.Register(&pokestopHandler{disabled: cfg.NoPokestops})
	r.Register(&gymHandler{disabled: cfg.NoGyms})
	r.Register(&gymDetailsHandler{disabled: cfg.NoGyms || cfg.NoGymDetail})
	r.Register(&raidHandler{disabled: cfg.NoRaids})
	r.Register(&weatherHandler{disabled: cfg.NoWeather})
	return r
}

// Register adds or replaces the handler for h.Kind().
func (r *Registry) Register(h Handler) {
	r.handlers[h.Kind()] = h
}

// Lookup returns the handler for kind.
func (r *Registry) Lookup(kind records.Kind) (Handler, bool) {
	h, ok := r.handlers[kind]
	return h, ok
}

// kinds returns the registered kinds sorted.
func (r *Registry) kinds() []records.Kind {
	out := make([]records.Kind, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

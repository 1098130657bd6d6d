// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package records

// Kind is the envelope type tag.
type Kind string

// Inbound kinds.
const (
	KindPokemon    Kind = "pokemon"
	KindPokestop   Kind = "pokestop"
	KindGym        Kind = "gym"
	KindGymDetails Kind = "gym_details"
	KindRaid       Kind = "raid"
	KindWeather    Kind = "weather"
)

// Storage-only kinds produced by the gym_details fan-out.
const (
	KindGymMember  Kind = "gym_member"
	KindGymPokemon Kind = "gym_pokemon"
	KindTrainer    Kind = "trainer"
)

// Inbound returns every kind accepted on the ingress, in report order.
func Inbound() []Kind {
	return []Kind{KindPokemon, KindPokestop, KindGym, KindGymDetails, KindRaid, KindWeather}
}

// IsInbound reports whether k is accepted on the ingress.
func (k Kind) IsInbound() bool {
	switch k {
	case KindPokemon, KindPokestop, KindGym, KindGymDetails, KindRaid, KindWeather:
		return true
	}
	return false
}

func (k Kind) String() string {
	return string(k)
}

// Record is one flat telemetry object.
type Record map[string]any

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Has reports whether field is present with a non-nil value.
func (r Record) Has(field string) bool {
	v, ok := r[field]
	return ok && v != nil
}

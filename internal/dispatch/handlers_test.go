// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package dispatch

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/whrelay/internal/config"
	"github.com/tomtom215/whrelay/internal/delivery"
	"github.com/tomtom215/whrelay/internal/records"
)

var testNow = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

func mustMessage(t *testing.T, raw string) records.Record {
	t.Helper()
	d, _ := NewDecoder(false)
	envs, err := d.Decode([]byte(`{"type":"x","message":` + raw + `}`))
	if err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return envs[0].Message
}

func normalize(t *testing.T, cfg config.KindsConfig, kind records.Kind, raw string) Result {
	t.Helper()
	h, ok := NewRegistry(cfg).Lookup(kind)
	if !ok {
		t.Fatalf("no handler for %s", kind)
	}
	res, err := h.Normalize(mustMessage(t, raw), testNow)
	if err != nil {
		t.Fatalf("Normalize(%s): %v", kind, err)
	}
	return res
}

func onlyRow(t *testing.T, res Result) records.Record {
	t.Helper()
	if len(res.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(res.Rows))
	}
	return res.Rows[0].Record
}

func TestRegistryKinds(t *testing.T) {
	t.Parallel()

	got := NewRegistry(config.KindsConfig{}).kinds()
	if len(got) != len(records.Inbound()) {
		t.Fatalf("registered %v, want every inbound kind", got)
	}
	for _, k := range records.Inbound() {
		if _, ok := NewRegistry(config.KindsConfig{}).Lookup(k); !ok {
			t.Errorf("no handler for %s", k)
		}
	}
}

func TestPokemonHandler(t *testing.T) {
	t.Parallel()

	const sighting = `{"encounter_id":"123","spawnpoint_id":"sp","pokemon_id":16,
		"latitude":1.5,"longitude":2.5,"disappear_time":1780308000,
		"last_modified":1780307000000,"individual_attack":0,"individual_defense":0,
		"individual_stamina":0,"move_1":0,"move_2":0,"weight":0,"height":0,
		"pokemon_level":30}`

	res := normalize(t, config.KindsConfig{}, records.KindPokemon, sighting)
	rec := onlyRow(t, res)

	if want := time.Unix(1780308000, 0).UTC(); rec["disappear_time"] != want {
		t.Errorf("disappear_time = %v, want %v", rec["disappear_time"], want)
	}
	if want := time.UnixMilli(1780307000000).UTC(); rec["last_modified"] != want {
		t.Errorf("last_modified = %v, want %v", rec["last_modified"], want)
	}
	for _, f := range []string{"individual_attack", "individual_defense", "individual_stamina", "move_1", "move_2", "weight", "height", "form", "costume", "cp", "weather_boosted_condition"} {
		if v, ok := rec[f]; !ok || v != nil {
			t.Errorf("%s = %#v (present %v), want explicit null", f, v, ok)
		}
	}
	if rec["cp_multiplier"] != 0.7317 {
		t.Errorf("cp_multiplier = %v, want level 30 value", rec["cp_multiplier"])
	}
	if res.Delivery["disappear_time"] != json.Number("1780308000") {
		t.Errorf("delivery copy was modified: %v", res.Delivery["disappear_time"])
	}
}

func TestPokemonHandlerKeepsEncounteredZeroIVs(t *testing.T) {
	t.Parallel()

	res := normalize(t, config.KindsConfig{}, records.KindPokemon,
		`{"encounter_id":"1","pokemon_id":1,"disappear_time":1,"individual_attack":0,
		"individual_defense":0,"individual_stamina":0,"cp":10,"cp_multiplier":0.5}`)
	rec := onlyRow(t, res)
	if rec["individual_attack"] == nil {
		t.Error("zero IVs with a cp are real and must be kept")
	}
	if rec["cp_multiplier"] != json.Number("0.5") {
		t.Errorf("sender cp_multiplier overwritten: %v", rec["cp_multiplier"])
	}
	if rec["last_modified"] != testNow {
		t.Errorf("missing last_modified = %v, want now", rec["last_modified"])
	}
}

func TestPokemonHandlerPolicies(t *testing.T) {
	t.Parallel()

	const msg = `{"encounter_id":"1","pokemon_id":13,"disappear_time":1}`

	if res := normalize(t, config.KindsConfig{NoPokemon: true}, records.KindPokemon, msg); !res.Skipped || res.Delivery != nil {
		t.Errorf("no_pokemon result = %+v, want skipped without delivery", res)
	}
	if res := normalize(t, config.KindsConfig{IgnorePokemon: []int{13}}, records.KindPokemon, msg); !res.Ignored || len(res.Rows) != 0 || res.Delivery != nil {
		t.Errorf("ignored result = %+v, want nothing stored or delivered", res)
	}

	h, _ := NewRegistry(config.KindsConfig{}).Lookup(records.KindPokemon)
	if _, err := h.Normalize(records.Record{"pokemon_id": 1}, testNow); !errors.Is(err, ErrMissingField) {
		t.Errorf("missing encounter_id err = %v", err)
	}
}

func TestPokestopHandler(t *testing.T) {
	t.Parallel()

	res := normalize(t, config.KindsConfig{}, records.KindPokestop,
		`{"pokestop_id":"c3RvcC0x","enabled":true,"latitude":1,"longitude":2,
		"last_modified_time":1780307000000,"lure_expiration":1780308000}`)
	rec := onlyRow(t, res)

	if rec["pokestop_id"] != "stop-1" {
		t.Errorf("pokestop_id = %v, want base64 decoded", rec["pokestop_id"])
	}
	if want := time.Unix(1780308000, 0).UTC(); rec["lure_expiration"] != want {
		t.Errorf("lure_expiration = %v", rec["lure_expiration"])
	}
	if v, ok := rec["active_fort_modifier"]; !ok || v != nil {
		t.Errorf("active_fort_modifier = %v, want backfilled null", v)
	}
	if res.Delivery["pokestop_id"] != "c3RvcC0x" {
		t.Error("delivery must carry the original id")
	}

	plain := onlyRow(t, normalize(t, config.KindsConfig{}, records.KindPokestop,
		`{"pokestop_id":"X","enabled":true,"lure_expiration":null}`))
	if plain["pokestop_id"] != "X" || plain["lure_expiration"] != nil {
		t.Errorf("plain id record = %v", plain)
	}
	if plain["last_modified"] != testNow {
		t.Errorf("last_modified = %v, want now", plain["last_modified"])
	}
}

func TestGymHandlerDialects(t *testing.T) {
	t.Parallel()

	def := onlyRow(t, normalize(t, config.KindsConfig{}, records.KindGym,
		`{"gym_id":"Z3ltLTE=","team_id":1,"guard_pokemon_id":3,"enabled":true,
		"latitude":1,"longitude":2,"last_modified":1780307000000}`))
	if def["gym_id"] != "gym-1" {
		t.Errorf("default gym_id = %v", def["gym_id"])
	}
	if want := time.UnixMilli(1780307000000).UTC(); def["last_modified"] != want {
		t.Errorf("default last_modified = %v", def["last_modified"])
	}

	ext := onlyRow(t, normalize(t, config.KindsConfig{}, records.KindGym,
		`{"external_id":"abc.16","team":2,"guard_pokemon_id":3,"enabled":true,
		"lat":1,"lon":2,"last_modified":1780307000}`))
	if ext["gym_id"] != "abc.16" || ext["team_id"] != json.Number("2") {
		t.Errorf("external dialect not mapped: %v", ext)
	}
	if ext["latitude"] != json.Number("1") || ext["longitude"] != json.Number("2") {
		t.Errorf("external coordinates not mapped: %v", ext)
	}
	if want := time.Unix(1780307000, 0).UTC(); ext["last_modified"] != want {
		t.Errorf("external last_modified = %v, want seconds", ext["last_modified"])
	}
	for _, f := range []string{"slots_available", "total_cp", "raid_active_until"} {
		if v, ok := ext[f]; !ok || v != nil {
			t.Errorf("%s not backfilled", f)
		}
	}

	if detectGymDialect(records.Record{"gym_id": "x"}) != gymDialectDefault {
		t.Error("gym without marker should use the default dialect")
	}
}

func TestGymDetailsFanOut(t *testing.T) {
	t.Parallel()

	res := normalize(t, config.KindsConfig{}, records.KindGymDetails,
		`{"id":"Z3ltLTE=","name":"Fountain","url":"http://img","team":2,
		"pokemon":[
			{"pokemon_uid":"p1","pokemon_id":3,"cp":900,"trainer_name":"ash","trainer_level":30,"pokemon_level":20,"deployment_time":1780307000000},
			{"pokemon_uid":"p2","pokemon_id":4,"cp":800,"trainer_name":"ash","trainer_level":30,"cp_decayed":12}
		]}`)

	counts := map[records.Kind]int{}
	for _, r := range res.Rows {
		counts[r.Kind]++
	}
	if counts[records.KindGymDetails] != 1 || counts[records.KindTrainer] != 1 || counts[records.KindGymPokemon] != 2 {
		t.Errorf("row counts = %v", counts)
	}
	if res.Rows[0].Record["gym_id"] != "gym-1" {
		t.Errorf("detail gym_id = %v", res.Rows[0].Record["gym_id"])
	}
	if res.Roster == nil || res.Roster.GymID != "gym-1" || len(res.Roster.Members) != 2 {
		t.Fatalf("roster = %+v", res.Roster)
	}
	if want := time.UnixMilli(1780307000000).UTC(); res.Roster.Members[0]["deployment_time"] != want {
		t.Errorf("deployment_time = %v", res.Roster.Members[0]["deployment_time"])
	}
	if res.Roster.Members[1]["cp_decayed"] != json.Number("12") {
		t.Errorf("cp_decayed = %v", res.Roster.Members[1]["cp_decayed"])
	}
	for _, r := range res.Rows {
		if r.Kind == records.KindTrainer && (r.Record["team"] != json.Number("2") || r.Record["level"] != json.Number("30")) {
			t.Errorf("trainer = %v", r.Record)
		}
	}
	if _, ok := res.Delivery["gym_id"]; ok {
		t.Error("delivery must be the original message")
	}

	empty := normalize(t, config.KindsConfig{}, records.KindGymDetails, `{"id":"g","name":"n","url":"u","team":0}`)
	if empty.Roster == nil || len(empty.Roster.Members) != 0 {
		t.Errorf("gym without defenders should still replace its roster: %+v", empty.Roster)
	}

	if res := normalize(t, config.KindsConfig{NoGyms: true}, records.KindGymDetails, `{"id":"g"}`); !res.Skipped {
		t.Error("no_gyms should disable gym details")
	}
}

func TestRaidAndWeatherHandlers(t *testing.T) {
	t.Parallel()

	egg := onlyRow(t, normalize(t, config.KindsConfig{}, records.KindRaid,
		`{"gym_id":"g","level":5,"spawn":1780300000,"start":1780303600,"end":1780306300,
		"pokemon_id":0,"cp":0,"move_1":0,"move_2":0}`))
	for _, f := range []string{"pokemon_id", "cp", "move_1", "move_2"} {
		if egg[f] != nil {
			t.Errorf("egg %s = %v, want null", f, egg[f])
		}
	}
	if want := time.Unix(1780306300, 0).UTC(); egg["end"] != want {
		t.Errorf("end = %v", egg["end"])
	}

	w := onlyRow(t, normalize(t, config.KindsConfig{}, records.KindWeather,
		`{"s2_cell_id":9749607573628157952,"latitude":1,"longitude":2,"gameplay_weather":3,
		"warn_weather":1,"world_time":1780300000}`))
	if w["warn_weather"] != true {
		t.Errorf("warn_weather = %#v, want true", w["warn_weather"])
	}
	if want := time.Unix(1780300000, 0).UTC(); w["world_time"] != want {
		t.Errorf("world_time = %v", w["world_time"])
	}

	if res := normalize(t, config.KindsConfig{NoRaids: true}, records.KindRaid, `{"gym_id":"g"}`); !res.Skipped {
		t.Error("no_raids should skip raids")
	}
	if res := normalize(t, config.KindsConfig{NoWeather: true}, records.KindWeather, `{"s2_cell_id":1}`); !res.Skipped {
		t.Error("no_weather should skip weather")
	}
}

func TestCPMultiplier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level float64
		want  float64
		ok    bool
	}{
		{1, 0.094, true},
		{40, 0.79030001, true},
		{1.5, math.Sqrt((0.094*0.094 + 0.16639787*0.16639787) / 2), true},
		{0, 0, false},
		{41, 0, false},
		{2.25, 0, false},
	}
	for _, tt := range tests {
		got, ok := CPMultiplier(tt.level)
		if ok != tt.ok || math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("CPMultiplier(%v) = %v, %v; want %v, %v", tt.level, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDecodeID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   any
		want any
	}{
		{"Z3ltLTE=", "gym-1"},
		{"abc.16", "abc.16"},
		{"X", "X"},
		{"/w==", "/w=="},
		{json.Number("5"), json.Number("5")},
		{nil, nil},
	}
	for _, tt := range tests {
		if got := decodeID(tt.in); got != tt.want {
			t.Errorf("decodeID(%#v) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestGymDeliveryViewDedupsBothDialects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		first   string
		changed string
	}{
		{
			name:    "default",
			first:   `{"gym_id":"Z3ltLTE=","team_id":1,"guard_pokemon_id":3,"enabled":true,"latitude":1,"longitude":2}`,
			changed: `{"gym_id":"Z3ltLTE=","team_id":2,"guard_pokemon_id":3,"enabled":true,"latitude":1,"longitude":2}`,
		},
		{
			name:    "external",
			first:   `{"external_id":"G1","team":1,"guard_pokemon_id":3,"enabled":true,"lat":1,"lon":2}`,
			changed: `{"external_id":"G1","team":2,"guard_pokemon_id":3,"enabled":true,"lat":1,"lon":2}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := delivery.NewDeduper(16)
			offer := func(raw string) delivery.Outcome {
				res := normalize(t, config.KindsConfig{}, records.KindGym, raw)
				if res.DeliveryView == nil {
					t.Fatal("gym result has no delivery view")
				}
				if _, ok := res.DeliveryView["gym_id"]; !ok {
					t.Fatalf("delivery view not normalized: %v", res.DeliveryView)
				}
				return d.Offer(records.KindGym, res.DeliveryView)
			}

			if got := offer(tt.first); got != delivery.Sent {
				t.Errorf("first offer = %s, want sent", got)
			}
			if got := offer(tt.first); got != delivery.Suppressed {
				t.Errorf("repeat offer = %s, want suppressed", got)
			}
			if got := offer(tt.changed); got != delivery.Sent {
				t.Errorf("changed team offer = %s, want sent", got)
			}
		})
	}
}

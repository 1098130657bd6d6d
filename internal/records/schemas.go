// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package records

import "sort"

// SchemaVersion is the latest table layout version.
const SchemaVersion = 2

func col(name string, t ColumnType) Column {
	return Column{Name: name, Type: t, Since: 1}
}

func nullable(name string, t ColumnType) Column {
	return Column{Name: name, Type: t, Nullable: true, Since: 1}
}

func added(c Column, version int) Column {
	c.Since = version
	return c
}

func withDefault(c Column, d DefaultFunc) Column {
	c.Default = d
	return c
}

var schemas = map[Kind]*Schema{
	KindPokemon: {
		Kind:     KindPokemon,
		Table:    "pokemon",
		Identity: []string{"encounter_id"},
		Since:    1,
		Columns: []Column{
			col("encounter_id", TypeText),
			col("spawnpoint_id", TypeText),
			col("pokemon_id", TypeInt),
			col("latitude", TypeFloat),
			col("longitude", TypeFloat),
			col("disappear_time", TypeTime),
			nullable("individual_attack", TypeInt),
			nullable("individual_defense", TypeInt),
			nullable("individual_stamina", TypeInt),
			nullable("move_1", TypeInt),
			nullable("move_2", TypeInt),
			nullable("weight", TypeFloat),
			nullable("height", TypeFloat),
			nullable("gender", TypeInt),
			added(nullable("form", TypeInt), 2),
			added(nullable("costume", TypeInt), 2),
			added(nullable("cp", TypeInt), 2),
			added(nullable("cp_multiplier", TypeFloat), 2),
			added(nullable("weather_boosted_condition", TypeInt), 2),
			withDefault(col("last_modified", TypeTime), Now),
		},
		DeliveryIdentity: []string{"encounter_id"},
		Significant: []string{
			"spawnpoint_id", "pokemon_id", "latitude", "longitude",
			"disappear_time", "move_1", "move_2", "individual_stamina",
			"individual_defense", "individual_attack", "form", "cp",
			"pokemon_level",
		},
	},
	KindPokestop: {
		Kind:     KindPokestop,
		Table:    "pokestop",
		Identity: []string{"pokestop_id"},
		Since:    1,
		Columns: []Column{
			col("pokestop_id", TypeText),
			col("enabled", TypeBool),
			col("latitude", TypeFloat),
			col("longitude", TypeFloat),
			col("last_modified", TypeTime),
			nullable("lure_expiration", TypeTime),
			nullable("active_fort_modifier", TypeInt),
			withDefault(nullable("last_updated", TypeTime), Now),
		},
		DeliveryIdentity: []string{"pokestop_id"},
		Significant: []string{
			"enabled", "latitude", "longitude", "lure_expiration",
			"active_fort_modifier",
		},
	},
	KindGym: {
		Kind:     KindGym,
		Table:    "gym",
		Identity: []string{"gym_id"},
		Since:    1,
		Columns: []Column{
			col("gym_id", TypeText),
			col("team_id", TypeInt),
			col("guard_pokemon_id", TypeInt),
			withDefault(added(col("slots_available", TypeInt), 2), Const(int64(0))),
			col("enabled", TypeBool),
			withDefault(added(col("park", TypeBool), 2), Const(false)),
			added(nullable("sponsor", TypeInt), 2),
			col("latitude", TypeFloat),
			col("longitude", TypeFloat),
			withDefault(added(col("total_cp", TypeInt), 2), Const(int64(0))),
			col("last_modified", TypeTime),
			withDefault(col("last_scanned", TypeTime), Now),
		},
		DeliveryIdentity: []string{"gym_id"},
		Significant: []string{
			"team_id", "guard_pokemon_id", "enabled", "latitude", "longitude",
			"raid_active_until", "occupied_since_ms", "total_cp",
			"lowest_pokemon_motivation", "slots_available",
		},
	},
	KindGymDetails: {
		Kind:     KindGymDetails,
		Table:    "gymdetails",
		Identity: []string{"gym_id"},
		Since:    1,
		Columns: []Column{
			col("gym_id", TypeText),
			col("name", TypeText),
			withDefault(nullable("description", TypeText), Const("")),
			col("url", TypeText),
			withDefault(col("last_scanned", TypeTime), Now),
		},
		DeliveryIdentity: []string{"gym_id", "id"},
		Significant:      []string{"latitude", "longitude", "team", "pokemon"},
	},
	KindGymPokemon: {
		Kind:     KindGymPokemon,
		Table:    "gympokemon",
		Identity: []string{"pokemon_uid"},
		Since:    1,
		Columns: []Column{
			col("pokemon_uid", TypeText),
			col("pokemon_id", TypeInt),
			col("cp", TypeInt),
			col("trainer_name", TypeText),
			nullable("num_upgrades", TypeInt),
			nullable("move_1", TypeInt),
			nullable("move_2", TypeInt),
			nullable("height", TypeFloat),
			nullable("weight", TypeFloat),
			nullable("stamina", TypeInt),
			nullable("stamina_max", TypeInt),
			nullable("cp_multiplier", TypeFloat),
			nullable("additional_cp_multiplier", TypeFloat),
			nullable("iv_defense", TypeInt),
			nullable("iv_stamina", TypeInt),
			nullable("iv_attack", TypeInt),
			added(nullable("costume", TypeInt), 2),
			added(nullable("form", TypeInt), 2),
			added(nullable("shiny", TypeInt), 2),
			withDefault(col("last_seen", TypeTime), Now),
		},
	},
	KindGymMember: {
		Kind:     KindGymMember,
		Table:    "gymmember",
		Identity: []string{"gym_id", "pokemon_uid"},
		Since:    1,
		Columns: []Column{
			col("gym_id", TypeText),
			col("pokemon_uid", TypeText),
			withDefault(col("last_scanned", TypeTime), Now),
			withDefault(added(col("deployment_time", TypeTime), 2), Now),
			withDefault(added(col("cp_decayed", TypeInt), 2), Const(int64(0))),
		},
	},
	KindTrainer: {
		Kind:     KindTrainer,
		Table:    "trainer",
		Identity: []string{"name"},
		Since:    1,
		Columns: []Column{
			col("name", TypeText),
			col("team", TypeInt),
			col("level", TypeInt),
			withDefault(col("last_seen", TypeTime), Now),
		},
	},
	KindRaid: {
		Kind:     KindRaid,
		Table:    "raid",
		Identity: []string{"gym_id"},
		Since:    2,
		Columns: []Column{
			added(col("gym_id", TypeText), 2),
			added(col("level", TypeInt), 2),
			added(col("spawn", TypeTime), 2),
			added(col("start", TypeTime), 2),
			added(col("end", TypeTime), 2),
			added(nullable("pokemon_id", TypeInt), 2),
			added(nullable("cp", TypeInt), 2),
			added(nullable("move_1", TypeInt), 2),
			added(nullable("move_2", TypeInt), 2),
			withDefault(added(nullable("last_scanned", TypeTime), 2), Now),
		},
		DeliveryIdentity: []string{"gym_id"},
		Significant: []string{
			"spawn", "start", "end", "pokemon_id", "latitude", "longitude",
		},
	},
	KindWeather: {
		Kind:     KindWeather,
		Table:    "weather",
		Identity: []string{"s2_cell_id"},
		Since:    2,
		Columns: []Column{
			added(col("s2_cell_id", TypeText), 2),
			added(col("latitude", TypeFloat), 2),
			added(col("longitude", TypeFloat), 2),
			withDefault(added(nullable("cloud_level", TypeInt), 2), Const(int64(0))),
			withDefault(added(nullable("rain_level", TypeInt), 2), Const(int64(0))),
			withDefault(added(nullable("wind_level", TypeInt), 2), Const(int64(0))),
			withDefault(added(nullable("snow_level", TypeInt), 2), Const(int64(0))),
			withDefault(added(nullable("fog_level", TypeInt), 2), Const(int64(0))),
			withDefault(added(nullable("wind_direction", TypeInt), 2), Const(int64(0))),
			withDefault(added(nullable("gameplay_weather", TypeInt), 2), Const(int64(0))),
			withDefault(added(nullable("severity", TypeInt), 2), Const(int64(0))),
			withDefault(added(nullable("warn_weather", TypeBool), 2), Const(false)),
			added(nullable("world_time", TypeTime), 2),
			withDefault(added(nullable("last_updated", TypeTime), 2), Now),
		},
		DeliveryIdentity: []string{"s2_cell_id"},
		Significant: []string{
			"cloud_level", "rain_level", "wind_level", "snow_level", "fog_level",
			"gameplay_weather", "severity", "warn_weather",
		},
	},
}

// Lookup returns the schema for kind.
func Lookup(kind Kind) (*Schema, bool) {
	s, ok := schemas[kind]
	return s, ok
}

// MustLookup returns the schema for kind and panics when there is none.
func MustLookup(kind Kind) *Schema {
	s, ok := schemas[kind]
	if !ok {
		panic("records: no schema for kind " + string(kind))
	}
	return s
}

// ByTable returns the schema stored in table.
func ByTable(table string) (*Schema, bool) {
	for _, s := range schemas {
		if s.Table == table {
			return s, true
		}
	}
	return nil, false
}

// All returns every schema ordered by table name.
func All() []*Schema {
	out := make([]*Schema, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Table < out[j].Table })
	return out
}

// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package dispatch

import (
	"github.com/tomtom215/whrelay/internal/records"
)

// gymDialect identifies which sender format a gym message uses. Senders
// disagree on gym field names; the alternate format is recognised by its
// external_id field. Detection is integration-specific and kept here so
// the rest of the pipeline only sees the normalized form.
type gymDialect int

const (
	gymDialectDefault gymDialect = iota
	gymDialectExternal
)

// gymDialectMarker is present only in the alternate format.
const gymDialectMarker = "external_id"

func (d gymDialect) String() string {
	if d == gymDialectExternal {
		return "external"
	}
	return "default"
}

func detectGymDialect(msg records.Record) gymDialect {
	if _, ok := msg[gymDialectMarker]; ok {
		return gymDialectExternal
	}
	return gymDialectDefault
}

// normalize rewrites rec in place into the default field layout.
func (d gymDialect) normalize(rec records.Record) error {
	if d == gymDialectExternal {
		rename(rec, "external_id", "gym_id")
		rename(rec, "team", "team_id")
		rename(rec, "lat", "latitude")
		rename(rec, "lon", "longitude")
		if err := seconds(rec, "last_modified"); err != nil {
			return err
		}
		return require(rec, "gym_id")
	}

	if err := require(rec, "gym_id"); err != nil {
		return err
	}
	rec["gym_id"] = decodeID(rec["gym_id"])
	return millis(rec, "last_modified", "last_modified")
}

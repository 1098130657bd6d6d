// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package dispatch

import (
	"math"

	"github.com/tomtom215/whrelay/internal/records"
)

// cpMultipliers holds the combat power multiplier for levels 1 to 40.
var cpMultipliers = [...]float64{
	0.094, 0.16639787, 0.21573247, 0.25572005, 0.29024988,
	0.3210876, 0.34921268, 0.37523559, 0.39956728, 0.42250001,
	0.44310755, 0.46279839, 0.48168495, 0.49985844, 0.51739395,
	0.53435433, 0.55079269, 0.56675452, 0.58227891, 0.59740001,
	0.61215729, 0.62656713, 0.64065295, 0.65443563, 0.667934,
	0.68116492, 0.69414365, 0.70688421, 0.71939909, 0.7317,
	0.73776948, 0.74378943, 0.74976104, 0.75568551, 0.76156384,
	0.76739717, 0.7731865, 0.77893275, 0.78463697, 0.79030001,
}

// CPMultiplier returns the multiplier for a level between 1 and 40. Half
// levels sit between their neighbours on the squared scale.
func CPMultiplier(level float64) (float64, bool) {
	if level < 1 || level > float64(len(cpMultipliers)) {
		return 0, false
	}
	whole := math.Floor(level)
	i := int(whole) - 1
	if level == whole {
		return cpMultipliers[i], true
	}
	if level-whole != 0.5 || i+1 >= len(cpMultipliers) {
		return 0, false
	}
	lo, hi := cpMultipliers[i], cpMultipliers[i+1]
	return math.Sqrt((lo*lo + hi*hi) / 2), true
}

// deriveCPMultiplier fills cp_multiplier from pokemon_level when the
// sender did not provide one.
func deriveCPMultiplier(rec records.Record) {
	if rec.Has("cp_multiplier") {
		return
	}
	level, ok := records.Number(rec["pokemon_level"])
	if !ok {
		return
	}
	if cpm, ok := CPMultiplier(level); ok {
		rec["cp_multiplier"] = cpm
	}
}

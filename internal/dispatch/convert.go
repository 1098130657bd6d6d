// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package dispatch

import (
	"encoding/base64"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/tomtom215/whrelay/internal/records"
)

// decodeID returns the base64 decoding of a string id when it is valid
// standard padded base64 of UTF-8 text. Anything else is returned as is.
func decodeID(v any) any {
	s, ok := v.(string)
	if !ok || s == "" {
		return v
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(raw) == 0 || !utf8.Valid(raw) {
		return v
	}
	return string(raw)
}

// seconds replaces rec[field] with the time of its epoch seconds value.
// Absent and null values become null.
func seconds(rec records.Record, field string) error {
	return convertTime(rec, field, field, records.EpochSeconds)
}

// millis stores the time of rec[src] (epoch milliseconds) in rec[dst].
func millis(rec records.Record, src, dst string) error {
	return convertTime(rec, src, dst, records.EpochMillis)
}

func convertTime(rec records.Record, src, dst string, conv func(any) (time.Time, bool)) error {
	v, ok := rec[src]
	if !ok || v == nil {
		rec[dst] = nil
		return nil
	}
	t, ok := conv(v)
	if !ok {
		return fmt.Errorf("%s: not an epoch: %v", src, v)
	}
	rec[dst] = t
	return nil
}

// nullIfZero sets each field holding a numeric zero to null.
func nullIfZero(rec records.Record, fields ...string) {
	for _, f := range fields {
		if v, ok := rec[f]; ok && records.IsZero(v) {
			rec[f] = nil
		}
	}
}

// backfill sets each absent field to null.
func backfill(rec records.Record, fields ...string) {
	for _, f := range fields {
		if _, ok := rec[f]; !ok {
			rec[f] = nil
		}
	}
}

// rename moves rec[from] to rec[to] when from is present.
func rename(rec records.Record, from, to string) {
	if v, ok := rec[from]; ok {
		rec[to] = v
		delete(rec, from)
	}
}

func require(rec records.Record, fields ...string) error {
	for _, f := range fields {
		if !rec.Has(f) {
			return fmt.Errorf("%w: %s", ErrMissingField, f)
		}
	}
	return nil
}

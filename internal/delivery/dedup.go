// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package delivery

import (
	"github.com/tomtom215/whrelay/internal/cache"
	"github.com/tomtom215/whrelay/internal/metrics"
	"github.com/tomtom215/whrelay/internal/records"
)

// Outcome is the deduper's verdict on one message.
type Outcome int

const (
	// Passthrough messages have no cache for their kind or no identity.
	Passthrough Outcome = iota
	// Sent messages are new or changed.
	Sent
	// Suppressed messages repeat the cached significant fields.
	Suppressed
)

func (o Outcome) String() string {
	switch o {
	case Sent:
		return "sent"
	case Suppressed:
		return "suppressed"
	default:
		return "passthrough"
	}
}

// Forward reports whether the message belongs in the frame.
func (o Outcome) Forward() bool {
	return o != Suppressed
}

// Deduper holds one bounded LFU cache per kind with a delivery identity.
// It is safe for concurrent use; each cache serializes its own updates.
type Deduper struct {
	caches map[records.Kind]*cache.LFU[records.Record]
}

// NewDeduper creates caches of size entries for every inbound kind that
// declares a delivery identity.
func NewDeduper(size int) *Deduper {
	d := &Deduper{caches: make(map[records.Kind]*cache.LFU[records.Record])}
	for _, kind := range records.Inbound() {
		schema, ok := records.Lookup(kind)
		if !ok || len(schema.DeliveryIdentity) == 0 {
			continue
		}
		d.caches[kind] = cache.NewLFU[records.Record](size)
	}
	return d
}

// Offer decides whether rec is forwarded. A cached identity always counts
// as an access, whether or not the message is suppressed.
func (d *Deduper) Offer(kind records.Kind, rec records.Record) Outcome {
	outcome := d.offer(kind, rec)
	metrics.DeliveryRecords.WithLabelValues(outcome.String()).Inc()
	return outcome
}

func (d *Deduper) offer(kind records.Kind, rec records.Record) Outcome {
	c, ok := d.caches[kind]
	if !ok {
		return Passthrough
	}
	schema := records.MustLookup(kind)
	key, ok := schema.DeliveryKey(rec)
	if !ok {
		return Passthrough
	}

	changed := c.Observe(key, rec, func(old, cur records.Record) bool {
		return !schema.SignificantEqual(old, cur)
	})
	metrics.DedupCacheSize.WithLabelValues(string(kind)).Set(float64(c.Stats().Size))
	if changed {
		return Sent
	}
	return Suppressed
}

// Len returns the number of cached identities for kind.
func (d *Deduper) Len(kind records.Kind) int {
	if c, ok := d.caches[kind]; ok {
		return c.Len()
	}
	return 0
}

// cached reports whether kind has a cache.
func (d *Deduper) cached(kind records.Kind) bool {
	_, ok := d.caches[kind]
	return ok
}

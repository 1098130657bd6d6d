// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package delivery

import (
	"time"

	"github.com/tomtom215/whrelay/internal/records"
)

// FrameEntry is one message in a frame, in the outbound wire format.
type FrameEntry struct {
	Type    records.Kind   `json:"type" msgpack:"type"`
	Message records.Record `json:"message" msgpack:"message"`
}

// Frame is an ordered batch of entries sent in one request per endpoint.
type Frame []FrameEntry

// Batcher accumulates a frame and decides when it is due. The clock starts
// when the first entry lands in an empty frame and is not moved by later
// entries. A Batcher is owned by one goroutine.
type Batcher struct {
	interval time.Duration
	entries  Frame
	firstAt  time.Time
}

// NewBatcher creates a batcher flushing interval after the first entry.
func NewBatcher(interval time.Duration) *Batcher {
	return &Batcher{interval: interval}
}

// Add appends an entry.
func (b *Batcher) Add(e FrameEntry, now time.Time) {
	if len(b.entries) == 0 {
		b.firstAt = now
	}
	b.entries = append(b.entries, e)
}

// Len returns the number of pending entries.
func (b *Batcher) Len() int {
	return len(b.entries)
}

// Due reports whether the frame is non-empty and older than the interval.
func (b *Batcher) Due(now time.Time) bool {
	return len(b.entries) > 0 && now.Sub(b.firstAt) > b.interval
}

// Remaining returns how long until the frame is due, or zero when empty.
func (b *Batcher) Remaining(now time.Time) time.Duration {
	if len(b.entries) == 0 {
		return 0
	}
	left := b.interval - now.Sub(b.firstAt)
	if left < time.Millisecond {
		left = time.Millisecond
	}
	return left
}

// Take returns the pending frame and starts a new one.
func (b *Batcher) Take() Frame {
	f := b.entries
	b.entries = nil
	b.firstAt = time.Time{}
	return f
}

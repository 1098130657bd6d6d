// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package stats

import "github.com/tomtom215/whrelay/internal/records"

// Name identifies one counter.
type Name string

const (
	PostSuccess   Name = "post_success"
	PostFail      Name = "post_fails"
	Received      Name = "received"
	Ignored       Name = "ignored"
	Errors        Name = "errors"
	DroppedBodies Name = "dropped_bodies"
	IntakeMax     Name = "intake_queue_max"
	DBQueueMax    Name = "db_queue_max"
	WHQueueMax    Name = "wh_queue_max"
	Sent          Name = "delivery_sent"
	Suppressed    Name = "delivery_suppressed"
	Failed        Name = "delivery_failed"
)

// maxima are gauges that keep the largest value seen instead of a sum.
var maxima = map[Name]bool{
	IntakeMax:  true,
	DBQueueMax: true,
	WHQueueMax: true,
}

// Event is one counter update.
type Event struct {
	Name  Name
	Kind  records.Kind
	Value int64
}

// Inc is an Event adding one to name.
func Inc(name Name) Event {
	return Event{Name: name, Value: 1}
}

// Add is an Event adding n to name.
func Add(name Name, n int) Event {
	return Event{Name: name, Value: int64(n)}
}

// Kind is an Event counting one received envelope of kind.
func Kind(kind records.Kind) Event {
	return Event{Name: Received, Kind: kind, Value: 1}
}

// Max is an Event raising the maximum tracked by name to v.
func Max(name Name, v int) Event {
	return Event{Name: name, Value: int64(v)}
}

// Recorder accepts events. Implementations must not block.
type Recorder interface {
	Record(Event)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(Event)

// Record calls f(e).
func (f RecorderFunc) Record(e Event) { f(e) }

// Discard drops every event.
var Discard Recorder = RecorderFunc(func(Event) {})

// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package delivery

import "context"

// Sink receives every published frame. Publish must not block on slow
// subscribers; a sink that does network I/O hands the frame off and
// returns.
type Sink interface {
	Name() string
	Publish(ctx context.Context, frame Frame) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc struct {
	SinkName string
	Fn       func(ctx context.Context, frame Frame) error
}

// Name returns the sink name.
func (s SinkFunc) Name() string { return s.SinkName }

// Publish calls Fn.
func (s SinkFunc) Publish(ctx context.Context, frame Frame) error { return s.Fn(ctx, frame) }

// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package backpressure

import (
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/whrelay/internal/metrics"
)

// BacklogWarner warns at most once per second while depth exceeds a fixed
// threshold. It is safe for concurrent use by a worker pool.
type BacklogWarner struct {
	queue     string
	threshold int
	advice    string
	logger    zerolog.Logger
	sometimes rate.Sometimes
}

// NewBacklogWarner creates a warner for queue.
func NewBacklogWarner(queue string, threshold int, advice string, logger zerolog.Logger) *BacklogWarner {
	return &BacklogWarner{
		queue:     queue,
		threshold: threshold,
		advice:    advice,
		logger:    logger,
		sometimes: rate.Sometimes{Interval: time.Second},
	}
}

// Sample reports whether depth produced a warning.
func (b *BacklogWarner) Sample(depth int) bool {
	if depth <= b.threshold {
		return false
	}
	warned := false
	b.sometimes.Do(func() {
		warned = true
		metrics.BackpressureWarnings.WithLabelValues(b.queue).Inc()
		b.logger.Warn().
			Str("queue", b.queue).
			Int("depth", depth).
			Msgf("Queue is over %d, %s", b.threshold, b.advice)
	})
	return warned
}

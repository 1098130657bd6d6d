// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package backpressure

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/whrelay/internal/metrics"
)

// Monitor tracks how long one queue has been over its warning threshold.
type Monitor struct {
	queue     string
	threshold int
	lifetime  time.Duration
	advice    string
	logger    zerolog.Logger

	mu        sync.Mutex
	over      bool
	overSince time.Time
	sometimes rate.Sometimes
}

// NewMonitor creates a monitor for queue. Warnings repeat at most once per
// lifetime while the queue stays over threshold.
func NewMonitor(queue string, threshold int, lifetime time.Duration, advice string, logger zerolog.Logger) *Monitor {
	if lifetime <= 0 {
		lifetime = 5 * time.Second
	}
	return &Monitor{
		queue:     queue,
		threshold: threshold,
		lifetime:  lifetime,
		advice:    advice,
		logger:    logger,
		sometimes: rate.Sometimes{Interval: lifetime},
	}
}

// Sample records the depth seen at now and reports whether a warning was
// emitted.
func (m *Monitor) Sample(depth int, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case !m.over && depth > m.threshold:
		m.over = true
		m.overSince = now
		return false
	case m.over && depth < m.threshold:
		m.over = false
		return false
	case !m.over:
		return false
	}

	if now.Sub(m.overSince) <= m.lifetime {
		return false
	}

	warned := false
	m.sometimes.Do(func() {
		warned = true
		metrics.BackpressureWarnings.WithLabelValues(m.queue).Inc()
		m.logger.Warn().
			Str("queue", m.queue).
			Int("depth", depth).
			Int("threshold", m.threshold).
			Dur("over_for", now.Sub(m.overSince)).
			Msgf("Queue has been over %d for more than %s, %s", m.threshold, m.lifetime, m.advice)
	})
	return warned
}

// overThreshold reports whether the queue is currently tracked as over
// threshold.
func (m *Monitor) overThreshold() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.over
}

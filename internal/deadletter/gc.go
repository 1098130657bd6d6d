// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package deadletter

import (
	"context"
	"time"
)

const (
	DefaultGCInterval = 10 * time.Minute
	gcRatio           = 0.5
)

// GC runs value log garbage collection on a Store periodically. It
// implements suture.Service.
type GC struct {
	store    *Store
	interval time.Duration
}

// NewGC creates a collector for store. A non-positive interval uses
// DefaultGCInterval.
func NewGC(store *Store, interval time.Duration) *GC {
	if interval <= 0 {
		interval = DefaultGCInterval
	}
	return &GC{store: store, interval: interval}
}

// Serve runs until ctx is done.
func (g *GC) Serve(ctx context.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			if err := g.store.RunGC(gcRatio); err != nil {
				g.store.logger.Warn().Err(err).Msg("Dead-letter GC failed")
				continue
			}
			g.store.logger.Debug().Dur("took", time.Since(start)).Msg("Dead-letter GC finished")
		}
	}
}

func (g *GC) String() string {
	return "deadletter-gc"
}

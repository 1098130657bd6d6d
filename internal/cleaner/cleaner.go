// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

// Package cleaner runs periodic database maintenance: expired lures are
// unflagged and, when configured, old pokemon sightings are purged.
package cleaner

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/whrelay/internal/config"
	"github.com/tomtom215/whrelay/internal/logging"
	"github.com/tomtom215/whrelay/internal/metrics"
)

const (
	DefaultInitialDelay = 15 * time.Second
	DefaultInterval     = 60 * time.Second
)

// Store is the maintenance surface of the database.
type Store interface {
	UnflagExpiredLures(ctx context.Context, now time.Time) (int64, error)
	PurgePokemon(ctx context.Context, cutoff time.Time) (int64, error)
}

// Cleaner implements suture.Service.
type Cleaner struct {
	store        Store
	initialDelay time.Duration
	interval     time.Duration
	purgeAge     time.Duration
	logger       zerolog.Logger
	now          func() time.Time
}

// New creates a cleaner from cfg.
func New(cfg config.CleanerConfig, store Store) *Cleaner {
	c := &Cleaner{
		store:        store,
		initialDelay: cfg.InitialDelay,
		interval:     cfg.Interval,
		purgeAge:     time.Duration(cfg.PurgeHours) * time.Hour,
		logger:       logging.WithComponent("cleaner"),
		now:          time.Now,
	}
	if c.initialDelay < 0 {
		c.initialDelay = DefaultInitialDelay
	}
	if c.interval <= 0 {
		c.interval = DefaultInterval
	}
	return c
}

// Serve waits the initial delay, then cleans every interval until ctx is
// done. Failed passes are logged and do not stop the loop.
func (c *Cleaner) Serve(ctx context.Context) error {
	if c.initialDelay > 0 {
		timer := time.NewTimer(c.initialDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		c.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Cleaner) String() string {
	return "db-cleaner"
}

// RunOnce performs one maintenance pass.
func (c *Cleaner) RunOnce(ctx context.Context) {
	now := c.now()

	n, err := c.store.UnflagExpiredLures(ctx, now)
	switch {
	case err != nil:
		c.logger.Error().Err(err).Msg("Failed to unflag expired lures")
	case n > 0:
		metrics.CleanerRows.WithLabelValues("unflag_lures").Add(float64(n))
		c.logger.Debug().Int64("rows", n).Msg("Unflagged expired lures")
	}

	if c.purgeAge <= 0 {
		return
	}
	n, err = c.store.PurgePokemon(ctx, now.Add(-c.purgeAge))
	switch {
	case err != nil:
		c.logger.Error().Err(err).Msg("Failed to purge old pokemon")
	case n > 0:
		metrics.CleanerRows.WithLabelValues("purge_pokemon").Add(float64(n))
		c.logger.Info().Int64("rows", n).Int("purge_hours", int(c.purgeAge/time.Hour)).Msg("Purged old pokemon")
	}
}

// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package stats

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/whrelay/internal/auth"
	"github.com/tomtom215/whrelay/internal/logging"
	"github.com/tomtom215/whrelay/internal/metrics"
	"github.com/tomtom215/whrelay/internal/records"
)

// DefaultBuffer is the inbox size used when Config.Buffer is zero.
const DefaultBuffer = 4096

// TokenUsage provides the per-token request counts for the report.
type TokenUsage interface {
	Snapshot() auth.Snapshot
}

// Config configures an Aggregator.
type Config struct {
	// Interval between reports. Zero disables the periodic report; events
	// are still aggregated for Snapshot.
	Interval time.Duration
	Buffer   int
}

// Snapshot is a copy of the aggregated counters.
type Snapshot struct {
	Started           time.Time              `json:"started"`
	Uptime            string                 `json:"uptime"`
	PostSuccess       int64                  `json:"post_success"`
	PostFails         int64                  `json:"post_fails"`
	RequestsPerMinute float64                `json:"requests_per_minute"`
	Kinds             map[records.Kind]int64 `json:"kinds"`
	Ignored           int64                  `json:"ignored"`
	Errors            int64                  `json:"errors"`
	DroppedBodies     int64                  `json:"dropped_bodies"`
	IntakeMax         int64                  `json:"intake_queue_max"`
	DBQueueMax        int64                  `json:"db_queue_max"`
	WHQueueMax        int64                  `json:"wh_queue_max"`
	Sent              int64                  `json:"delivery_sent"`
	Suppressed        int64                  `json:"delivery_suppressed"`
	Failed            int64                  `json:"delivery_failed"`
	EventsDropped     int64                  `json:"events_dropped"`
	Tokens            []auth.TokenUsage      `json:"tokens"`
}

// Aggregator owns the counters. It implements Recorder and suture.Service.
type Aggregator struct {
	events   chan Event
	requests chan chan Snapshot
	dropped  atomic.Int64

	interval time.Duration
	tokens   TokenUsage
	logger   zerolog.Logger
	started  time.Time

	// Owned by the Serve goroutine.
	counters map[Name]int64
	kinds    map[records.Kind]int64
}

// NewAggregator creates an aggregator. tokens may be nil.
func NewAggregator(cfg Config, tokens TokenUsage) *Aggregator {
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	return &Aggregator{
		events:   make(chan Event, cfg.Buffer),
		requests: make(chan chan Snapshot),
		interval: cfg.Interval,
		tokens:   tokens,
		logger:   logging.WithComponent("stats"),
		started:  time.Now(),
		counters: make(map[Name]int64),
		kinds:    make(map[records.Kind]int64),
	}
}

// Record queues e without blocking. A full inbox drops the event.
func (a *Aggregator) Record(e Event) {
	select {
	case a.events <- e:
	default:
		a.dropped.Add(1)
		metrics.StatsEventsDropped.Inc()
	}
}

// Dropped returns the number of events lost to a full inbox.
func (a *Aggregator) Dropped() int64 {
	return a.dropped.Load()
}

// Snapshot asks the aggregator goroutine for a copy of its state. It blocks
// until Serve answers or ctx is done.
func (a *Aggregator) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	select {
	case a.requests <- reply:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Serve aggregates events until ctx is done.
func (a *Aggregator) Serve(ctx context.Context) error {
	var tick <-chan time.Time
	if a.interval > 0 {
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-a.events:
			a.apply(e)
		case reply := <-a.requests:
			a.drain()
			reply <- a.snapshot(time.Now())
		case now := <-tick:
			a.drain()
			a.report(a.snapshot(now))
		}
	}
}

func (a *Aggregator) String() string {
	return "stats-aggregator"
}

// drain applies events already queued so a snapshot reflects everything
// recorded before it was requested.
func (a *Aggregator) drain() {
	for {
		select {
		case e := <-a.events:
			a.apply(e)
		default:
			return
		}
	}
}

func (a *Aggregator) apply(e Event) {
	if e.Name == Received {
		a.kinds[e.Kind] += e.Value
		return
	}
	if maxima[e.Name] {
		if e.Value > a.counters[e.Name] {
			a.counters[e.Name] = e.Value
		}
		return
	}
	a.counters[e.Name] += e.Value
}

func (a *Aggregator) snapshot(now time.Time) Snapshot {
	s := Snapshot{
		Started:       a.started,
		Uptime:        now.Sub(a.started).Truncate(time.Second).String(),
		PostSuccess:   a.counters[PostSuccess],
		PostFails:     a.counters[PostFail],
		Kinds:         make(map[records.Kind]int64, len(a.kinds)),
		Ignored:       a.counters[Ignored],
		Errors:        a.counters[Errors],
		DroppedBodies: a.counters[DroppedBodies],
		IntakeMax:     a.counters[IntakeMax],
		DBQueueMax:    a.counters[DBQueueMax],
		WHQueueMax:    a.counters[WHQueueMax],
		Sent:          a.counters[Sent],
		Suppressed:    a.counters[Suppressed],
		Failed:        a.counters[Failed],
		EventsDropped: a.dropped.Load(),
	}
	for k, v := range a.kinds {
		s.Kinds[k] = v
	}
	if minutes := now.Sub(a.started).Minutes(); minutes > 0 {
		s.RequestsPerMinute = float64(s.PostSuccess+s.PostFails) / minutes
	}
	if a.tokens != nil {
		s.Tokens = a.tokens.Snapshot().Tokens
	}
	return s
}

func (a *Aggregator) report(s Snapshot) {
	kinds := zerolog.Dict()
	names := make([]string, 0, len(s.Kinds))
	for k := range s.Kinds {
		names = append(names, string(k))
	}
	sort.Strings(names)
	for _, k := range names {
		kinds.Int64(k, s.Kinds[records.Kind(k)])
	}

	tokens := zerolog.Dict()
	for _, t := range s.Tokens {
		tokens.Int64(t.Name, t.Requests)
	}

	a.logger.Info().
		Str("uptime", s.Uptime).
		Int64("post_success", s.PostSuccess).
		Int64("post_fails", s.PostFails).
		Float64("requests_per_minute", s.RequestsPerMinute).
		Dict("received", kinds).
		Int64("ignored", s.Ignored).
		Int64("errors", s.Errors).
		Int64("dropped_bodies", s.DroppedBodies).
		Int64("intake_queue_max", s.IntakeMax).
		Int64("db_queue_max", s.DBQueueMax).
		Int64("wh_queue_max", s.WHQueueMax).
		Int64("delivery_sent", s.Sent).
		Int64("delivery_suppressed", s.Suppressed).
		Int64("delivery_failed", s.Failed).
		Dict("tokens", tokens).
		Msg("Runtime Statistics")
}

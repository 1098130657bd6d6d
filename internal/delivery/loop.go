// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/whrelay/internal/backpressure"
	"github.com/tomtom215/whrelay/internal/logging"
	"github.com/tomtom215/whrelay/internal/metrics"
	"github.com/tomtom215/whrelay/internal/queue"
	"github.com/tomtom215/whrelay/internal/stats"
)

const (
	DefaultFrameInterval     = 500 * time.Millisecond
	DefaultWarningThreshold  = 100
	DefaultThresholdLifetime = 5 * time.Second

	backlogAdvice = "try increasing webhook.concurrency or webhook.threads"

	shutdownPublishTimeout = 5 * time.Second
)

// LoopConfig configures the delivery loops.
type LoopConfig struct {
	Threads           int
	FrameInterval     time.Duration
	WarningThreshold  int
	ThresholdLifetime time.Duration
}

// Loops builds cfg.Threads loops sharing q, the deduper, the sinks and one
// backpressure monitor.
func Loops(cfg LoopConfig, q *queue.Queue[Item], deduper *Deduper, sinks []Sink, rec stats.Recorder) []*Loop {
	if cfg.Threads < 1 {
		cfg.Threads = 1
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultFrameInterval
	}
	if cfg.WarningThreshold < 1 {
		cfg.WarningThreshold = DefaultWarningThreshold
	}
	if cfg.ThresholdLifetime <= 0 {
		cfg.ThresholdLifetime = DefaultThresholdLifetime
	}
	if rec == nil {
		rec = stats.Discard
	}

	logger := logging.WithComponent("delivery")
	monitor := backpressure.NewMonitor(q.Name(), cfg.WarningThreshold, cfg.ThresholdLifetime, backlogAdvice, logger)

	loops := make([]*Loop, cfg.Threads)
	for i := range loops {
		loops[i] = &Loop{
			id:      i,
			queue:   q,
			deduper: deduper,
			sinks:   sinks,
			batcher: NewBatcher(cfg.FrameInterval),
			monitor: monitor,
			stats:   rec,
			logger:  logger.With().Int("loop", i).Logger(),
			now:     time.Now,
		}
	}
	return loops
}

// Loop drains the Delivery Queue into frames. It implements suture.Service.
type Loop struct {
	id      int
	queue   *queue.Queue[Item]
	deduper *Deduper
	sinks   []Sink
	batcher *Batcher
	monitor *backpressure.Monitor
	stats   stats.Recorder
	logger  zerolog.Logger
	now     func() time.Time
}

// Serve runs until ctx is done or the queue is closed and drained. A
// pending frame is published before returning.
func (l *Loop) Serve(ctx context.Context) error {
	defer l.flushOnExit(ctx)

	for {
		item, ok, err := l.queue.GetTimeout(ctx, l.batcher.Remaining(l.now()))
		if errors.Is(err, queue.ErrClosed) {
			l.logger.Debug().Msg("Delivery queue closed, loop exiting")
			return suture.ErrDoNotRestart
		}
		if err != nil {
			return err
		}

		if ok {
			l.offer(item)
			l.sample()
		}

		if now := l.now(); l.batcher.Due(now) {
			l.publish(ctx, l.batcher.Take())
		}
	}
}

func (l *Loop) String() string {
	return fmt.Sprintf("delivery-%d", l.id)
}

func (l *Loop) offer(item Item) {
	outcome := l.deduper.Offer(item.Kind, item.dedupView())
	switch outcome {
	case Suppressed:
		l.stats.Record(stats.Inc(stats.Suppressed))
		return
	default:
		l.stats.Record(stats.Inc(stats.Sent))
	}
	l.batcher.Add(FrameEntry{Type: item.Kind, Message: item.Record}, l.now())
}

func (l *Loop) sample() {
	depth := l.queue.Len()
	if max, isNew := l.queue.ObserveMax(); isNew {
		l.stats.Record(stats.Max(stats.WHQueueMax, max))
	}
	metrics.RecordQueueDepth(l.queue.Name(), depth)
	l.monitor.Sample(depth, l.now())
}

// publish hands frame to every sink. A failing sink does not stop the others.
func (l *Loop) publish(ctx context.Context, frame Frame) {
	if len(frame) == 0 {
		return
	}
	for _, sink := range l.sinks {
		if err := sink.Publish(ctx, frame); err != nil {
			l.stats.Record(stats.Inc(stats.Errors))
			l.logger.Error().Err(err).Str("sink", sink.Name()).Int("entries", len(frame)).Msg("Failed to publish frame")
		}
	}
	l.logger.Trace().Int("entries", len(frame)).Msg("Frame published")
}

func (l *Loop) flushOnExit(ctx context.Context) {
	if l.batcher.Len() == 0 {
		return
	}
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownPublishTimeout)
	defer cancel()
	l.publish(flushCtx, l.batcher.Take())
}

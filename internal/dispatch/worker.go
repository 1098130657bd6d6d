// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/whrelay/internal/backpressure"
	"github.com/tomtom215/whrelay/internal/delivery"
	"github.com/tomtom215/whrelay/internal/logging"
	"github.com/tomtom215/whrelay/internal/metrics"
	"github.com/tomtom215/whrelay/internal/queue"
	"github.com/tomtom215/whrelay/internal/records"
	"github.com/tomtom215/whrelay/internal/stats"
	"github.com/tomtom215/whrelay/internal/writer"
)

// DefaultIdleFlush is how long a partial batch may wait for more rows.
const DefaultIdleFlush = time.Second

// shutdownFlushTimeout bounds the final flush once the worker is stopping.
const shutdownFlushTimeout = 5 * time.Second

const intakeAdvice = "try increasing dispatch.threads"

// Config configures a Pool.
type Config struct {
	Threads int

	// BatchSize is the number of sightings collected before a flush.
	// Other kinds are flushed after every envelope.
	BatchSize int

	IdleFlush time.Duration

	// WarningThreshold and ThresholdLifetime drive the intake backpressure
	// warning. A zero threshold disables it.
	WarningThreshold  int
	ThresholdLifetime time.Duration
}

// Queues are the queues a worker reads from and writes to. Delivery is nil
// when no delivery sink is configured.
type Queues struct {
	Intake   *queue.Queue[Body]
	Storage  *queue.Queue[writer.Item]
	Delivery *queue.Queue[delivery.Item]
}

// Pool owns the dispatch workers sharing one Intake Queue.
type Pool struct {
	workers []*Worker
}

// NewPool creates cfg.Threads workers.
func NewPool(cfg Config, queues Queues, decoder *Decoder, registry *Registry, rec stats.Recorder) *Pool {
	if cfg.Threads < 1 {
		cfg.Threads = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.IdleFlush <= 0 {
		cfg.IdleFlush = DefaultIdleFlush
	}
	if rec == nil {
		rec = stats.Discard
	}

	logger := logging.WithComponent("dispatch")
	var monitor *backpressure.Monitor
	if cfg.WarningThreshold > 0 {
		monitor = backpressure.NewMonitor(queues.Intake.Name(), cfg.WarningThreshold, cfg.ThresholdLifetime, intakeAdvice, logger)
	}
	p := &Pool{workers: make([]*Worker, cfg.Threads)}
	for i := range p.workers {
		p.workers[i] = &Worker{
			id:        i,
			queues:    queues,
			decoder:   decoder,
			registry:  registry,
			monitor:   monitor,
			stats:     rec,
			batchSize: cfg.BatchSize,
			idleFlush: cfg.IdleFlush,
			batches:   make(map[records.Kind]map[string]records.Record),
			logger:    logger.With().Int("worker", i).Logger(),
			now:       time.Now,
		}
	}
	return p
}

// Services returns the workers for the supervisor tree.
func (p *Pool) Services() []suture.Service {
	out := make([]suture.Service, len(p.workers))
	for i, w := range p.workers {
		out[i] = w
	}
	return out
}

// Worker decodes and normalizes intake bodies. It implements
// suture.Service. A worker's batches are only touched by its own Serve
// goroutine.
type Worker struct {
	id        int
	queues    Queues
	decoder   *Decoder
	registry  *Registry
	monitor   *backpressure.Monitor
	stats     stats.Recorder
	batchSize int
	idleFlush time.Duration
	batches   map[records.Kind]map[string]records.Record
	logger    zerolog.Logger
	now       func() time.Time
}

// Serve processes bodies until ctx is done or the intake queue is closed
// and drained. Pending batches are flushed before returning.
func (w *Worker) Serve(ctx context.Context) error {
	defer w.flushOnExit(ctx)

	for {
		var wait time.Duration
		if w.pending() {
			wait = w.idleFlush
		}

		body, ok, err := w.queues.Intake.GetTimeout(ctx, wait)
		if errors.Is(err, queue.ErrClosed) {
			w.logger.Debug().Msg("Intake queue closed, dispatch worker exiting")
			return suture.ErrDoNotRestart
		}
		if err != nil {
			return err
		}
		if !ok {
			if err := w.flushAll(ctx); err != nil {
				return err
			}
			continue
		}

		if err := w.handleBody(ctx, body); err != nil {
			return err
		}
		w.sample()
	}
}

// sample reports intake depth after each body.
func (w *Worker) sample() {
	depth := w.queues.Intake.Len()
	if max, isNew := w.queues.Intake.ObserveMax(); isNew {
		w.stats.Record(stats.Max(stats.IntakeMax, max))
	}
	metrics.RecordQueueDepth(w.queues.Intake.Name(), depth)
	if w.monitor != nil {
		w.monitor.Sample(depth, w.now())
	}
}

func (w *Worker) String() string {
	return fmt.Sprintf("dispatch-%d", w.id)
}

// handleBody processes every envelope of body in order, flushing a batch
// as soon as it is full. It returns an error only when ctx ended while
// queueing.
func (w *Worker) handleBody(ctx context.Context, body Body) error {
	envs, err := w.decoder.Decode(body.Data)
	if err != nil {
		metrics.DroppedBodies.Inc()
		w.stats.Record(stats.Inc(stats.DroppedBodies))
		w.logger.Warn().
			Err(err).
			Str("source", body.Source).
			Int("bytes", len(body.Data)).
			Msg("Dropping undecodable body")
		return nil
	}

	for _, env := range envs {
		if err := w.handleEnvelope(ctx, env); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			metrics.RecordRecord(string(env.Type), "error")
			w.stats.Record(stats.Inc(stats.Errors))
			w.logger.Error().
				Err(err).
				Str("kind", string(env.Type)).
				Str("source", body.Source).
				Msg("Failed to process envelope")
		}
		if err := w.flushFull(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) flushFull(ctx context.Context) error {
	for kind, batch := range w.batches {
		if len(batch) >= w.limit(kind) {
			if err := w.flush(ctx, kind); err != nil {
				return err
			}
		}
	}
	return nil
}

// handleEnvelope normalizes one envelope and queues its work. A panic in
// a handler is returned as an error.
func (w *Worker) handleEnvelope(ctx context.Context, env Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while handling %s: %v", env.Type, r)
		}
	}()

	h, ok := w.registry.Lookup(env.Type)
	if !ok {
		metrics.RecordRecord(string(env.Type), "unknown")
		w.stats.Record(stats.Inc(stats.Ignored))
		w.logger.Warn().Str("kind", string(env.Type)).Msg("Received unhandled webhook type")
		return nil
	}

	w.stats.Record(stats.Kind(env.Type))
	if env.Message == nil {
		return fmt.Errorf("%w: message", ErrMissingField)
	}

	now := w.now().UTC()
	res, err := h.Normalize(env.Message, now)
	if err != nil {
		return err
	}
	switch {
	case res.Skipped:
		metrics.RecordRecord(string(env.Type), "disabled")
		return nil
	case res.Ignored:
		metrics.RecordRecord(string(env.Type), "ignored")
		w.stats.Record(stats.Inc(stats.Ignored))
		return nil
	}

	rows, roster, err := prepare(res, now)
	if err != nil {
		return err
	}

	for _, row := range rows {
		w.add(row)
	}
	if roster != nil {
		item := writer.Item{Kind: records.KindGymMember, Roster: roster}
		if err := w.queues.Storage.Put(ctx, item); err != nil {
			return err
		}
	}
	if w.queues.Delivery != nil && res.Delivery != nil {
		if err := w.queues.Delivery.Put(ctx, delivery.Item{Kind: env.Type, Record: res.Delivery, View: res.DeliveryView}); err != nil {
			return err
		}
	}

	metrics.RecordRecord(string(env.Type), "ok")
	w.logger.Trace().Str("kind", string(env.Type)).Int("rows", len(rows)).Msg("Processed envelope")
	return nil
}

// preparedRow is a row projected to its schema with its identity.
type preparedRow struct {
	kind     records.Kind
	identity string
	record   records.Record
}

// prepare projects every row of res before anything is queued, so one bad
// row drops the whole envelope.
func prepare(res Result, now time.Time) ([]preparedRow, *writer.RosterReplace, error) {
	rows := make([]preparedRow, 0, len(res.Rows))
	for _, row := range res.Rows {
		schema, ok := records.Lookup(row.Kind)
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrUnknownKind, row.Kind)
		}
		rec, err := schema.Prepare(row.Record, now)
		if err != nil {
			return nil, nil, err
		}
		id, _ := schema.IdentityOf(rec)
		rows = append(rows, preparedRow{kind: row.Kind, identity: id, record: rec})
	}

	if res.Roster == nil {
		return rows, nil, nil
	}
	schema := records.MustLookup(records.KindGymMember)
	roster := &writer.RosterReplace{GymID: res.Roster.GymID, Members: make([]records.Record, 0, len(res.Roster.Members))}
	for _, m := range res.Roster.Members {
		rec, err := schema.Prepare(m, now)
		if err != nil {
			return nil, nil, err
		}
		roster.Members = append(roster.Members, rec)
	}
	return rows, roster, nil
}

func (w *Worker) add(row preparedRow) {
	batch, ok := w.batches[row.kind]
	if !ok {
		batch = make(map[string]records.Record)
		w.batches[row.kind] = batch
	}
	batch[row.identity] = row.record
}

func (w *Worker) limit(kind records.Kind) int {
	if kind == records.KindPokemon {
		return w.batchSize
	}
	return 1
}

func (w *Worker) pending() bool {
	for _, b := range w.batches {
		if len(b) > 0 {
			return true
		}
	}
	return false
}

func (w *Worker) flush(ctx context.Context, kind records.Kind) error {
	batch := w.batches[kind]
	if len(batch) == 0 {
		return nil
	}
	if err := w.queues.Storage.Put(ctx, writer.Item{Kind: kind, Rows: batch}); err != nil {
		return err
	}
	delete(w.batches, kind)
	return nil
}

func (w *Worker) flushAll(ctx context.Context) error {
	for kind := range w.batches {
		if err := w.flush(ctx, kind); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) flushOnExit(ctx context.Context) {
	if !w.pending() {
		return
	}
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownFlushTimeout)
	defer cancel()
	if err := w.flushAll(flushCtx); err != nil {
		w.logger.Warn().Err(err).Msg("Dropping partial batches on shutdown")
	}
}

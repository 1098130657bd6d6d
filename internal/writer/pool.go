// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package writer

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/whrelay/internal/backpressure"
	"github.com/tomtom215/whrelay/internal/logging"
	"github.com/tomtom215/whrelay/internal/queue"
	"github.com/tomtom215/whrelay/internal/records"
	"github.com/tomtom215/whrelay/internal/stats"
)

// DefaultBacklogWarning is the depth above which writers ask for more threads.
const DefaultBacklogWarning = 50

const backlogAdvice = "try increasing database.threads"

// Config configures a Pool.
type Config struct {
	Threads        int
	BacklogWarning int
}

// Pool owns the writer workers sharing one Storage Queue.
type Pool struct {
	workers []*Worker
}

// NewPool creates cfg.Threads workers reading from q.
func NewPool(cfg Config, q *queue.Queue[Item], store Store, rec stats.Recorder) *Pool {
	if cfg.Threads < 1 {
		cfg.Threads = 1
	}
	if cfg.BacklogWarning < 1 {
		cfg.BacklogWarning = DefaultBacklogWarning
	}
	if rec == nil {
		rec = stats.Discard
	}

	logger := logging.WithComponent("writer")
	warner := backpressure.NewBacklogWarner(q.Name(), cfg.BacklogWarning, backlogAdvice, logger)

	p := &Pool{workers: make([]*Worker, cfg.Threads)}
	for i := range p.workers {
		p.workers[i] = &Worker{
			id:     i,
			queue:  q,
			store:  store,
			stats:  rec,
			warner: warner,
			logger: logger.With().Int("worker", i).Logger(),
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

// Worker writes Storage Queue items. It implements suture.Service.
type Worker struct {
	id     int
	queue  *queue.Queue[Item]
	store  Store
	stats  stats.Recorder
	warner *backpressure.BacklogWarner
	logger zerolog.Logger
}

// Serve processes items until ctx is done or the queue is closed and empty.
func (w *Worker) Serve(ctx context.Context) error {
	for {
		item, err := w.queue.Get(ctx)
		if errors.Is(err, queue.ErrClosed) {
			w.logger.Debug().Msg("Storage queue closed, writer exiting")
			return suture.ErrDoNotRestart
		}
		if err != nil {
			return err
		}

		if err := w.write(ctx, item); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.stats.Record(stats.Inc(stats.Errors))
			w.logger.Error().Err(err).Str("kind", string(item.Kind)).Int("rows", item.Len()).Msg("Storage write failed")
		}
		w.sample()
	}
}

func (w *Worker) String() string {
	return fmt.Sprintf("writer-%d", w.id)
}

func (w *Worker) write(ctx context.Context, item Item) error {
	if item.Roster != nil {
		return w.store.ReplaceRoster(ctx, item.Roster.GymID, item.Roster.Members)
	}
	if len(item.Rows) == 0 {
		return nil
	}

	schema, ok := records.Lookup(item.Kind)
	if !ok {
		return fmt.Errorf("no schema for kind %q", item.Kind)
	}
	rows := make([]records.Record, 0, len(item.Rows))
	for _, r := range item.Rows {
		rows = append(rows, r)
	}

	res, err := w.store.Upsert(ctx, schema, rows)
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		w.stats.Record(stats.Add(stats.Errors, res.Failed))
	}
	w.logger.Trace().
		Str("table", schema.Table).
		Int("rows", res.Rows).
		Int("chunks", res.Chunks).
		Int("failed", res.Failed).
		Msg("Batch written")
	return nil
}

func (w *Worker) sample() {
	if max, isNew := w.queue.ObserveMax(); isNew {
		w.stats.Record(stats.Max(stats.DBQueueMax, max))
	}
	w.warner.Sample(w.queue.Len())
}

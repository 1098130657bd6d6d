// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/whrelay/internal/config"
	"github.com/tomtom215/whrelay/internal/delivery"
	"github.com/tomtom215/whrelay/internal/metrics"
	"github.com/tomtom215/whrelay/internal/queue"
	"github.com/tomtom215/whrelay/internal/records"
	"github.com/tomtom215/whrelay/internal/stats"
	"github.com/tomtom215/whrelay/internal/writer"
)

type eventLog struct {
	mu     sync.Mutex
	counts map[stats.Name]int64
	kinds  map[records.Kind]int64
}

func newEventLog() *eventLog {
	return &eventLog{counts: make(map[stats.Name]int64), kinds: make(map[records.Kind]int64)}
}

func (l *eventLog) Record(e stats.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e.Name == stats.Received {
		l.kinds[e.Kind] += e.Value
		return
	}
	l.counts[e.Name] += e.Value
}

func (l *eventLog) count(name stats.Name) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[name]
}

type panicHandler struct{}

func (panicHandler) Kind() records.Kind { return "boom" }

func (panicHandler) Normalize(records.Record, time.Time) (Result, error) {
	panic("handler exploded")
}

type harness struct {
	intake   *queue.Queue[Body]
	storage  *queue.Queue[writer.Item]
	delivery *queue.Queue[delivery.Item]
	events   *eventLog
	pool     *Pool
}

func newHarness(t *testing.T, cfg Config, kinds config.KindsConfig, withDelivery bool) *harness {
	t.Helper()
	h := &harness{
		intake:  queue.New[Body]("test_intake_"+t.Name(), 64),
		storage: queue.New[writer.Item]("test_storage_"+t.Name(), 64),
		events:  newEventLog(),
	}
	if withDelivery {
		h.delivery = queue.New[delivery.Item]("test_delivery_"+t.Name(), 64)
	}
	reg := NewRegistry(kinds)
	reg.Register(panicHandler{})
	dec, err := NewDecoder(false)
	if err != nil {
		t.Fatal(err)
	}
	h.pool = NewPool(cfg, Queues{Intake: h.intake, Storage: h.storage, Delivery: h.delivery}, dec, reg, h.events)
	return h
}

func (h *harness) send(t *testing.T, body string) {
	t.Helper()
	if err := h.intake.Put(context.Background(), Body{Data: []byte(body), Source: "test"}); err != nil {
		t.Fatal(err)
	}
}

// drain closes the intake queue and waits for every worker to exit.
func (h *harness) drain(t *testing.T) {
	t.Helper()
	h.intake.Close()
	var wg sync.WaitGroup
	for _, svc := range h.pool.Services() {
		wg.Add(1)
		go func(svc suture.Service) {
			defer wg.Done()
			if err := svc.Serve(context.Background()); !errors.Is(err, suture.ErrDoNotRestart) {
				t.Errorf("Serve = %v, want ErrDoNotRestart", err)
			}
		}(svc)
	}
	wg.Wait()
}

func storageRows(q *queue.Queue[writer.Item]) map[records.Kind]int {
	out := make(map[records.Kind]int)
	for {
		item, ok, err := q.GetTimeout(context.Background(), time.Millisecond)
		if err != nil || !ok {
			return out
		}
		if item.Roster != nil {
			out["roster"]++
			continue
		}
		out[item.Kind] += len(item.Rows)
	}
}

func TestWorkerRoutesStorageAndDelivery(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Threads: 1, BatchSize: 10}, config.KindsConfig{}, true)
	h.send(t, `[
		{"type":"pokestop","message":{"pokestop_id":"X","enabled":true,"latitude":1,"longitude":2,"lure_expiration":null}},
		{"type":"pokemon","message":{"encounter_id":"1","spawnpoint_id":"s","pokemon_id":1,"latitude":1,"longitude":2,"disappear_time":1}},
		{"type":"pokemon","message":{"encounter_id":"1","spawnpoint_id":"s","pokemon_id":1,"latitude":1,"longitude":2,"disappear_time":2}},
		{"type":"pokemon","message":{"encounter_id":"2","spawnpoint_id":"s","pokemon_id":1,"latitude":1,"longitude":2,"disappear_time":1}},
		{"type":"gym_details","message":{"id":"g","name":"n","url":"u","team":1,"pokemon":[{"pokemon_uid":"u1","pokemon_id":1,"cp":10,"trainer_name":"t","trainer_level":5}]}},
		{"type":"spaceship","message":{}}
	]`)
	h.send(t, `not json`)
	h.drain(t)

	rows := storageRows(h.storage)
	want := map[records.Kind]int{
		records.KindPokestop:   1,
		records.KindPokemon:    2,
		records.KindGymDetails: 1,
		records.KindTrainer:    1,
		records.KindGymPokemon: 1,
		records.Kind("roster"): 1,
	}
	for k, n := range want {
		if rows[k] != n {
			t.Errorf("storage %s = %d, want %d", k, rows[k], n)
		}
	}

	if got := h.delivery.Len(); got != 5 {
		t.Errorf("delivery queue = %d, want 5 original messages", got)
	}
	if got := h.events.count(stats.Ignored); got != 1 {
		t.Errorf("ignored = %d, want 1 for the unknown kind", got)
	}
	if got := h.events.count(stats.DroppedBodies); got != 1 {
		t.Errorf("dropped bodies = %d, want 1", got)
	}
	if got := h.events.kinds[records.KindPokemon]; got != 3 {
		t.Errorf("pokemon total = %d, want 3", got)
	}
}

func TestWorkerRecoversFromPanics(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Threads: 1}, config.KindsConfig{}, false)
	h.send(t, `[{"type":"boom","message":{}},{"type":"pokestop","message":{"pokestop_id":"A","enabled":false,"latitude":0,"longitude":0}}]`)
	h.drain(t)

	if rows := storageRows(h.storage); rows[records.KindPokestop] != 1 {
		t.Errorf("pokestop after panic = %d, want 1", rows[records.KindPokestop])
	}
	if got := h.events.count(stats.Errors); got != 1 {
		t.Errorf("errors = %d, want 1", got)
	}
}

func TestWorkerSkipsDisabledAndIgnoredDelivery(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Threads: 1}, config.KindsConfig{NoPokestops: true, IgnorePokemon: []int{7}}, true)
	h.send(t, `[
		{"type":"pokestop","message":{"pokestop_id":"A"}},
		{"type":"pokemon","message":{"encounter_id":"1","pokemon_id":7,"disappear_time":1}}
	]`)
	h.drain(t)

	if got := h.delivery.Len(); got != 0 {
		t.Errorf("delivery queue = %d, want nothing for disabled or ignored kinds", got)
	}
	if rows := storageRows(h.storage); len(rows) != 0 {
		t.Errorf("storage = %v, want empty", rows)
	}
	if got := h.events.kinds[records.KindPokestop]; got != 1 {
		t.Errorf("disabled kinds still count their total, got %d", got)
	}
}

func TestWorkerIdleFlush(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Threads: 1, BatchSize: 100, IdleFlush: 20 * time.Millisecond}, config.KindsConfig{}, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.pool.Services()[0].Serve(ctx) }()

	h.send(t, `{"type":"pokemon","message":{"encounter_id":"9","spawnpoint_id":"s","pokemon_id":1,"latitude":1,"longitude":2,"disappear_time":1}}`)

	getCtx, getCancel := context.WithTimeout(ctx, time.Second)
	defer getCancel()
	item, err := h.storage.Get(getCtx)
	if err != nil {
		t.Fatalf("partial batch was not flushed: %v", err)
	}
	if item.Kind != records.KindPokemon || len(item.Rows) != 1 {
		t.Errorf("flushed item = %+v", item)
	}
}

func TestWorkerFlushesFullBatchesWithinBody(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Threads: 1, BatchSize: 2}, config.KindsConfig{}, false)
	h.send(t, `[
		{"type":"pokemon","message":{"encounter_id":"1","spawnpoint_id":"s","pokemon_id":1,"latitude":1,"longitude":2,"disappear_time":1}},
		{"type":"pokemon","message":{"encounter_id":"2","spawnpoint_id":"s","pokemon_id":1,"latitude":1,"longitude":2,"disappear_time":1}},
		{"type":"pokemon","message":{"encounter_id":"3","spawnpoint_id":"s","pokemon_id":1,"latitude":1,"longitude":2,"disappear_time":1}},
		{"type":"pokemon","message":{"encounter_id":"4","spawnpoint_id":"s","pokemon_id":1,"latitude":1,"longitude":2,"disappear_time":1}},
		{"type":"pokemon","message":{"encounter_id":"5","spawnpoint_id":"s","pokemon_id":1,"latitude":1,"longitude":2,"disappear_time":1}}
	]`)
	h.drain(t)

	var sizes []int
	for {
		item, ok, err := h.storage.GetTimeout(context.Background(), time.Millisecond)
		if err != nil || !ok {
			break
		}
		sizes = append(sizes, len(item.Rows))
	}
	want := []int{2, 2, 1}
	if len(sizes) != len(want) {
		t.Fatalf("storage items = %v, want %v", sizes, want)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Errorf("item %d has %d rows, want %d", i, sizes[i], want[i])
		}
	}
}

func TestWorkerMonitorsIntakeDepth(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{
		Threads:           1,
		BatchSize:         1,
		WarningThreshold:  1,
		ThresholdLifetime: time.Nanosecond,
	}, config.KindsConfig{}, false)
	for range 4 {
		h.send(t, `{"type":"weather","message":{"s2_cell_id":1,"condition":2,"alert_severity":0,"day":1,"time_changed":0}}`)
	}
	h.drain(t)

	if got := h.events.count(stats.IntakeMax); got < 2 {
		t.Errorf("intake_queue_max = %d, want at least 2", got)
	}
	warnings := testutil.ToFloat64(metrics.BackpressureWarnings.WithLabelValues(h.intake.Name()))
	if warnings < 1 {
		t.Errorf("backpressure warnings for %s = %v, want at least 1", h.intake.Name(), warnings)
	}
}

// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package writer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/whrelay/internal/database"
	"github.com/tomtom215/whrelay/internal/queue"
	"github.com/tomtom215/whrelay/internal/records"
	"github.com/tomtom215/whrelay/internal/stats"
)

type fakeStore struct {
	mu        sync.Mutex
	rows      map[string]int
	rosters   map[string]int
	rosterErr error
	block     chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]int), rosters: make(map[string]int)}
}

func (f *fakeStore) Upsert(ctx context.Context, schema *records.Schema, rows []records.Record) (database.UpsertResult, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return database.UpsertResult{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[schema.Table] += len(rows)
	return database.UpsertResult{Rows: len(rows), Chunks: 1}, nil
}

func (f *fakeStore) ReplaceRoster(_ context.Context, gymID string, members []records.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rosterErr != nil {
		return f.rosterErr
	}
	f.rosters[gymID] = len(members)
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []stats.Event
}

func (l *eventLog) Record(e stats.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) sum(name stats.Name) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for _, e := range l.events {
		if e.Name == name {
			n += e.Value
		}
	}
	return n
}

func (l *eventLog) max(name stats.Name) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for _, e := range l.events {
		if e.Name == name && e.Value > n {
			n = e.Value
		}
	}
	return n
}

func runPool(t *testing.T, p *Pool) {
	t.Helper()
	var wg sync.WaitGroup
	for _, svc := range p.Services() {
		wg.Add(1)
		go func(svc suture.Service) {
			defer wg.Done()
			if err := svc.Serve(context.Background()); !errors.Is(err, suture.ErrDoNotRestart) {
				t.Errorf("Serve = %v, want ErrDoNotRestart after close", err)
			}
		}(svc)
	}
	wg.Wait()
}

func batch(kind records.Kind, key string, n int) Item {
	rows := make(map[string]records.Record, n)
	for i := 0; i < n; i++ {
		id := key + string(rune('a'+i))
		rows[id] = records.Record{"name": id}
	}
	return Item{Kind: kind, Rows: rows}
}

func TestPoolWritesEveryItem(t *testing.T) {
	t.Parallel()

	q := queue.New[Item]("test_storage_all", 16)
	store := newFakeStore()
	events := &eventLog{}
	p := NewPool(Config{Threads: 3}, q, store, events)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := q.Put(ctx, batch(records.KindTrainer, "t", 4)); err != nil {
			t.Fatal(err)
		}
	}
	roster := &RosterReplace{GymID: "g1", Members: []records.Record{{"gym_id": "g1", "pokemon_uid": "1"}}}
	if err := q.Put(ctx, Item{Kind: records.KindGymMember, Roster: roster}); err != nil {
		t.Fatal(err)
	}
	if err := q.Put(ctx, Item{Kind: records.KindTrainer}); err != nil {
		t.Fatal(err)
	}
	q.Close()

	runPool(t, p)

	if got := store.rows["trainer"]; got != 20 {
		t.Errorf("trainer rows = %d, want 20", got)
	}
	if got := store.rosters["g1"]; got != 1 {
		t.Errorf("g1 roster size = %d, want 1", got)
	}
	if got := events.max(stats.DBQueueMax); got < 1 {
		t.Errorf("db_queue_max = %d, want the depth observed while draining", got)
	}
	if got := events.sum(stats.Errors); got != 0 {
		t.Errorf("errors = %d, want 0", got)
	}
}

func TestWorkerSurvivesFailures(t *testing.T) {
	t.Parallel()

	q := queue.New[Item]("test_storage_fail", 8)
	store := newFakeStore()
	store.rosterErr = database.ErrRetriesExhausted
	events := &eventLog{}
	p := NewPool(Config{Threads: 1}, q, store, events)

	ctx := context.Background()
	_ = q.Put(ctx, Item{Kind: records.KindGymMember, Roster: &RosterReplace{GymID: "g"}})
	_ = q.Put(ctx, Item{Kind: records.Kind("nope"), Rows: map[string]records.Record{"x": {}}})
	_ = q.Put(ctx, batch(records.KindTrainer, "ok", 2))
	q.Close()

	runPool(t, p)

	if got := store.rows["trainer"]; got != 2 {
		t.Errorf("trainer rows = %d, want 2 after earlier failures", got)
	}
	if got := events.sum(stats.Errors); got != 2 {
		t.Errorf("errors = %d, want 2", got)
	}
}

func TestWorkerStopsOnCancel(t *testing.T) {
	t.Parallel()

	q := queue.New[Item]("test_storage_cancel", 4)
	store := newFakeStore()
	store.block = make(chan struct{})
	p := NewPool(Config{Threads: 1}, q, store, nil)
	_ = q.Put(context.Background(), batch(records.KindTrainer, "b", 1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Services()[0].Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

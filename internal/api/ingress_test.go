// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/whrelay/internal/config"
	"github.com/tomtom215/whrelay/internal/database"
	"github.com/tomtom215/whrelay/internal/dispatch"
	"github.com/tomtom215/whrelay/internal/queue"
	"github.com/tomtom215/whrelay/internal/records"
	"github.com/tomtom215/whrelay/internal/stats"
	"github.com/tomtom215/whrelay/internal/writer"
)

type mapGate map[string]bool

func (g mapGate) Validate(token string) bool { return g[token] }

type counter struct {
	mu     sync.Mutex
	counts map[stats.Name]int64
}

func newCounter() *counter {
	return &counter{counts: make(map[stats.Name]int64)}
}

func (c *counter) Record(e stats.Event) {
	c.mu.Lock()
	c.counts[e.Name] += e.Value
	c.mu.Unlock()
}

func (c *counter) get(name stats.Name) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}

// blockingIntake holds every Put until release is closed.
type blockingIntake struct {
	release chan struct{}
	entered chan struct{}
	bodies  chan dispatch.Body
}

func newBlockingIntake() *blockingIntake {
	return &blockingIntake{
		release: make(chan struct{}),
		entered: make(chan struct{}, 16),
		bodies:  make(chan dispatch.Body, 16),
	}
}

func (b *blockingIntake) Put(ctx context.Context, body dispatch.Body) error {
	b.entered <- struct{}{}
	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.bodies <- body
	return nil
}

// readTracker records whether the request body was touched.
type readTracker struct {
	io.Reader
	read atomic.Bool
}

func (r *readTracker) Read(p []byte) (int, error) {
	r.read.Store(true)
	return r.Reader.Read(p)
}

func newIngressRouter(t *testing.T, intake Intake, rec stats.Recorder, maxBody int64) http.Handler {
	t.Helper()
	h, err := NewRouter(Deps{
		Server: config.ServerConfig{MaxBodyBytes: maxBody},
		Gate:   mapGate{"good": true},
		Intake: intake,
		Stats:  rec,
	})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return h
}

func TestIngressUnknownTokenNotRead(t *testing.T) {
	t.Parallel()

	q := queue.New[dispatch.Body]("intake", 4)
	rec := newCounter()
	h := newIngressRouter(t, q, rec, 1024)

	body := &readTracker{Reader: strings.NewReader(`[{"type":"pokemon","message":{}}]`)}
	req := httptest.NewRequest(http.MethodPost, "/bad", body)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
	if body.read.Load() {
		t.Error("body was read for an unknown token")
	}
	if q.Len() != 0 {
		t.Errorf("queue len = %d, want 0", q.Len())
	}
	if got := rec.get(stats.PostFail); got != 1 {
		t.Errorf("post_fails = %d, want 1", got)
	}
	if got := rec.get(stats.PostSuccess); got != 0 {
		t.Errorf("post_success = %d, want 0", got)
	}
}

func TestIngressQueuesBody(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "array", body: `[{"type":"pokemon","message":{"encounter_id":"1"}}]`},
		{name: "malformed", body: `{not json`},
		{name: "empty", body: ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			q := queue.New[dispatch.Body]("intake", 4)
			rec := newCounter()
			h := newIngressRouter(t, q, rec, 1024)

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/good", strings.NewReader(tt.body)))

			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rr.Code)
			}
			if rr.Body.Len() != 0 {
				t.Errorf("response body = %q, want empty", rr.Body.String())
			}
			got, err := q.Get(context.Background())
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if string(got.Data) != tt.body {
				t.Errorf("queued %q, want %q", got.Data, tt.body)
			}
			if got.Source != "good" {
				t.Errorf("source = %q, want good", got.Source)
			}
			if got.Received.IsZero() {
				t.Error("received time not set")
			}
			if n := rec.get(stats.PostSuccess); n != 1 {
				t.Errorf("post_success = %d, want 1", n)
			}
		})
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestIngressUnreadableBodyDropped(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body io.Reader
	}{
		{"too large", bytes.NewReader(make([]byte, 2048))},
		{"read error", failingReader{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			q := queue.New[dispatch.Body]("intake", 4)
			rec := newCounter()
			h := newIngressRouter(t, q, rec, 1024)

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/good", tt.body))

			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rr.Code)
			}
			if q.Len() != 0 {
				t.Errorf("queue len = %d, want 0", q.Len())
			}
			if got := rec.get(stats.PostFail); got != 1 {
				t.Errorf("post_fails = %d, want 1", got)
			}
			if got := rec.get(stats.DroppedBodies); got != 1 {
				t.Errorf("dropped_bodies = %d, want 1", got)
			}
		})
	}
}

func TestIngressRespondsBeforeQueueAccepts(t *testing.T) {
	t.Parallel()

	intake := newBlockingIntake()
	srv := httptest.NewServer(newIngressRouter(t, intake, nil, 1024))
	t.Cleanup(srv.Close)

	resp, err := srv.Client().Post(srv.URL+"/good", "application/json", strings.NewReader(`[]`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	select {
	case <-intake.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("Put was never called")
	}
	select {
	case <-intake.bodies:
		t.Fatal("Put returned before release")
	default:
	}

	close(intake.release)
	_ = resp.Body.Close()

	select {
	case b := <-intake.bodies:
		if string(b.Data) != `[]` {
			t.Errorf("queued %q, want []", b.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("body never queued after release")
	}
}

// sightingStore records every pokemon row written by the writer pool.
type sightingStore struct {
	mu   sync.Mutex
	seen map[string]int
}

func (s *sightingStore) Upsert(_ context.Context, schema *records.Schema, rows []records.Record) (database.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		if id, ok := schema.IdentityOf(row); ok {
			s.seen[id]++
		}
	}
	return database.UpsertResult{Rows: len(rows), Chunks: 1}, nil
}

func (s *sightingStore) ReplaceRoster(context.Context, string, []records.Record) error {
	return nil
}

func (s *sightingStore) distinct() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

func TestIngressConcurrentPostsReachStorage(t *testing.T) {
	t.Parallel()

	const (
		requests = 1000
		workers  = 32
	)
	intake := queue.New[dispatch.Body]("intake_concurrent", 50)
	storage := queue.New[writer.Item]("storage_concurrent", 50)
	store := &sightingStore{seen: make(map[string]int)}
	rec := newCounter()

	dec, err := dispatch.NewDecoder(false)
	if err != nil {
		t.Fatal(err)
	}
	pool := dispatch.NewPool(dispatch.Config{Threads: 3, BatchSize: 10, IdleFlush: 20 * time.Millisecond},
		dispatch.Queues{Intake: intake, Storage: storage},
		dec, dispatch.NewRegistry(config.KindsConfig{}), rec)
	writers := writer.NewPool(writer.Config{Threads: 2}, storage, store, rec)

	ctx, cancel := context.WithCancel(context.Background())
	var running sync.WaitGroup
	for _, svc := range append(pool.Services(), writers.Services()...) {
		running.Add(1)
		go func(svc suture.Service) {
			defer running.Done()
			_ = svc.Serve(ctx)
		}(svc)
	}
	t.Cleanup(func() {
		cancel()
		running.Wait()
	})

	srv := httptest.NewServer(newIngressRouter(t, intake, rec, 1024))
	t.Cleanup(srv.Close)

	client := srv.Client()
	jobs := make(chan int)
	var failures atomic.Int32
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				body := fmt.Sprintf(`{"type":"pokemon","message":{"encounter_id":"%d","spawnpoint_id":"s","pokemon_id":1,"latitude":1,"longitude":2,"disappear_time":1}}`, i)
				resp, err := client.Post(srv.URL+"/good", "application/json", strings.NewReader(body))
				if err != nil {
					failures.Add(1)
					continue
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				_ = resp.Body.Close()
				if resp.StatusCode != http.StatusOK {
					failures.Add(1)
				}
			}
		}()
	}
	for i := 0; i < requests; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if n := failures.Load(); n != 0 {
		t.Fatalf("%d requests failed", n)
	}
	deadline := time.Now().Add(10 * time.Second)
	for store.distinct() < requests && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := store.distinct(); got != requests {
		t.Fatalf("stored sightings = %d, want %d", got, requests)
	}
	if got := rec.get(stats.PostSuccess); got != requests {
		t.Errorf("post_success = %d, want %d", got, requests)
	}
	if got := rec.get(stats.DroppedBodies); got != 0 {
		t.Errorf("dropped_bodies = %d, want 0", got)
	}
	if max := intake.Max(); max > intake.Cap() {
		t.Errorf("intake max depth %d exceeds capacity %d", max, intake.Cap())
	}
}

func TestIngressRateLimit(t *testing.T) {
	t.Parallel()

	q := queue.New[dispatch.Body]("intake", 8)
	h, err := NewRouter(Deps{
		Server: config.ServerConfig{MaxBodyBytes: 1024, RateLimitRequests: 2, RateLimitWindow: time.Minute},
		Gate:   mapGate{"good": true},
		Intake: q,
	})
	if err != nil {
		t.Fatal(err)
	}

	codes := make([]int, 3)
	for i := range codes {
		req := httptest.NewRequest(http.MethodPost, "/good", strings.NewReader(`[]`))
		req.RemoteAddr = "192.0.2.10:5000"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes[i] = rr.Code
	}
	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("request %d status = %d, want %d", i, codes[i], want[i])
		}
	}
}

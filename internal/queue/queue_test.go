// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	t.Parallel()

	q := New[int]("test-fifo", 4)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		if err := q.Put(ctx, i); err != nil {
			t.Fatalf("Put(%d): %v", i, err)
		}
	}
	for want := 1; want <= 3; want++ {
		got, err := q.Get(ctx)
		if err != nil || got != want {
			t.Fatalf("Get = %d, %v; want %d", got, err, want)
		}
	}
}

func TestQueuePutBlocksWhenFull(t *testing.T) {
	t.Parallel()

	q := New[int]("test-block", 1)
	ctx := context.Background()
	if err := q.Put(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if q.TryPut(2) {
		t.Fatal("TryPut should fail on a full queue")
	}

	put := make(chan error, 1)
	go func() { put <- q.Put(ctx, 2) }()

	select {
	case err := <-put:
		t.Fatalf("Put returned %v before room was made", err)
	case <-time.After(50 * time.Millisecond):
	}

	if v, _ := q.Get(ctx); v != 1 {
		t.Fatalf("Get = %d, want 1", v)
	}
	select {
	case err := <-put:
		if err != nil {
			t.Fatalf("blocked Put: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Put did not unblock after Get")
	}
	if v, _ := q.Get(ctx); v != 2 {
		t.Errorf("Get = %d, want 2", v)
	}
}

func TestQueuePutHonorsContext(t *testing.T) {
	t.Parallel()

	q := New[int]("test-ctx", 1)
	_ = q.Put(context.Background(), 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Put(ctx, 2); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Put = %v, want DeadlineExceeded", err)
	}
	if q.Len() != 1 {
		t.Errorf("Len = %d, want 1", q.Len())
	}
}

func TestQueueGetTimeout(t *testing.T) {
	t.Parallel()

	q := New[string]("test-timeout", 2)
	ctx := context.Background()

	start := time.Now()
	_, ok, err := q.GetTimeout(ctx, 30*time.Millisecond)
	if ok || err != nil {
		t.Fatalf("GetTimeout on empty = %v, %v", ok, err)
	}
	if time.Since(start) < 25*time.Millisecond {
		t.Error("GetTimeout returned before the deadline")
	}

	_ = q.Put(ctx, "x")
	v, ok, err := q.GetTimeout(ctx, time.Second)
	if !ok || err != nil || v != "x" {
		t.Errorf("GetTimeout = %q, %v, %v", v, ok, err)
	}
}

func TestQueueCloseDrains(t *testing.T) {
	t.Parallel()

	q := New[int]("test-close", 3)
	ctx := context.Background()
	_ = q.Put(ctx, 1)
	_ = q.Put(ctx, 2)
	q.Close()

	if err := q.Put(ctx, 3); !errors.Is(err, ErrClosed) {
		t.Errorf("Put after Close = %v, want ErrClosed", err)
	}
	for want := 1; want <= 2; want++ {
		if v, err := q.Get(ctx); err != nil || v != want {
			t.Errorf("Get = %d, %v; want %d", v, err, want)
		}
	}
	if _, err := q.Get(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Get on drained queue = %v, want ErrClosed", err)
	}
}

func TestQueueObserveMax(t *testing.T) {
	t.Parallel()

	q := New[int]("test-max", 10)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_ = q.Put(ctx, i)
	}

	if max, isNew := q.ObserveMax(); max != 4 || !isNew {
		t.Errorf("ObserveMax = %d, %v; want 4, true", max, isNew)
	}
	_, _ = q.Get(ctx)
	if max, isNew := q.ObserveMax(); max != 4 || isNew {
		t.Errorf("ObserveMax = %d, %v; want 4, false", max, isNew)
	}
}

func TestQueueNoLossUnderContention(t *testing.T) {
	t.Parallel()

	const producers, perProducer = 20, 50
	q := New[int]("test-contention", 5)
	ctx := context.Background()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if err := q.Put(ctx, 1); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}

	got := 0
	done := make(chan struct{})
	go func() {
		for got < producers*perProducer {
			v, err := q.Get(ctx)
			if err != nil {
				break
			}
			got += v
		}
		close(done)
	}()

	wg.Wait()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not finish")
	}
	if got != producers*perProducer {
		t.Errorf("received %d items, want %d", got, producers*perProducer)
	}
}

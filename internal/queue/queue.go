// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tomtom215/whrelay/internal/metrics"
)

// ErrClosed is returned by Put on a closed queue and by Get once a closed
// queue is drained.
var ErrClosed = errors.New("queue: closed")

// Queue is a bounded, multi-producer multi-consumer FIFO.
type Queue[T any] struct {
	name  string
	items chan T
	done  chan struct{}
	once  sync.Once

	mu       sync.Mutex
	max      int
	reported int
}

// New creates a queue holding at most capacity items (minimum 1).
func New[T any](name string, capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{
		name:  name,
		items: make(chan T, capacity),
		done:  make(chan struct{}),
	}
}

// Name returns the queue label used in logs and metrics.
func (q *Queue[T]) Name() string { return q.name }

// Len returns the current depth.
func (q *Queue[T]) Len() int { return len(q.items) }

// Cap returns the capacity.
func (q *Queue[T]) Cap() int { return cap(q.items) }

// Put appends v, blocking while the queue is full.
func (q *Queue[T]) Put(ctx context.Context, v T) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	select {
	case q.items <- v:
		q.sample()
		return nil
	default:
	}

	select {
	case q.items <- v:
		q.sample()
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPut appends v when there is room and reports whether it did.
func (q *Queue[T]) TryPut(v T) bool {
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.items <- v:
		q.sample()
		return true
	default:
		return false
	}
}

// Get removes the oldest item, blocking while the queue is empty.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	select {
	case v := <-q.items:
		q.sample()
		return v, nil
	default:
	}

	select {
	case v := <-q.items:
		q.sample()
		return v, nil
	case <-q.done:
		return q.drain()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// GetTimeout is Get bounded by d. It returns ok=false with a nil error when
// d elapses first. A non-positive d means wait without a deadline.
func (q *Queue[T]) GetTimeout(ctx context.Context, d time.Duration) (T, bool, error) {
	if d <= 0 {
		v, err := q.Get(ctx)
		return v, err == nil, err
	}

	select {
	case v := <-q.items:
		q.sample()
		return v, true, nil
	default:
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case v := <-q.items:
		q.sample()
		return v, true, nil
	case <-timer.C:
		var zero T
		return zero, false, nil
	case <-q.done:
		v, err := q.drain()
		return v, err == nil, err
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	}
}

// Close stops accepting items. Consumers keep draining what is left.
func (q *Queue[T]) Close() {
	q.once.Do(func() { close(q.done) })
}

// ObserveMax samples the current depth and returns the highest depth seen
// so far. isNew is true the first time a given maximum is returned.
func (q *Queue[T]) ObserveMax() (max int, isNew bool) {
	depth := len(q.items)

	q.mu.Lock()
	defer q.mu.Unlock()
	if depth > q.max {
		q.max = depth
	}
	if q.max > q.reported {
		q.reported = q.max
		return q.max, true
	}
	return q.max, false
}

// Max returns the highest depth seen so far.
func (q *Queue[T]) Max() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.max
}

func (q *Queue[T]) drain() (T, error) {
	select {
	case v := <-q.items:
		q.sample()
		return v, nil
	default:
		var zero T
		return zero, ErrClosed
	}
}

func (q *Queue[T]) sample() {
	depth := len(q.items)
	metrics.RecordQueueDepth(q.name, depth)

	q.mu.Lock()
	grew := depth > q.max
	if grew {
		q.max = depth
	}
	max := q.max
	q.mu.Unlock()

	if grew {
		metrics.RecordQueueMax(q.name, max)
	}
}

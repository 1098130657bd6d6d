// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package cache

import "sync"

type lfuEntry[V any] struct {
	key   string
	value V
	freq  int
	prev  *lfuEntry[V]
	next  *lfuEntry[V]
}

// freqList holds entries of one frequency, most recently used at the front.
type freqList[V any] struct {
	head *lfuEntry[V]
	tail *lfuEntry[V]
	size int
}

func newFreqList[V any]() *freqList[V] {
	fl := &freqList[V]{head: &lfuEntry[V]{}, tail: &lfuEntry[V]{}}
	fl.head.next = fl.tail
	fl.tail.prev = fl.head
	return fl
}

func (fl *freqList[V]) pushFront(e *lfuEntry[V]) {
	e.prev = fl.head
	e.next = fl.head.next
	fl.head.next.prev = e
	fl.head.next = e
	fl.size++
}

func (fl *freqList[V]) remove(e *lfuEntry[V]) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev, e.next = nil, nil
	fl.size--
}

func (fl *freqList[V]) back() *lfuEntry[V] {
	if fl.size == 0 {
		return nil
	}
	return fl.tail.prev
}

// Stats is a point-in-time view of cache counters.
type Stats struct {
	Size      int
	Capacity  int
	Hits      int64
	Misses    int64
	Evictions int64
}

// LFU is a bounded, mutex-protected least-frequently-used cache.
type LFU[V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*lfuEntry[V]
	freqs    map[int]*freqList[V]
	minFreq  int

	hits      int64
	misses    int64
	evictions int64
}

// NewLFU creates a cache holding at most capacity entries (minimum 1).
func NewLFU[V any](capacity int) *LFU[V] {
	if capacity < 1 {
		capacity = 1
	}
	return &LFU[V]{
		capacity: capacity,
		items:    make(map[string]*lfuEntry[V], capacity),
		freqs:    make(map[int]*freqList[V]),
	}
}

// Get returns the value for key and counts the access.
func (c *LFU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.bump(e)
	return e.value, true
}

// peek returns the value for key without counting the access.
func (c *LFU[V]) peek(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		return e.value, true
	}
	var zero V
	return zero, false
}

// set inserts or replaces key. Replacing counts as an access.
func (c *LFU[V]) set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		e.value = value
		c.bump(e)
		return
	}
	c.insert(key, value)
}

// Observe records one sighting of key atomically. A new key is inserted and
// reported as changed. For a known key the access is counted and, when
// changed(old, value) is true, the stored value is replaced. The return
// value reports whether the key was new or changed.
func (c *LFU[V]) Observe(key string, value V, changed func(old, cur V) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		c.misses++
		c.insert(key, value)
		return true
	}

	c.hits++
	c.bump(e)
	if changed(e.value, value) {
		e.value = value
		return true
	}
	return false
}

// Len returns the number of entries.
func (c *LFU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// frequency returns the access count of key, or 0 when absent.
func (c *LFU[V]) frequency(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[key]; ok {
		return e.freq
	}
	return 0
}

// Stats returns the current counters.
func (c *LFU[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:      len(c.items),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// insert must be called with mu held and key absent.
func (c *LFU[V]) insert(key string, value V) {
	if len(c.items) >= c.capacity {
		c.evict()
	}
	e := &lfuEntry[V]{key: key, value: value, freq: 1}
	c.list(1).pushFront(e)
	c.items[key] = e
	c.minFreq = 1
}

func (c *LFU[V]) bump(e *lfuEntry[V]) {
	fl := c.freqs[e.freq]
	fl.remove(e)
	if fl.size == 0 {
		delete(c.freqs, e.freq)
		if c.minFreq == e.freq {
			c.minFreq++
		}
	}
	e.freq++
	c.list(e.freq).pushFront(e)
}

// evict drops the least recently used entry of the lowest frequency.
func (c *LFU[V]) evict() {
	fl := c.freqs[c.minFreq]
	if fl == nil {
		// minFreq is stale; rescan.
		c.minFreq = 0
		for f, l := range c.freqs {
			if c.minFreq == 0 || f < c.minFreq {
				c.minFreq, fl = f, l
			}
		}
		if fl == nil {
			return
		}
	}
	victim := fl.back()
	if victim == nil {
		return
	}
	fl.remove(victim)
	if fl.size == 0 {
		delete(c.freqs, c.minFreq)
	}
	delete(c.items, victim.key)
	c.evictions++
}

func (c *LFU[V]) list(freq int) *freqList[V] {
	fl, ok := c.freqs[freq]
	if !ok {
		fl = newFreqList[V]()
		c.freqs[freq] = fl
	}
	return fl
}

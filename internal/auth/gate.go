// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package auth

import (
	"sort"
	"sync"
	"sync/atomic"
)

type tokenEntry struct {
	name     string
	requests *atomic.Int64
}

// Gate validates ingress tokens and counts their use.
type Gate struct {
	mu     sync.RWMutex
	tokens map[string]tokenEntry

	success atomic.Int64
	failure atomic.Int64
}

// NewGate creates an empty gate. Every token is rejected until the first
// Replace.
func NewGate() *Gate {
	return &Gate{tokens: make(map[string]tokenEntry)}
}

// Validate reports whether token is known. A known token bumps the gate
// success counter and its own request counter. An unknown token bumps the
// failure counter.
func (g *Gate) Validate(token string) bool {
	g.mu.RLock()
	e, ok := g.tokens[token]
	g.mu.RUnlock()

	if !ok {
		g.failure.Add(1)
		return false
	}
	g.success.Add(1)
	e.requests.Add(1)
	return true
}

// name returns the sender name for token.
func (g *Gate) name(token string) (string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.tokens[token]
	if !ok {
		return "", ErrUnknownToken
	}
	return e.name, nil
}

// Replace swaps in a new token set. Request counters carry over for tokens
// present in both sets.
func (g *Gate) Replace(tokens map[string]string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	next := make(map[string]tokenEntry, len(tokens))
	for tok, name := range tokens {
		if old, ok := g.tokens[tok]; ok {
			next[tok] = tokenEntry{name: name, requests: old.requests}
			continue
		}
		next[tok] = tokenEntry{name: name, requests: new(atomic.Int64)}
	}
	g.tokens = next
}

// Len returns the number of known tokens.
func (g *Gate) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.tokens)
}

// TokenUsage is one row of the per-token report.
type TokenUsage struct {
	Name     string `json:"name"`
	Requests int64  `json:"requests"`
}

// Snapshot is a point-in-time view of the gate counters.
type Snapshot struct {
	Success int64        `json:"success"`
	Failure int64        `json:"failure"`
	Tokens  []TokenUsage `json:"tokens"`
}

// Snapshot returns the counters. Tokens with no requests are omitted and
// the rest are ordered by name.
func (g *Gate) Snapshot() Snapshot {
	g.mu.RLock()
	usage := make([]TokenUsage, 0, len(g.tokens))
	for _, e := range g.tokens {
		if n := e.requests.Load(); n > 0 {
			usage = append(usage, TokenUsage{Name: e.name, Requests: n})
		}
	}
	g.mu.RUnlock()

	sort.Slice(usage, func(i, j int) bool {
		if usage[i].Name == usage[j].Name {
			return usage[i].Requests > usage[j].Requests
		}
		return usage[i].Name < usage[j].Name
	})
	return Snapshot{
		Success: g.success.Load(),
		Failure: g.failure.Load(),
		Tokens:  usage,
	}
}

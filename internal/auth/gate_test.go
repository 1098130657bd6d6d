// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package auth

import (
	"errors"
	"strconv"
	"sync"
	"testing"
)

func TestGateValidateCounts(t *testing.T) {
	t.Parallel()

	g := NewGate()
	g.Replace(map[string]string{"good": "scanner"})

	tests := []struct {
		token string
		want  bool
	}{
		{"good", true},
		{"bad", false},
		{"", false},
		{"good", true},
		{"GOOD", false},
	}
	for _, tt := range tests {
		if got := g.Validate(tt.token); got != tt.want {
			t.Errorf("Validate(%q) = %v, want %v", tt.token, got, tt.want)
		}
	}

	snap := g.Snapshot()
	if snap.Success != 2 || snap.Failure != 3 {
		t.Errorf("Success/Failure = %d/%d, want 2/3", snap.Success, snap.Failure)
	}
	if len(snap.Tokens) != 1 || snap.Tokens[0].Name != "scanner" || snap.Tokens[0].Requests != 2 {
		t.Errorf("Tokens = %+v", snap.Tokens)
	}
}

func TestGateReplaceKeepsCounters(t *testing.T) {
	t.Parallel()

	g := NewGate()
	g.Replace(map[string]string{"a": "alpha", "b": "beta"})
	g.Validate("a")
	g.Validate("b")

	g.Replace(map[string]string{"a": "alpha-renamed", "c": "gamma"})
	g.Validate("a")

	if g.Validate("b") {
		t.Error("revoked token should be rejected after reload")
	}
	if name, err := g.name("a"); err != nil || name != "alpha-renamed" {
		t.Errorf("Name(a) = %q, %v", name, err)
	}
	if _, err := g.name("b"); !errors.Is(err, ErrUnknownToken) {
		t.Errorf("Name(b) err = %v, want ErrUnknownToken", err)
	}

	snap := g.Snapshot()
	if len(snap.Tokens) != 1 || snap.Tokens[0].Requests != 2 {
		t.Errorf("Tokens = %+v, want alpha-renamed with 2 requests and no zero rows", snap.Tokens)
	}
}

func TestGateConcurrentValidate(t *testing.T) {
	t.Parallel()

	g := NewGate()
	g.Replace(map[string]string{"t": "n"})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				g.Validate("t")
				g.Validate("x" + strconv.Itoa(i))
				if j == 50 {
					g.Replace(map[string]string{"t": "n"})
				}
			}
		}(i)
	}
	wg.Wait()

	snap := g.Snapshot()
	if snap.Success != 1600 || snap.Failure != 1600 {
		t.Errorf("Success/Failure = %d/%d, want 1600/1600", snap.Success, snap.Failure)
	}
	if snap.Tokens[0].Requests != 1600 {
		t.Errorf("per-token requests = %d, want 1600", snap.Tokens[0].Requests)
	}
}

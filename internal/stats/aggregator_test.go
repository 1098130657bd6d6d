// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package stats

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/whrelay/internal/auth"
	"github.com/tomtom215/whrelay/internal/logging"
	"github.com/tomtom215/whrelay/internal/records"
)

type fixedTokens auth.Snapshot

func (f fixedTokens) Snapshot() auth.Snapshot { return auth.Snapshot(f) }

func startAggregator(t *testing.T, cfg Config, tokens TokenUsage) *Aggregator {
	t.Helper()
	a := NewAggregator(cfg, tokens)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return a
}

func TestAggregatorCounts(t *testing.T) {
	t.Parallel()

	a := startAggregator(t, Config{}, nil)
	for i := 0; i < 3; i++ {
		a.Record(Inc(PostSuccess))
	}
	a.Record(Inc(PostFail))
	a.Record(Kind(records.KindPokemon))
	a.Record(Kind(records.KindPokemon))
	a.Record(Kind(records.KindWeather))
	a.Record(Add(Suppressed, 4))
	a.Record(Max(DBQueueMax, 12))
	a.Record(Max(DBQueueMax, 7))
	a.Record(Max(WHQueueMax, 3))
	a.Record(Max(IntakeMax, 40))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s, err := a.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}

	checks := []struct {
		name      string
		got, want int64
	}{
		{"post_success", s.PostSuccess, 3},
		{"post_fails", s.PostFails, 1},
		{"pokemon", s.Kinds[records.KindPokemon], 2},
		{"weather", s.Kinds[records.KindWeather], 1},
		{"suppressed", s.Suppressed, 4},
		{"db_queue_max keeps the largest", s.DBQueueMax, 12},
		{"wh_queue_max", s.WHQueueMax, 3},
		{"intake_queue_max", s.IntakeMax, 40},
		{"events_dropped", s.EventsDropped, 0},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}
}

func TestAggregatorDropsWhenFull(t *testing.T) {
	t.Parallel()

	a := NewAggregator(Config{Buffer: 2}, nil)
	for i := 0; i < 5; i++ {
		a.Record(Inc(Errors))
	}
	if got := a.Dropped(); got != 3 {
		t.Errorf("Dropped = %d, want 3", got)
	}
}

func TestSnapshotHonorsContext(t *testing.T) {
	t.Parallel()

	a := NewAggregator(Config{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := a.Snapshot(ctx); err == nil {
		t.Error("Snapshot without a running aggregator should time out")
	}
}

func TestReport(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	tokens := fixedTokens{Tokens: []auth.TokenUsage{{Name: "east", Requests: 9}}}
	a := NewAggregator(Config{}, tokens)
	a.logger = logging.NewTestLogger(&buf)

	a.apply(Inc(PostSuccess))
	a.apply(Kind(records.KindGym))
	a.report(a.snapshot(a.started.Add(time.Minute)))

	out := buf.String()
	for _, want := range []string{"Runtime Statistics", `"east":9`, `"gym":1`, `"requests_per_minute":1`} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %s: %s", want, out)
		}
	}
}

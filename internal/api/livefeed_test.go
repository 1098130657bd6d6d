// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/tomtom215/whrelay/internal/config"
	"github.com/tomtom215/whrelay/internal/delivery"
	"github.com/tomtom215/whrelay/internal/dispatch"
	"github.com/tomtom215/whrelay/internal/queue"
	"github.com/tomtom215/whrelay/internal/records"
	"github.com/tomtom215/whrelay/internal/websocket"
)

func TestLiveFeedCheckOrigin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		origins []string
		origin  string
		want    bool
	}{
		{name: "missing", origin: "", want: false},
		{name: "same host", origin: "http://relay.example", want: true},
		{name: "foreign", origin: "http://evil.example", want: false},
		{name: "listed", origins: []string{"http://map.example"}, origin: "http://map.example", want: true},
		{name: "wildcard", origins: []string{"*"}, origin: "http://any.example", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			lf := newLiveFeed(websocket.NewHub(), tt.origins)
			req := httptest.NewRequest(http.MethodGet, "http://relay.example/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := lf.checkOrigin(req); got != tt.want {
				t.Errorf("checkOrigin = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLiveFeedStreamsFrames(t *testing.T) {
	t.Parallel()

	hub := websocket.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	h, err := NewRouter(Deps{
		Gate:   mapGate{},
		Intake: queue.New[dispatch.Body]("intake", 1),
		Hub:    hub,
		Admin:  config.AdminConfig{CORSOrigins: []string{"*"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	header := http.Header{"Origin": []string{"http://map.example"}}
	conn, _, err := gorilla.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	frame := delivery.Frame{{Type: records.KindWeather, Message: records.Record{"s2_cell_id": "42"}}}
	if err := hub.Publish(context.Background(), frame); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg websocket.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != websocket.MessageTypeFrame {
		t.Errorf("type = %q, want %q", msg.Type, websocket.MessageTypeFrame)
	}
}

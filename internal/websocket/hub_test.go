// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/whrelay/internal/delivery"
	"github.com/tomtom215/whrelay/internal/records"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
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
	return hub
}

func dial(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewClient(hub, conn)
		hub.Register(c)
		c.Start()
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
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
	return conn
}

func TestHubBroadcastsFrames(t *testing.T) {
	t.Parallel()

	hub := startHub(t)
	conn := dial(t, hub)

	frame := delivery.Frame{{Type: records.KindRaid, Message: records.Record{"gym_id": "g1", "level": 5}}}
	if err := hub.Publish(context.Background(), frame); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got struct {
		Type string `json:"type"`
		Data []struct {
			Type    string         `json:"type"`
			Message map[string]any `json:"message"`
		} `json:"data"`
	}
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got.Type != MessageTypeFrame {
		t.Errorf("type = %q, want frame", got.Type)
	}
	if len(got.Data) != 1 || got.Data[0].Type != "raid" || got.Data[0].Message["gym_id"] != "g1" {
		t.Errorf("data = %+v", got.Data)
	}
}

func TestClientPingPong(t *testing.T) {
	t.Parallel()

	hub := startHub(t)
	conn := dial(t, hub)

	if err := conn.WriteJSON(Message{Type: MessageTypePing}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Message
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got.Type != MessageTypePong {
		t.Errorf("type = %q, want pong", got.Type)
	}
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	t.Parallel()

	hub := startHub(t)
	conn := dial(t, hub)
	_ = conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client still registered after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	slow := NewClient(hub, nil)
	fast := NewClient(hub, nil)
	hub.Register(slow)
	hub.Register(fast)

	for range cap(slow.send) {
		slow.send <- Message{Type: MessageTypeFrame}
	}

	hub.broadcastToClients(Message{Type: MessageTypeFrame, Data: "x"})

	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("ClientCount = %d, want 1", got)
	}
	if len(fast.send) != 1 {
		t.Errorf("fast client buffered %d messages, want 1", len(fast.send))
	}
	for range cap(slow.send) {
		<-slow.send
	}
	if _, ok := <-slow.send; ok {
		t.Error("slow client's channel not closed")
	}
}

func TestHubPublishWithoutClients(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	frame := delivery.Frame{{Type: records.KindGym}}
	if err := hub.Publish(context.Background(), frame); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(hub.broadcast) != 0 {
		t.Error("frame queued with no clients connected")
	}
}

func TestHubServeClosesClients(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	c := NewClient(hub, nil)
	hub.Register(c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := hub.Serve(ctx); err != context.Canceled {
		t.Fatalf("Serve = %v, want context.Canceled", err)
	}
	if hub.ClientCount() != 0 {
		t.Error("clients left after shutdown")
	}
	if _, ok := <-c.send; ok {
		t.Error("client channel not closed")
	}
}

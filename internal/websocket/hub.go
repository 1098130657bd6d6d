// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tomtom215/whrelay/internal/delivery"
	"github.com/tomtom215/whrelay/internal/logging"
	"github.com/tomtom215/whrelay/internal/metrics"
)

// Message types.
const (
	MessageTypeFrame = "frame"
	MessageTypePing  = "ping"
	MessageTypePong  = "pong"
)

const broadcastBuffer = 64

// Message is one websocket message.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub tracks the connected clients and fans frames out to them. It
// implements suture.Service and delivery.Sink.
type Hub struct {
	mu        sync.RWMutex
	clients   map[*Client]struct{}
	broadcast chan Message
	logger    zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*Client]struct{}),
		broadcast: make(chan Message, broadcastBuffer),
		logger:    logging.WithComponent("livefeed"),
	}
}

// Register attaches c to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	metrics.LiveFeedClients.Set(float64(n))
	h.logger.Debug().Uint64("client", c.id).Int("total_clients", n).Msg("Live feed client connected")
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		metrics.LiveFeedClients.Set(float64(n))
		h.logger.Debug().Uint64("client", c.id).Int("total_clients", n).Msg("Live feed client disconnected")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve broadcasts queued messages until ctx is done, then disconnects
// every client.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			n := h.closeAll()
			h.logger.Info().Int("clients_closed", n).Msg("Live feed hub stopped")
			return ctx.Err()
		case msg := <-h.broadcast:
			h.broadcastToClients(msg)
		}
	}
}

func (h *Hub) String() string {
	return "livefeed-hub"
}

// Name implements delivery.Sink.
func (h *Hub) Name() string { return "livefeed" }

// Publish queues frame for broadcast. It never blocks; with no clients
// connected the frame is skipped.
func (h *Hub) Publish(_ context.Context, frame delivery.Frame) error {
	if len(frame) == 0 || h.ClientCount() == 0 {
		return nil
	}
	select {
	case h.broadcast <- Message{Type: MessageTypeFrame, Data: frame}:
	default:
		h.logger.Warn().Int("entries", len(frame)).Msg("Live feed broadcast channel full, dropping frame")
	}
	return nil
}

// broadcastToClients sends msg to every client in ID order. A client whose
// buffer is full is disconnected.
func (h *Hub) broadcastToClients(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var slow []*Client
	for _, c := range h.sortedLocked() {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		close(c.send)
		delete(h.clients, c)
		h.logger.Warn().Uint64("client", c.id).Msg("Dropping slow live feed client")
	}
	if len(slow) > 0 {
		metrics.LiveFeedClients.Set(float64(len(h.clients)))
	}
}

func (h *Hub) closeAll() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.sortedLocked()
	for _, c := range clients {
		close(c.send)
		delete(h.clients, c)
	}
	metrics.LiveFeedClients.Set(0)
	return len(clients)
}

func (h *Hub) sortedLocked() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

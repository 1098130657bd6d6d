// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package api

import (
	"net/http"
	"net/url"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/tomtom215/whrelay/internal/logging"
	"github.com/tomtom215/whrelay/internal/websocket"
)

// liveFeed upgrades GET /ws and attaches the connection to the hub.
type liveFeed struct {
	hub      *websocket.Hub
	origins  []string
	upgrader gorilla.Upgrader
}

func newLiveFeed(hub *websocket.Hub, origins []string) *liveFeed {
	lf := &liveFeed{hub: hub, origins: origins}
	lf.upgrader = gorilla.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      lf.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return lf
}

func (lf *liveFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := lf.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		logging.Ctx(r.Context()).Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	client := websocket.NewClient(lf.hub, conn)
	lf.hub.Register(client)
	client.Start()
}

// checkOrigin accepts same-host origins and any origin listed in
// admin.cors_origins. A request without an Origin header is rejected.
func (lf *liveFeed) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}
	for _, allowed := range lf.origins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	if u, err := url.Parse(origin); err == nil && u.Host == r.Host {
		return true
	}
	logging.Warn().Str("origin", origin).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}

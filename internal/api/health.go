// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package api

import (
	"context"
	"net/http"
	"time"
)

const healthTimeout = 2 * time.Second

type queueHealth struct {
	Name string `json:"name"`
	Len  int    `json:"len"`
	Cap  int    `json:"cap"`
}

type healthStatus struct {
	Status   string        `json:"status"`
	Storage  string        `json:"storage"`
	Queues   []queueHealth `json:"queues"`
	Checked  time.Time     `json:"checked"`
	ErrorMsg string        `json:"error,omitempty"`
}

type healthHandler struct {
	storage Pinger
	queues  []QueueInfo
}

// ServeHTTP answers 200 when storage is reachable and 503 otherwise. Queue
// depths are informational.
func (h *healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := healthStatus{
		Status:  "ok",
		Storage: "unknown",
		Queues:  make([]queueHealth, 0, len(h.queues)),
		Checked: time.Now().UTC(),
	}
	for _, q := range h.queues {
		status.Queues = append(status.Queues, queueHealth{Name: q.Name(), Len: q.Len(), Cap: q.Cap()})
	}

	code := http.StatusOK
	if h.storage != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := h.storage.Ping(ctx); err != nil {
			status.Status = "degraded"
			status.Storage = "unreachable"
			status.ErrorMsg = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			status.Storage = "ok"
		}
	}
	writeJSON(w, code, status)
}

// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tomtom215/whrelay/internal/dispatch"
	"github.com/tomtom215/whrelay/internal/logging"
	"github.com/tomtom215/whrelay/internal/metrics"
	"github.com/tomtom215/whrelay/internal/queue"
	"github.com/tomtom215/whrelay/internal/stats"
)

// DefaultMaxBodyBytes bounds an ingress body when no limit is configured.
const DefaultMaxBodyBytes = 8 << 20

// TokenGate validates ingress tokens.
type TokenGate interface {
	Validate(token string) bool
}

// Intake accepts raw bodies for the dispatch workers.
type Intake interface {
	Put(ctx context.Context, b dispatch.Body) error
}

// Ingress handles POST /{token}.
type Ingress struct {
	gate    TokenGate
	intake  Intake
	stats   stats.Recorder
	maxBody int64
	logger  zerolog.Logger
	now     func() time.Time
}

// NewIngress creates the ingress handler.
func NewIngress(gate TokenGate, intake Intake, rec stats.Recorder, maxBody int64) *Ingress {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	if rec == nil {
		rec = stats.Discard
	}
	return &Ingress{
		gate:    gate,
		intake:  intake,
		stats:   rec,
		maxBody: maxBody,
		logger:  logging.WithComponent("ingress"),
		now:     time.Now,
	}
}

// ServeHTTP answers 404 for an unknown token without reading the body.
// For a known token it reads the body, answers 200 and flushes, and only
// then queues the body, so a full intake queue holds this goroutine but
// not the sender's response. A body that cannot be read whole is dropped
// and still answered 200.
func (in *Ingress) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if !in.gate.Validate(token) {
		in.stats.Record(stats.Inc(stats.PostFail))
		metrics.IngressRequests.WithLabelValues("rejected").Inc()
		w.WriteHeader(http.StatusNotFound)
		return
	}

	received := in.now()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, in.maxBody))
	if err != nil {
		in.stats.Record(stats.Inc(stats.PostFail))
		in.stats.Record(stats.Inc(stats.DroppedBodies))
		metrics.IngressRequests.WithLabelValues("unreadable").Inc()
		metrics.DroppedBodies.Inc()
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			in.logger.Warn().Int64("limit", tooLarge.Limit).Str("remote", r.RemoteAddr).Msg("Webhook body too large, dropped")
		} else {
			logging.Ctx(r.Context()).Warn().Err(err).Msg("Failed to read webhook body, dropped")
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	in.stats.Record(stats.Inc(stats.PostSuccess))
	metrics.IngressRequests.WithLabelValues("accepted").Inc()
	metrics.IngressBytes.WithLabelValues("accepted").Add(float64(len(body)))

	w.WriteHeader(http.StatusOK)
	if err := http.NewResponseController(w).Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Failed to flush ingress response")
	}

	b := dispatch.Body{Data: body, Source: token, Received: received}
	if err := in.intake.Put(context.WithoutCancel(r.Context()), b); err != nil {
		in.stats.Record(stats.Inc(stats.DroppedBodies))
		metrics.DroppedBodies.Inc()
		if errors.Is(err, queue.ErrClosed) {
			in.logger.Warn().Int("bytes", len(body)).Msg("Intake queue closed, body dropped")
			return
		}
		in.logger.Error().Err(err).Int("bytes", len(body)).Msg("Failed to queue webhook body")
	}
}

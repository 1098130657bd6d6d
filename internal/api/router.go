// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/tomtom215/whrelay/docs" // generated swagger docs
	"github.com/tomtom215/whrelay/internal/auth"
	"github.com/tomtom215/whrelay/internal/config"
	"github.com/tomtom215/whrelay/internal/database"
	"github.com/tomtom215/whrelay/internal/deadletter"
	"github.com/tomtom215/whrelay/internal/middleware"
	"github.com/tomtom215/whrelay/internal/stats"
	"github.com/tomtom215/whrelay/internal/websocket"
)

// StatsSource serves the aggregated counters.
type StatsSource interface {
	Snapshot(ctx context.Context) (stats.Snapshot, error)
}

// TokenStore manages persisted ingress tokens.
type TokenStore interface {
	ListTokens(ctx context.Context) ([]database.Token, error)
	AddToken(ctx context.Context, token, name string) error
	RevokeToken(ctx context.Context, token string) error
}

// TokenReloader refreshes the gate after a token change.
type TokenReloader interface {
	Reload(ctx context.Context) error
}

// DeadLetters lists archived failures.
type DeadLetters interface {
	List(ctx context.Context, limit int) ([]deadletter.Entry, error)
	Count(ctx context.Context) (int, error)
}

// Pinger reports storage reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// QueueInfo reports a queue's depth.
type QueueInfo interface {
	Name() string
	Len() int
	Cap() int
}

// Deps are the collaborators the router serves. Gate and Intake are
// required. A nil optional dependency disables the routes that need it.
type Deps struct {
	Server config.ServerConfig
	Admin  config.AdminConfig

	Gate   TokenGate
	Intake Intake
	Stats  stats.Recorder

	StatsSource StatsSource
	Tokens      TokenStore
	Reloader    TokenReloader
	DeadLetters DeadLetters
	Storage     Pinger
	Queues      []QueueInfo
	Hub         *websocket.Hub
}

// NewRouter builds the HTTP surface. The admin group is only mounted when
// a JWT secret is configured.
func NewRouter(deps Deps) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)

	health := &healthHandler{storage: deps.Storage, queues: deps.Queues}
	r.Get("/healthz", health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	if deps.Hub != nil {
		r.Get("/ws", newLiveFeed(deps.Hub, deps.Admin.CORSOrigins).ServeHTTP)
	}

	if deps.Admin.Enabled() {
		jwtManager, err := auth.NewJWTManager(deps.Admin.JWTSecret, 0)
		if err != nil {
			return nil, err
		}
		admin := &adminHandler{
			stats:       deps.StatsSource,
			tokens:      deps.Tokens,
			reloader:    deps.Reloader,
			deadLetters: deps.DeadLetters,
		}
		cm := DefaultChiMiddlewareConfig()
		cm.CORSAllowedOrigins = deps.Admin.CORSOrigins
		if deps.Admin.RateLimitRequests > 0 {
			cm.RateLimitRequests = deps.Admin.RateLimitRequests
		}
		chiMW := NewChiMiddleware(cm)

		r.Route("/admin", func(r chi.Router) {
			r.Use(chiMW.CORS())
			r.Use(chiMW.RateLimit())
			r.Get("/docs/*", httpSwagger.Handler(
				httpSwagger.URL("/admin/docs/doc.json"),
				httpSwagger.DeepLinking(true),
				httpSwagger.DocExpansion("list"),
				httpSwagger.DomID("swagger-ui"),
			))
			r.Group(func(r chi.Router) {
				r.Use(RequireBearer(jwtManager))
				r.Use(middleware.Compression)
				admin.routes(r)
			})
		})
	}

	ingress := NewIngress(deps.Gate, deps.Intake, deps.Stats, deps.Server.MaxBodyBytes)
	ingressMW := NewChiMiddleware(&ChiMiddlewareConfig{
		RateLimitRequests: deps.Server.RateLimitRequests,
		RateLimitWindow:   deps.Server.RateLimitWindow,
	})
	r.With(ingressMW.RateLimit()).Post("/{token}", ingress.ServeHTTP)

	return r, nil
}

// NewHTTPServer wraps handler with the configured timeouts.
func NewHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}
}

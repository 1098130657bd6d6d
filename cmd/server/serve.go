// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomtom215/whrelay/internal/api"
	"github.com/tomtom215/whrelay/internal/auth"
	"github.com/tomtom215/whrelay/internal/cleaner"
	"github.com/tomtom215/whrelay/internal/config"
	"github.com/tomtom215/whrelay/internal/database"
	"github.com/tomtom215/whrelay/internal/deadletter"
	"github.com/tomtom215/whrelay/internal/delivery"
	"github.com/tomtom215/whrelay/internal/dispatch"
	"github.com/tomtom215/whrelay/internal/eventbus"
	"github.com/tomtom215/whrelay/internal/logging"
	"github.com/tomtom215/whrelay/internal/queue"
	"github.com/tomtom215/whrelay/internal/stats"
	"github.com/tomtom215/whrelay/internal/supervisor"
	"github.com/tomtom215/whrelay/internal/supervisor/services"
	"github.com/tomtom215/whrelay/internal/websocket"
	"github.com/tomtom215/whrelay/internal/writer"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ingestion and delivery pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

// app holds everything the serve command builds. Fields that depend on
// optional features are nil when the feature is off.
type app struct {
	cfg *config.Config

	db          *database.DB
	deadLetters *deadletter.Store
	gate        *auth.Gate
	authService *auth.Service
	aggregator  *stats.Aggregator

	intake   *queue.Queue[dispatch.Body]
	storage  *queue.Queue[writer.Item]
	outbound *queue.Queue[delivery.Item]

	sender   *delivery.Sender
	bus      *eventbus.Bus
	embedded *eventbus.EmbeddedServer
	hub      *websocket.Hub

	listener net.Listener
	tree     *supervisor.Tree
}

func runServe(ctx context.Context, opts *rootOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logging.Info().
		Str("driver", cfg.Database.Driver).
		Str("addr", cfg.Server.Addr()).
		Int("webhooks", len(cfg.Webhook.URLs)).
		Bool("nats", cfg.NATS.Enabled).
		Bool("admin", cfg.Admin.Enabled()).
		Msg("Starting WHRelay")

	ctx, stop := signal.NotifyContext(ctxOrBackground(ctx), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Startup failed")
	}
	defer a.close()

	return a.run(ctx)
}

// buildApp opens storage, binds the listener and assembles the supervisor
// tree. Any error here is fatal.
func buildApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	a.db, err = database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if err := a.db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("storage unreachable: %w", err)
	}

	var archiver delivery.Archiver
	if cfg.DeadLetter.Enabled {
		a.deadLetters, err = deadletter.Open(cfg.DeadLetter)
		if err != nil {
			return nil, fmt.Errorf("open dead-letter archive: %w", err)
		}
		a.db.SetArchiver(a.deadLetters)
		archiver = a.deadLetters
	}

	a.gate = auth.NewGate()
	var source auth.TokenSource = a.db
	var file *auth.FileSource
	if cfg.Auth.TokensFile != "" {
		file = auth.NewFileSource(cfg.Auth.TokensFile)
		source = auth.MultiSource{a.db, file}
	}
	a.authService = auth.NewService(a.gate, source, cfg.Auth.ReloadInterval, file)
	if err := a.authService.Reload(ctx); err != nil {
		return nil, fmt.Errorf("load tokens: %w", err)
	}
	if a.gate.Len() == 0 {
		logging.Warn().Msg("No ingress tokens configured; every webhook will be rejected. Create one with 'whrelay tokens generate <name>'")
	}

	a.aggregator = stats.NewAggregator(stats.Config{Interval: cfg.Stats.Interval()}, a.gate)

	a.intake = queue.New[dispatch.Body]("intake", cfg.Dispatch.IntakeCapacity)
	a.storage = queue.New[writer.Item]("storage", cfg.Database.QueueCapacity)

	sinks, err := a.buildSinks(archiver)
	if err != nil {
		return nil, err
	}

	decoder, err := dispatch.NewDecoder(cfg.Dispatch.StrictSchema)
	if err != nil {
		return nil, fmt.Errorf("build envelope decoder: %w", err)
	}

	a.listener, err = net.Listen("tcp", cfg.Server.Addr())
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", cfg.Server.Addr(), err)
	}

	a.tree = supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: cfg.Supervisor.FailureThreshold,
		FailureBackoff:   cfg.Supervisor.FailureBackoff,
		ShutdownTimeout:  cfg.Supervisor.ShutdownTimeout,
	})

	// storage tier
	for _, svc := range writer.NewPool(writer.Config{
		Threads:        cfg.Database.Threads,
		BacklogWarning: cfg.Database.BacklogWarning,
	}, a.storage, a.db, a.aggregator).Services() {
		a.tree.AddStorageService(svc)
	}
	if cfg.Cleaner.Enabled {
		a.tree.AddStorageService(cleaner.New(cfg.Cleaner, a.db))
	}
	a.tree.AddStorageService(a.authService)
	if a.deadLetters != nil {
		a.tree.AddStorageService(deadletter.NewGC(a.deadLetters, deadletter.DefaultGCInterval))
	}

	// pipeline tier
	a.tree.AddPipelineService(a.aggregator)
	for _, svc := range dispatch.NewPool(dispatch.Config{
		Threads:           cfg.Dispatch.Threads,
		BatchSize:         cfg.Database.BatchSize,
		IdleFlush:         cfg.Dispatch.BatchIdleFlush,
		WarningThreshold:  cfg.Dispatch.WarningThreshold,
		ThresholdLifetime: cfg.Dispatch.ThresholdLifetime,
	}, dispatch.Queues{
		Intake:   a.intake,
		Storage:  a.storage,
		Delivery: a.outbound,
	}, decoder, dispatch.NewRegistry(cfg.Kinds), a.aggregator).Services() {
		a.tree.AddPipelineService(svc)
	}
	if a.outbound != nil {
		deduper := delivery.NewDeduper(cfg.Webhook.LFUSize)
		for _, loop := range delivery.Loops(delivery.LoopConfig{
			Threads:           cfg.Webhook.Threads,
			FrameInterval:     cfg.Webhook.FrameInterval,
			WarningThreshold:  cfg.Webhook.WarningThreshold,
			ThresholdLifetime: cfg.Webhook.ThresholdLifetime,
		}, a.outbound, deduper, sinks, a.aggregator) {
			a.tree.AddPipelineService(loop)
		}
	}
	if a.hub != nil {
		a.tree.AddPipelineService(a.hub)
	}
	if a.embedded != nil {
		a.tree.AddPipelineService(a.embedded)
	}

	// api tier
	handler, err := api.NewRouter(a.routerDeps())
	if err != nil {
		return nil, fmt.Errorf("build router: %w", err)
	}
	server := api.NewHTTPServer(cfg.Server, handler)
	a.tree.AddAPIService(services.NewHTTPServerService(server, a.listener, cfg.Supervisor.ShutdownTimeout))

	return a, nil
}

// buildSinks creates the delivery sinks and the Delivery Queue. With no
// sink configured the queue stays nil and dispatch skips delivery.
func (a *app) buildSinks(archiver delivery.Archiver) ([]delivery.Sink, error) {
	cfg := a.cfg
	if !cfg.DeliveryEnabled() {
		logging.Info().Msg("No delivery sinks configured; records are stored only")
		return nil, nil
	}
	var sinks []delivery.Sink

	if len(cfg.Webhook.URLs) > 0 {
		a.sender = delivery.NewSender(cfg.Webhook, archiver, a.aggregator)
		sinks = append(sinks, a.sender)
	}

	if cfg.NATS.Enabled {
		url := cfg.NATS.URL
		if cfg.NATS.Embedded {
			srv, err := eventbus.StartEmbedded(cfg.NATS.EmbeddedHost, cfg.NATS.EmbeddedPort)
			if err != nil {
				return nil, fmt.Errorf("start embedded NATS: %w", err)
			}
			a.embedded = srv
			url = srv.ClientURL()
		}
		bus, err := eventbus.New(cfg.NATS, url)
		if err != nil {
			return nil, fmt.Errorf("connect event bus: %w", err)
		}
		a.bus = bus
		sinks = append(sinks, bus)
	}

	if cfg.Webhook.LiveFeed {
		a.hub = websocket.NewHub()
		sinks = append(sinks, a.hub)
	}

	a.outbound = queue.New[delivery.Item]("delivery", cfg.Webhook.QueueCapacity)
	return sinks, nil
}

func (a *app) routerDeps() api.Deps {
	deps := api.Deps{
		Server:      a.cfg.Server,
		Admin:       a.cfg.Admin,
		Gate:        a.gate,
		Intake:      a.intake,
		Stats:       a.aggregator,
		StatsSource: a.aggregator,
		Tokens:      a.db,
		Reloader:    a.authService,
		Storage:     a.db,
		Queues:      []api.QueueInfo{a.intake, a.storage},
		Hub:         a.hub,
	}
	if a.outbound != nil {
		deps.Queues = append(deps.Queues, a.outbound)
	}
	if a.deadLetters != nil {
		deps.DeadLetters = a.deadLetters
	}
	return deps
}

// run serves the tree until ctx is canceled, then drains.
func (a *app) run(ctx context.Context) error {
	logging.Info().Str("addr", a.listener.Addr().String()).Msg("Listening for webhooks")
	errCh := a.tree.ServeBackground(ctx)

	var runErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown requested, stopping services")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Err(err).Msg("Supervisor tree error")
			runErr = err
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := a.tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	if a.sender != nil {
		a.sender.Wait()
	}
	logging.Info().Msg("WHRelay stopped")
	return runErr
}

// close releases what buildApp opened, in reverse order.
func (a *app) close() {
	if a.listener != nil {
		_ = a.listener.Close()
	}
	if a.intake != nil {
		a.intake.Close()
	}
	if a.storage != nil {
		a.storage.Close()
	}
	if a.outbound != nil {
		a.outbound.Close()
	}
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing event bus")
		}
	}
	if a.embedded != nil {
		a.embedded.Shutdown()
	}
	if a.deadLetters != nil {
		if err := a.deadLetters.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing dead-letter archive")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}
}

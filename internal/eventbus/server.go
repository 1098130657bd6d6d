// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/rs/zerolog"

	"github.com/tomtom215/whrelay/internal/logging"
)

const (
	readyTimeout = 30 * time.Second
	maxPayload   = 8 << 20
)

// EmbeddedServer is an in-process NATS server without JetStream. It
// implements suture.Service: Serve blocks until ctx is done and then shuts
// the server down.
type EmbeddedServer struct {
	server    *server.Server
	clientURL string
	logger    zerolog.Logger
}

// StartEmbedded starts a NATS server on host:port and waits until it
// accepts connections. A port of -1 picks a random port.
func StartEmbedded(host string, port int) (*EmbeddedServer, error) {
	opts := &server.Options{
		ServerName: "whrelay",
		Host:       host,
		Port:       port,
		JetStream:  false,
		NoSigs:     true,
		NoLog:      true,
		MaxPayload: maxPayload,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}
	go ns.Start()

	if !ns.ReadyForConnections(readyTimeout) {
		ns.Shutdown()
		return nil, errors.New("NATS server not ready within timeout")
	}

	s := &EmbeddedServer{
		server:    ns,
		clientURL: ns.ClientURL(),
		logger:    logging.WithComponent("nats"),
	}
	s.logger.Info().Str("url", s.clientURL).Msg("Embedded NATS server started")
	return s, nil
}

// ClientURL returns the URL clients connect to.
func (s *EmbeddedServer) ClientURL() string {
	return s.clientURL
}

// Running reports whether the server is up.
func (s *EmbeddedServer) Running() bool {
	return s.server.Running()
}

// Serve waits for ctx and shuts the server down.
func (s *EmbeddedServer) Serve(ctx context.Context) error {
	<-ctx.Done()
	s.Shutdown()
	return ctx.Err()
}

// Shutdown stops the server and waits for it to exit.
func (s *EmbeddedServer) Shutdown() {
	if !s.server.Running() {
		return
	}
	s.server.Shutdown()
	s.server.WaitForShutdown()
	s.logger.Info().Msg("Embedded NATS server stopped")
}

func (s *EmbeddedServer) String() string {
	return "nats-embedded"
}

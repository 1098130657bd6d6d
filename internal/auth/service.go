// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package auth

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/whrelay/internal/logging"
)

// Service keeps a Gate in sync with its token source. It implements
// suture.Service.
type Service struct {
	gate     *Gate
	source   TokenSource
	interval time.Duration
	file     *FileSource
	logger   zerolog.Logger
}

// NewService creates the reload service. file may be nil; when set its
// changes trigger an immediate reload.
func NewService(gate *Gate, source TokenSource, interval time.Duration, file *FileSource) *Service {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Service{
		gate:     gate,
		source:   source,
		interval: interval,
		file:     file,
		logger:   logging.WithComponent("auth"),
	}
}

// Reload loads the source once and swaps the result into the gate.
func (s *Service) Reload(ctx context.Context) error {
	tokens, err := s.source.Tokens(ctx)
	if err != nil {
		return err
	}
	before := s.gate.Len()
	s.gate.Replace(tokens)
	if len(tokens) != before {
		s.logger.Info().Int("tokens", len(tokens)).Int("previous", before).Msg("Authorization tokens reloaded")
	}
	return nil
}

// Serve reloads every interval until ctx is done.
func (s *Service) Serve(ctx context.Context) error {
	var changed <-chan struct{}
	if s.file != nil {
		ch, err := s.file.Watch(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Token file hot reload disabled")
		} else {
			changed = ch
		}
	}

	s.reloadLogged(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.reloadLogged(ctx)
		case _, ok := <-changed:
			if !ok {
				changed = nil
				continue
			}
			s.logger.Debug().Str("path", s.file.Path()).Msg("Token file changed")
			s.reloadLogged(ctx)
		}
	}
}

func (s *Service) reloadLogged(ctx context.Context) {
	if err := s.Reload(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error().Err(err).Msg("Failed to reload authorization tokens")
	}
}

func (s *Service) String() string {
	return "auth-reload"
}

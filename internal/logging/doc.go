// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

// Package logging provides the process-wide zerolog logger for WHRelay.
//
// Every component logs through this package so output format and level are
// controlled from one place:
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Str("kind", "pokemon").Int("rows", n).Msg("Upserted chunk")
//
// Component loggers attach a "component" field:
//
//	log := logging.WithComponent("writer")
//	log.Warn().Int("depth", d).Msg("Storage queue backlog")
//
// Adapters are provided for log/slog (used by the suture supervisor) and for
// the watermill logger interface (used by the event bus).
//
// Always terminate an event chain with Msg or Send, otherwise nothing is written.
package logging

// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

// Package services adapts components that do not implement suture.Service
// themselves (the HTTP server, plain run functions) so they can be
// supervised.
package services

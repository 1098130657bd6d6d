// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

// Package api serves the HTTP surface: the webhook ingress route, health
// and metrics endpoints, the live feed upgrade and the JWT-protected admin
// routes.
package api

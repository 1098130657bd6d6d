// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

/*
Package middleware holds the HTTP middleware shared by the ingress and
admin routes.

  - RequestID: X-Request-ID propagation into the logging context
  - PrometheusMetrics: request count and latency labelled by chi route
    pattern, so ingress tokens never become label values
  - Compression: gzip for admin JSON responses

They are plain func(http.Handler) http.Handler values for chi's r.Use.
*/
package middleware

// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

// Package backpressure turns queue depth samples into rate-limited operator
// warnings. It never throttles: the bounded queues are the only hard
// backpressure in the pipeline.
//
// Monitor warns once a queue has stayed above its threshold for longer than
// a lifetime window. BacklogWarner is the simpler writer-side rule that
// warns at most once per second while the backlog exceeds a fixed depth.
package backpressure

// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

// Package eventbus publishes delivered frames to NATS.
//
// Every frame entry becomes one message on the subject
// "<prefix>.<kind>", encoded as JSON or msgpack. Core NATS is used with
// JetStream disabled: subscribers that are not connected miss messages,
// the same as webhook endpoints that are down. The message UUID is set
// as the Nats-Msg-Id header so a stream added later can deduplicate.
//
// An embedded nats-server can be started for single-host deployments;
// it runs under the supervisor and shuts down with it.
package eventbus

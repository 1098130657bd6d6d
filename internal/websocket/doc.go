// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

/*
Package websocket streams delivered frames to browsers.

The hub-and-spoke layout is the usual gorilla one: a Hub goroutine owns
the client set and each Client runs a read pump and a write pump. The hub
is registered as a delivery sink, so every frame the delivery loop
publishes is broadcast as

	{"type": "frame", "data": [{"type": "pokemon", "message": {...}}, ...]}

Clients are passive. The only client message handled is {"type":"ping"},
answered with {"type":"pong"}.

A client whose send buffer is full when a frame arrives is disconnected
rather than slowing the hub down. Frames that arrive while the hub's own
broadcast channel is full are dropped and logged.
*/
package websocket

// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

// Package config loads WHRelay configuration.
//
// Sources are layered with koanf, later layers overriding earlier ones:
//
//  1. Built-in defaults (defaultConfig)
//  2. Optional YAML file (CONFIG_PATH, ./config.yaml, /etc/whrelay/config.yaml)
//  3. Environment variables, mapped explicitly (WHSRV_PORT -> server.port)
//
// The loaded Config is validated with struct tags (go-playground/validator)
// followed by cross-field checks, and is read-only afterwards.
package config

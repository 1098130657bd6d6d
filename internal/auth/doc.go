// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

/*
Package auth holds the ingress token gate and the admin API bearer tokens.

Gate maps opaque path tokens to sender names. Validate is the only call on
the hot path. It does a read-locked map lookup and bumps one atomic counter
for the outcome and one for the token.

Token sets come from one or more TokenSource implementations: the
authorizations table and an optional YAML file. Service reloads them on an
interval and, for the file source, as soon as fsnotify reports a write.

	tokens:
	  - token: 8fJ2kq...
	    name: scanner-east

JWTManager signs and validates the HS256 bearer tokens that guard /admin.
*/
package auth

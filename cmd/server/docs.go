// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package main

// General API information for the admin REST surface. Regenerate the
// docs package with:
//
//	swag init -g cmd/server/docs.go -o docs --parseInternal
//
// @title WHRelay Admin API
// @version 1.0
// @description Operator API for a running WHRelay instance: runtime
// @description statistics, ingress token management and the dead-letter archive.
// @description Ingress itself is POST /{token} and is not part of this API.
// @contact.name GitHub Repository
// @contact.url https://github.com/tomtom215/whrelay/issues
//
// @license.name AGPL-3.0-or-later
// @license.url https://www.gnu.org/licenses/agpl-3.0.html
//
// @BasePath /admin
// @schemes http https
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description HS256 JWT signed with admin.jwt_secret, sent as "Bearer <token>".
//
// @tag.name Stats
// @tag.description Runtime statistics
//
// @tag.name Tokens
// @tag.description Ingress token management
//
// @tag.name DeadLetter
// @tag.description Archived upsert chunks and undeliverable frames

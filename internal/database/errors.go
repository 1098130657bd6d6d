// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package database

import (
	"errors"
	"io"
	"strings"

	"github.com/lib/pq"

	"github.com/tomtom215/whrelay/internal/logging"
)

var (
	// ErrConstraint marks a chunk rejected by the database as incompatible
	// data. Such chunks are never retried.
	ErrConstraint = errors.New("database: constraint violation")

	// ErrRetriesExhausted marks a chunk that failed every attempt.
	ErrRetriesExhausted = errors.New("database: retries exhausted")

	// ErrUnknownDriver is returned by Open for an unsupported driver.
	ErrUnknownDriver = errors.New("database: unknown driver")

	// ErrTokenExists is returned by AddToken when the name already has one.
	ErrTokenExists = errors.New("database: token already exists for name")

	// ErrTokenNotFound is returned by RevokeToken for an unknown token.
	ErrTokenNotFound = errors.New("database: token not found")
)

// unrecoverable lists message fragments of errors that retrying cannot fix.
var unrecoverable = []string{
	"constraint",
	"conversion error",
	"invalid input syntax",
	"out of range",
	"datatype mismatch",
}

// IsConstraintError reports whether err means the data itself was rejected.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConstraint) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// Class 22 is data exception, class 23 integrity constraint violation.
		class := pqErr.Code.Class()
		return class == "22" || class == "23"
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range unrecoverable {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return err != nil && !IsConstraintError(err)
}

// closeQuietly closes a resource and explicitly ignores any error.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}

// closeWithLog closes a resource and logs any error.
func closeWithLog(closer io.Closer, resourceType string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.Warn().Str("type", resourceType).Err(err).Msg("Failed to close resource")
	}
}

// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/tomtom215/whrelay/internal/auth"
	"github.com/tomtom215/whrelay/internal/logging"
)

type claimsKey struct{}

// BearerValidator validates admin bearer tokens.
type BearerValidator interface {
	ValidateToken(tokenString string) (*auth.Claims, error)
}

// RequireBearer rejects requests without a valid "Authorization: Bearer"
// token and stores the claims in the request context.
func RequireBearer(v BearerValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Preflight carries no credentials.
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			raw, ok := bearerToken(r)
			if !ok {
				respondError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, "missing bearer token")
				return
			}
			claims, err := v.ValidateToken(raw)
			if err != nil {
				logging.Ctx(r.Context()).Debug().Err(err).Msg("Rejected admin token")
				respondError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid bearer token")
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the admin claims set by RequireBearer.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*auth.Claims)
	return c, ok
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

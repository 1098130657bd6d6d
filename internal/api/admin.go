// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/whrelay/internal/auth"
	"github.com/tomtom215/whrelay/internal/database"
	"github.com/tomtom215/whrelay/internal/deadletter"
	"github.com/tomtom215/whrelay/internal/logging"
)

const maxAdminBody = 4 << 10

type adminHandler struct {
	stats       StatsSource
	tokens      TokenStore
	reloader    TokenReloader
	deadLetters DeadLetters
}

func (h *adminHandler) routes(r chi.Router) {
	r.Get("/stats", h.Stats)
	r.Get("/tokens", h.ListTokens)
	r.Post("/tokens", h.CreateToken)
	r.Delete("/tokens/{token}", h.RevokeToken)
	r.Get("/deadletter", h.DeadLetter)
}

// Stats serves GET /admin/stats.
//
// @Summary Runtime statistics
// @Description Counters since start: posts, per-kind records, queue maxima and delivery outcomes.
// @Tags Stats
// @Produce json
// @Security BearerAuth
// @Success 200 {object} APIResponse{data=stats.Snapshot}
// @Failure 401 {object} APIResponse
// @Failure 503 {object} APIResponse
// @Router /stats [get]
func (h *adminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "statistics are not available")
		return
	}
	snap, err := h.stats.Snapshot(r.Context())
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Failed to read statistics")
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "statistics are not available")
		return
	}
	respondData(w, r, http.StatusOK, snap, nil)
}

// tokenView is the admin representation of an ingress token.
type tokenView struct {
	Token string `json:"token"`
	Name  string `json:"name"`
}

// ListTokens serves GET /admin/tokens.
//
// @Summary List ingress tokens
// @Tags Tokens
// @Produce json
// @Security BearerAuth
// @Success 200 {object} APIResponse{data=[]tokenView}
// @Failure 401 {object} APIResponse
// @Failure 500 {object} APIResponse
// @Router /tokens [get]
func (h *adminHandler) ListTokens(w http.ResponseWriter, r *http.Request) {
	if h.tokens == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "token store is not available")
		return
	}
	list, err := h.tokens.ListTokens(r.Context())
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to list tokens")
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "failed to list tokens")
		return
	}
	views := make([]tokenView, len(list))
	for i, t := range list {
		views[i] = tokenView{Token: t.Token, Name: t.Name}
	}
	n := len(views)
	respondData(w, r, http.StatusOK, views, &APIMeta{Count: &n})
}

type createTokenRequest struct {
	Name string `json:"name"`
}

// CreateToken serves POST /admin/tokens.
//
// @Summary Create an ingress token
// @Description Generates a random token for name and reloads the gate.
// @Tags Tokens
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body createTokenRequest true "Token owner"
// @Success 201 {object} APIResponse{data=tokenView}
// @Failure 400 {object} APIResponse
// @Failure 401 {object} APIResponse
// @Failure 409 {object} APIResponse "name already has a token"
// @Router /tokens [post]
func (h *adminHandler) CreateToken(w http.ResponseWriter, r *http.Request) {
	if h.tokens == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "token store is not available")
		return
	}
	var req createTokenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAdminBody)).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "name is required")
		return
	}

	token, err := auth.GenerateToken()
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to generate token")
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "failed to generate token")
		return
	}
	if err := h.tokens.AddToken(r.Context(), token, req.Name); err != nil {
		if errors.Is(err, database.ErrTokenExists) {
			respondError(w, r, http.StatusConflict, ErrCodeConflict, "a token already exists for this name")
			return
		}
		logging.Ctx(r.Context()).Error().Err(err).Str("name", req.Name).Msg("Failed to store token")
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "failed to store token")
		return
	}
	h.reload(r)

	logging.Ctx(r.Context()).Info().Str("name", req.Name).Str("by", subject(r)).Msg("Ingress token created")
	respondData(w, r, http.StatusCreated, tokenView{Token: token, Name: req.Name}, nil)
}

// RevokeToken serves DELETE /admin/tokens/{token}.
//
// @Summary Revoke an ingress token
// @Tags Tokens
// @Security BearerAuth
// @Param token path string true "Ingress token"
// @Success 204
// @Failure 401 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Router /tokens/{token} [delete]
func (h *adminHandler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	if h.tokens == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "token store is not available")
		return
	}
	token := chi.URLParam(r, "token")
	if err := h.tokens.RevokeToken(r.Context(), token); err != nil {
		if errors.Is(err, database.ErrTokenNotFound) {
			respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "token not found")
			return
		}
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to revoke token")
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "failed to revoke token")
		return
	}
	h.reload(r)

	logging.Ctx(r.Context()).Info().Str("by", subject(r)).Msg("Ingress token revoked")
	w.WriteHeader(http.StatusNoContent)
}

// DeadLetter serves GET /admin/deadletter?limit=N.
//
// @Summary List dead letters
// @Description Newest first. meta.total is the archive size.
// @Tags DeadLetter
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Entries to return (1-1000)" default(100)
// @Success 200 {object} APIResponse{data=[]deadletter.Entry}
// @Failure 400 {object} APIResponse
// @Failure 401 {object} APIResponse
// @Failure 503 {object} APIResponse
// @Router /deadletter [get]
func (h *adminHandler) DeadLetter(w http.ResponseWriter, r *http.Request) {
	if h.deadLetters == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "dead-letter archive is disabled")
		return
	}
	limit := deadletter.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	entries, err := h.deadLetters.List(r.Context(), limit)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to list dead letters")
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "failed to list dead letters")
		return
	}
	total, err := h.deadLetters.Count(r.Context())
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to count dead letters")
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "failed to count dead letters")
		return
	}
	n := len(entries)
	respondData(w, r, http.StatusOK, entries, &APIMeta{Count: &n, Total: &total})
}

// reload applies a token change to the gate immediately. A failure is
// logged only; the periodic reload retries.
func (h *adminHandler) reload(r *http.Request) {
	if h.reloader == nil {
		return
	}
	if err := h.reloader.Reload(r.Context()); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Token reload after admin change failed")
	}
}

func subject(r *http.Request) string {
	if c, ok := ClaimsFromContext(r.Context()); ok {
		return c.Subject
	}
	return ""
}

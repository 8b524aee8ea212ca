// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/sokolive/soko/internal/config"
	"github.com/sokolive/soko/internal/events"
	"github.com/sokolive/soko/internal/gateway"
	"github.com/sokolive/soko/internal/logging"
	"github.com/sokolive/soko/internal/models"
	"github.com/sokolive/soko/internal/session"
	"github.com/sokolive/soko/internal/validation"
)

// Version is the gateway release reported by /info.
const Version = "1.0.0"

// maxSessionBody bounds session registration bodies. Sessions are a
// few short strings and two timestamps; 64 KiB is generous.
const maxSessionBody = 64 << 10

// readinessProbeID is looked up on readiness checks. It never exists;
// a clean not-found proves the store answers.
const readinessProbeID = "readiness-probe"

// Handler implements the HTTP endpoints around a running gateway.
type Handler struct {
	cfg       *config.Config
	gw        *gateway.Gateway
	emitter   *events.Emitter
	sessions  session.Store
	startTime time.Time
}

// NewHandler wires the endpoint handlers. The session store is nil in
// token and insecure modes; session routes then answer 503.
func NewHandler(cfg *config.Config, gw *gateway.Gateway, emitter *events.Emitter, sessions session.Store) *Handler {
	return &Handler{
		cfg:       cfg,
		gw:        gw,
		emitter:   emitter,
		sessions:  sessions,
		startTime: time.Now(),
	}
}

// InfoResponse is the capability document served by GET /api/v1/info:
// everything a client needs before connecting, including the ceilings
// admission will enforce, so well-behaved clients can stay under them
// instead of discovering them through error frames.
type InfoResponse struct {
	Name       string        `json:"name"`
	Version    string        `json:"version"`
	Protocol   int           `json:"protocol"`
	AuthMode   string        `json:"auth_mode"`
	Namespaces []string      `json:"namespaces"`
	Limits     InfoLimits    `json:"limits"`
	Heartbeat  InfoHeartbeat `json:"heartbeat"`
}

// InfoLimits carries the admission and per-connection ceilings.
type InfoLimits struct {
	MaxConnections    int   `json:"max_connections"`
	MaxPayloadBytes   int64 `json:"max_payload_bytes"`
	SendQueueSize     int   `json:"send_queue_size"`
	RateLimitEvents   int   `json:"rate_limit_events"`
	RateLimitWindowMs int64 `json:"rate_limit_window_ms"`
}

// InfoHeartbeat tells clients the server ping cadence so they can set
// their own liveness expectations.
type InfoHeartbeat struct {
	PingIntervalMs int64 `json:"ping_interval_ms"`
	PongTimeoutMs  int64 `json:"pong_timeout_ms"`
}

// Info serves the capability document.
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	nss := models.Namespaces()
	names := make([]string, len(nss))
	for i, ns := range nss {
		names[i] = ns.String()
	}

	respondJSON(w, http.StatusOK, InfoResponse{
		Name:       "soko",
		Version:    Version,
		Protocol:   models.ProtocolRevision,
		AuthMode:   h.cfg.Security.AuthMode,
		Namespaces: names,
		Limits: InfoLimits{
			MaxConnections:    h.cfg.Gateway.MaxConnections,
			MaxPayloadBytes:   h.cfg.Gateway.MaxPayloadBytes,
			SendQueueSize:     h.cfg.Gateway.SendQueueSize,
			RateLimitEvents:   h.cfg.Gateway.RateLimitEvents,
			RateLimitWindowMs: h.cfg.Gateway.RateLimitWindow.Milliseconds(),
		},
		Heartbeat: InfoHeartbeat{
			PingIntervalMs: h.cfg.Gateway.PingInterval.Milliseconds(),
			PongTimeoutMs:  h.cfg.Gateway.PongTimeout.Milliseconds(),
		},
	})
}

// Stats serves the registry snapshot. The router guards it with
// RequireAdmin.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.gw.Registry().Stats())
}

// IngestResponse acknowledges an accepted envelope with the immediate
// fan-out outcome.
type IngestResponse struct {
	Accepted bool                   `json:"accepted"`
	Report   gateway.DeliveryReport `json:"report"`
}

// IngestEvent accepts a collaborator envelope and hands it to the
// broadcaster. Delivery is at-most-once to whoever is connected right
// now, so a valid envelope always answers 202: zero eligible
// subscribers is an outcome, not an error.
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.Gateway.MaxPayloadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, http.StatusRequestEntityTooLarge, CodePayloadTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "could not read request body")
		return
	}

	env, err := events.DecodeEnvelope(body)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	report, err := h.emitter.EmitEnvelope(env)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, IngestResponse{Accepted: true, Report: report})
}

// CreateSession registers a session the commerce app minted at login.
// With the embedded badger store this is what makes the gateway a
// complete session source of truth without a shared database.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		respondError(w, r, http.StatusServiceUnavailable, CodeUnavailable,
			"session registration requires the session store")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSessionBody))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "could not read request body")
		return
	}
	var req CreateSessionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "request body is not valid JSON")
		return
	}

	if verr := validation.ValidateStruct(&req); verr != nil {
		apiErr := verr.ToAPIError()
		respondErrorDetails(w, r, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
		return
	}
	if !req.ExpiresAt.After(time.Now()) {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "expires_at must be in the future")
		return
	}

	s := &session.Session{
		ID:        req.ID,
		UserID:    req.UserID,
		Role:      models.Role(req.Role),
		CreatedAt: time.Now(),
		ExpiresAt: req.ExpiresAt,
	}
	if err := h.sessions.Put(r.Context(), s); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).
			Str("user_id", logging.SanitizeUserID(s.UserID)).
			Msg("Session registration failed")
		respondError(w, r, http.StatusInternalServerError, CodeInternalError, "could not store session")
		return
	}

	// The session ID is a credential; it never reaches the log whole.
	logging.Ctx(r.Context()).Info().
		Str("session_id", logging.SanitizeSessionID(s.ID)).
		Str("user_id", logging.SanitizeUserID(s.UserID)).
		Str("role", s.Role.String()).
		Time("expires_at", s.ExpiresAt).
		Msg("Session registered")
	respondJSON(w, http.StatusCreated, s)
}

// DeleteSession revokes a session at logout. Idempotent: revoking an
// absent session still answers 204, matching the store's semantics.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		respondError(w, r, http.StatusServiceUnavailable, CodeUnavailable,
			"session revocation requires the session store")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "session id required")
		return
	}

	if err := h.sessions.Delete(r.Context(), id); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).
			Str("session_id", logging.SanitizeSessionID(id)).
			Msg("Session revocation failed")
		respondError(w, r, http.StatusInternalServerError, CodeInternalError, "could not delete session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteUserSessions revokes every session belonging to one user, for
// role changes and compromised accounts. Answers the number removed;
// zero is a valid outcome, not an error.
func (h *Handler) DeleteUserSessions(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		respondError(w, r, http.StatusServiceUnavailable, CodeUnavailable,
			"session revocation requires the session store")
		return
	}

	userID := chi.URLParam(r, "userID")
	if userID == "" {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "user id required")
		return
	}

	removed, err := h.sessions.DeleteByUserID(r.Context(), userID)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).
			Str("user_id", logging.SanitizeUserID(userID)).
			Msg("User session revocation failed")
		respondError(w, r, http.StatusInternalServerError, CodeInternalError, "could not delete sessions")
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("user_id", logging.SanitizeUserID(userID)).
		Int("revoked", removed).
		Msg("User sessions revoked")
	respondJSON(w, http.StatusOK, map[string]int{"revoked": removed})
}

// HealthLive answers liveness probes: the process is up and serving.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"alive":          true,
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
	})
}

// HealthReady answers readiness probes. Ready means admission can
// succeed: when a session store is configured it must answer lookups.
// The probe uses an ID that never exists, so not-found is the healthy
// answer and nothing is written.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	storeState := "disabled"
	ready := true
	if h.sessions != nil {
		storeState = "ok"
		if _, err := h.sessions.Get(r.Context(), readinessProbeID); err != nil &&
			!errors.Is(err, session.ErrNotFound) && !errors.Is(err, session.ErrExpired) {
			storeState = "unavailable"
			ready = false
		}
	}

	stats := h.gw.Registry().Stats()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, map[string]interface{}{
		"ready":          ready,
		"session_store":  storeState,
		"connections":    stats.Connections,
		"capacity":       stats.Capacity,
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
	})
}

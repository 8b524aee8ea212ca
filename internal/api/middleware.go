// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/sokolive/soko/internal/auth"
	"github.com/sokolive/soko/internal/config"
	"github.com/sokolive/soko/internal/logging"
	"github.com/sokolive/soko/internal/metrics"
	"github.com/sokolive/soko/internal/models"
)

// RateLimitConfig defines a per-IP request ceiling for one route group.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Route-group ceilings. The default group reads its ceiling from
// security configuration; these presets cover groups whose traffic
// shape is known up front.
var (
	// RateLimitIngest is permissive: the commerce app sends one
	// request per business event.
	RateLimitIngest = RateLimitConfig{Requests: 1000, Window: time.Minute}

	// RateLimitSessions tracks login and logout volume.
	RateLimitSessions = RateLimitConfig{Requests: 300, Window: time.Minute}

	// RateLimitHealth accommodates frequent orchestrator probes.
	RateLimitHealth = RateLimitConfig{Requests: 1000, Window: time.Minute}
)

// Middleware builds the cross-cutting HTTP middleware from security
// configuration. Admin routes authenticate through the same
// Authenticator as the websocket handshake, so a credential is valid
// for both surfaces or neither.
type Middleware struct {
	sec           config.SecurityConfig
	authenticator auth.Authenticator
	cors          func(http.Handler) http.Handler
}

// NewMiddleware prepares the middleware set. The CORS handler is built
// once; chi applies it per route group.
func NewMiddleware(sec config.SecurityConfig, authenticator auth.Authenticator) *Middleware {
	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   sec.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           86400,
	})
	return &Middleware{sec: sec, authenticator: authenticator, cors: corsHandler}
}

// CORS returns the preflight and response-header middleware. Browser
// pages calling /info cross-origin need it; the allow-list is the same
// one admission checks on websocket upgrades.
func (m *Middleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimit returns the default per-IP limiter from security
// configuration.
func (m *Middleware) RateLimit() func(http.Handler) http.Handler {
	return m.RateLimitCustom(RateLimitConfig{
		Requests: m.sec.RateLimitReqs,
		Window:   m.sec.RateLimitWindow,
	})
}

// RateLimitIngest returns the limiter for the event ingest group.
func (m *Middleware) RateLimitIngest() func(http.Handler) http.Handler {
	return m.RateLimitCustom(RateLimitIngest)
}

// RateLimitSessions returns the limiter for the session routes.
func (m *Middleware) RateLimitSessions() func(http.Handler) http.Handler {
	return m.RateLimitCustom(RateLimitSessions)
}

// RateLimitHealth returns the limiter for the health probes.
func (m *Middleware) RateLimitHealth() func(http.Handler) http.Handler {
	return m.RateLimitCustom(RateLimitHealth)
}

// RateLimitCustom returns a per-IP limiter with the given ceiling.
// Rejections carry the standard envelope so callers can branch on the
// rate_limited code. When limiting is disabled in configuration the
// middleware is a pass-through.
func (m *Middleware) RateLimitCustom(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if m.sec.RateLimitDisabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		cfg.Requests,
		cfg.Window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			respondError(w, r, http.StatusTooManyRequests, CodeRateLimited,
				"request rate limit exceeded, retry later")
		}),
	)
}

// SecurityHeaders sets the response headers for JSON endpoints: no MIME
// sniffing, no framing, no caching, HSTS when the request arrived over
// TLS directly or through a terminating proxy.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Cache-Control", "no-store")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogContext copies the router's request ID into the logging
// context so handler log lines carry the same request_id the response
// envelope reports.
func RequestLogContext() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if reqID := chimiddleware.GetReqID(r.Context()); reqID != "" {
				ctx := logging.ContextWithRequestID(r.Context(), reqID)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestMetrics records count and latency per route pattern. It runs
// outside the rate limiters so rejected requests are visible too.
// Patterns rather than raw paths keep the label space bounded.
func RequestMetrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			metrics.APIActiveRequests.Inc()
			defer metrics.APIActiveRequests.Dec()

			next.ServeHTTP(ww, r)

			pattern := chi.RouteContext(r.Context()).RoutePattern()
			if pattern == "" {
				pattern = "unmatched"
			}
			status := ww.Status()
			if status == 0 {
				// Hijacked upgrades answer over the raw connection.
				status = http.StatusSwitchingProtocols
			}
			metrics.RecordAPIRequest(r.Method, pattern, status, time.Since(start))
		})
	}
}

type contextKey struct{ name string }

var identityKey = contextKey{"identity"}

// IdentityFromContext returns the identity resolved by RequireAdmin,
// or nil outside an admin route.
func IdentityFromContext(ctx context.Context) *auth.Identity {
	id, _ := ctx.Value(identityKey).(*auth.Identity)
	return id
}

// RequireAdmin authenticates the Authorization bearer credential and
// admits only the admin role. In session mode the credential is a
// session ID, in token mode a JWT. Failures map onto the envelope the
// same way handshake failures map onto error frames.
func (m *Middleware) RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mode := m.authenticator.Mode()

			cred := bearerCredential(r)
			if cred == "" {
				metrics.RecordAuthResult(mode, "denied")
				respondError(w, r, http.StatusUnauthorized, CodeUnauthenticated,
					"bearer credential required")
				return
			}

			identity, err := m.authenticator.Authenticate(r.Context(), restCredentials(mode, cred))
			if err != nil {
				m.rejectAuth(w, r, mode, err)
				return
			}

			if identity.Role != models.RoleAdmin {
				metrics.RecordAuthResult(mode, "ok")
				logging.Ctx(r.Context()).Warn().
					Str("user_id", identity.UserID).
					Str("role", identity.Role.String()).
					Str("path", r.URL.Path).
					Msg("Admin route refused")
				respondError(w, r, http.StatusForbidden, CodeForbidden, "admin role required")
				return
			}

			metrics.RecordAuthResult(mode, "ok")
			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (m *Middleware) rejectAuth(w http.ResponseWriter, r *http.Request, mode string, err error) {
	switch {
	case errors.Is(err, auth.ErrSessionExpired):
		metrics.RecordAuthResult(mode, "expired")
		respondError(w, r, http.StatusUnauthorized, CodeSessionExpired, "session expired")
	case errors.Is(err, auth.ErrStoreUnavailable):
		metrics.RecordAuthResult(mode, "store_unavailable")
		respondError(w, r, http.StatusServiceUnavailable, CodeUnavailable,
			"credential check unavailable, retry later")
	default:
		metrics.RecordAuthResult(mode, "denied")
		respondError(w, r, http.StatusUnauthorized, CodeUnauthenticated, "authentication failed")
	}
}

// restCredentials adapts a bearer value to the authenticator's mode.
// Session and token authenticators read different AuthData fields, so
// the value is offered as both. Insecure mode trusts claims, and the
// only claim a bearer header can carry is the role itself.
func restCredentials(mode, cred string) *models.AuthData {
	if mode == config.AuthModeInsecure {
		return &models.AuthData{UserID: "local", Role: cred}
	}
	return &models.AuthData{SessionID: cred, Token: cred}
}

// bearerCredential extracts the Authorization bearer value, accepting
// any case for the scheme. Empty means absent or malformed.
func bearerCredential(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

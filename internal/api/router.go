// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sokolive/soko/internal/auth"
	"github.com/sokolive/soko/internal/config"
	"github.com/sokolive/soko/internal/events"
	"github.com/sokolive/soko/internal/gateway"
	"github.com/sokolive/soko/internal/session"
)

// Router assembles the HTTP surface: websocket admission, the JSON
// API, health probes and the metrics exposition.
type Router struct {
	handler    *Handler
	middleware *Middleware
	gw         *gateway.Gateway
}

// NewRouter builds the router around a gateway and its collaborator
// surface. The authenticator is the same instance admission uses.
func NewRouter(cfg *config.Config, gw *gateway.Gateway, emitter *events.Emitter, authenticator auth.Authenticator, sessions session.Store) *Router {
	return &Router{
		handler:    NewHandler(cfg, gw, emitter, sessions),
		middleware: NewMiddleware(cfg.Security, authenticator),
		gw:         gw,
	}
}

// Handler returns the assembled chi handler, ready for http.Server.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(RequestLogContext())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestMetrics())
	r.Use(rt.middleware.CORS())

	// Websocket admission. No httprate group here: upgrade limiting
	// lives in the gateway, which resolves client addresses through
	// the trusted proxy list.
	r.Get("/ws", rt.gw.HandleWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(rt.middleware.RateLimit())
			r.Use(SecurityHeaders())
			r.Get("/info", rt.handler.Info)
		})

		r.Group(func(r chi.Router) {
			r.Use(rt.middleware.RateLimit())
			r.Use(SecurityHeaders())
			r.Use(rt.middleware.RequireAdmin())
			r.Get("/stats", rt.handler.Stats)
		})

		r.Group(func(r chi.Router) {
			r.Use(rt.middleware.RateLimitIngest())
			r.Use(SecurityHeaders())
			r.Use(rt.middleware.RequireAdmin())
			r.Post("/events", rt.handler.IngestEvent)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Use(rt.middleware.RateLimitSessions())
			r.Use(SecurityHeaders())
			r.Use(rt.middleware.RequireAdmin())
			r.Post("/", rt.handler.CreateSession)
			r.Delete("/{id}", rt.handler.DeleteSession)
			r.Delete("/user/{userID}", rt.handler.DeleteUserSessions)
		})

		r.Route("/health", func(r chi.Router) {
			r.Use(rt.middleware.RateLimitHealth())
			r.Use(SecurityHeaders())
			r.Get("/live", rt.handler.HealthLive)
			r.Get("/ready", rt.handler.HealthReady)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		respondError(w, req, http.StatusNotFound, CodeNotFound, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		respondError(w, req, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})

	return r
}

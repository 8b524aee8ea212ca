// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

// Package api provides the HTTP surface around the gateway: the
// websocket upgrade route, introspection endpoints, the collaborator
// ingest route and session registration.
//
// # Routes
//
//	GET    /ws                      websocket admission (public)
//	GET    /api/v1/info             capability document (public)
//	GET    /api/v1/stats            registry snapshot (admin)
//	POST   /api/v1/events           event ingest (admin)
//	POST   /api/v1/sessions         session registration (admin)
//	DELETE /api/v1/sessions/{id}    session revocation (admin)
//	GET    /api/v1/health/live      liveness probe (public)
//	GET    /api/v1/health/ready     readiness probe (public)
//	GET    /metrics                 prometheus exposition (public)
//
// Admin routes authenticate a bearer credential through the same
// Authenticator the websocket handshake uses: a session ID in session
// mode, a JWT in token mode. The caller's role must be admin.
//
// # Error Envelope
//
// Every error response is the envelope
//
//	{"error": {"code": "...", "message": "..."}}
//
// with a stable snake_case code from the same taxonomy as the wire
// protocol error frames. Success responses are plain JSON documents.
//
// Routing is chi with go-chi/cors for the browser surface and
// go-chi/httprate for per-group request ceilings. The websocket route
// carries no httprate group: upgrade attempts are rate limited inside
// the gateway, where the limiter can honor trusted proxy headers.
package api

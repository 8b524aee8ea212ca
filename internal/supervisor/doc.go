// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

// Package supervisor arranges Soko's long-running components under a
// suture supervision tree.
//
// # Tree Layout
//
//	soko (root)
//	├── sessions-layer    session store janitor (pruning backends only)
//	├── realtime-layer    gateway, heartbeat monitor, broker intake
//	└── api-layer         HTTP server (websocket admission + JSON API)
//
// Each layer is its own supervisor, so a crashing intake bridge
// restarts without touching the HTTP listener, and vice versa. Crash
// loops hit the failure threshold and back off instead of spinning.
//
// # Services
//
// The supervised components implement suture.Service directly: the
// Gateway, its Monitor, the session Janitor and the intake bridge all
// expose Serve(ctx) and String(). The only wrapper this package adds
// is HTTPService, which translates http.Server's blocking
// ListenAndServe into the context-driven shape suture expects and
// drains it gracefully on shutdown.
//
// # Logging
//
// Suture reports supervision events through an slog handler; the tree
// plugs in the zerolog-backed logger from internal/logging via
// sutureslog, so restarts and backoffs land in the same stream as
// everything else.
package supervisor

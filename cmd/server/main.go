// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

// Package main is the entry point for the Soko gateway process.
//
// Soko pushes commerce events (orders, inventory, payments, system
// notices) from a multi-tenant commerce platform to browsers and
// dashboards over websockets, with role-scoped visibility and
// per-connection backpressure.
//
// # Startup Order
//
// The process initializes components in this order:
//
//  1. Configuration: layered load via koanf (defaults, YAML file,
//     environment variables)
//  2. Logging: global zerolog logger
//  3. Session store: memory, badger or postgres (session auth mode only)
//  4. Authenticator: session, token (JWT) or insecure
//  5. Visibility matrix: casbin role/namespace policy
//  6. Gateway: connection registry, broadcaster, heartbeat monitor
//  7. Intake (optional): NATS JetStream envelope consumer
//  8. HTTP server: websocket admission, JSON API, health, metrics
//
// Long-running components run under a suture supervision tree with
// three layers (sessions, realtime, api) so a crashing component
// restarts without taking down its neighbors.
//
// # Configuration
//
// Everything is driven by environment variables (see .env.example) or
// a config.yaml. The common knobs:
//
//	export AUTH_MODE=session            # session | token | insecure
//	export SESSION_STORE=badger         # memory | badger | postgres
//	export SESSION_STORE_PATH=/data/sessions
//	export ALLOWED_ORIGINS=https://shop.example.com
//	export MAX_CONNECTIONS=10000
//	export NATS_ENABLED=true            # consume events from NATS
//	./soko
//
// Token mode instead needs a signing secret shared with the commerce
// app:
//
//	export AUTH_MODE=token
//	export JWT_SECRET=$(openssl rand -base64 32)
//	./soko
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the root context. The tree then stops the
// HTTP listener gracefully, closes every websocket with a going-away
// frame, drains the intake consumer and releases the session store.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sokolive/soko/internal/api"
	"github.com/sokolive/soko/internal/auth"
	"github.com/sokolive/soko/internal/config"
	"github.com/sokolive/soko/internal/events"
	"github.com/sokolive/soko/internal/gateway"
	"github.com/sokolive/soko/internal/intake"
	"github.com/sokolive/soko/internal/logging"
	"github.com/sokolive/soko/internal/session"
	"github.com/sokolive/soko/internal/supervisor"
	"github.com/sokolive/soko/internal/visibility"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", api.Version).
		Str("addr", cfg.Server.Addr()).
		Str("auth_mode", cfg.Security.AuthMode).
		Str("environment", cfg.Server.Environment).
		Msg("Starting soko gateway")

	warnRiskySettings(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The session store only backs session auth mode; token mode
	// verifies signatures and insecure mode trusts claims.
	var store session.Store
	if cfg.Security.AuthMode == config.AuthModeSession {
		store, err = session.NewStore(ctx, session.StoreConfig{
			Backend:     cfg.Security.SessionStore,
			BadgerDir:   cfg.Security.SessionStorePath,
			PostgresDSN: cfg.Security.SessionStoreDSN,
		})
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to open session store")
		}
		defer func() {
			if err := store.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing session store")
			}
		}()
		logging.Info().
			Str("backend", cfg.Security.SessionStore).
			Msg("Session store ready")
	}

	authenticator, err := auth.New(&cfg.Security, store)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build authenticator")
	}

	matrix, err := visibility.New(nil)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build visibility matrix")
	}
	policies, groupings := matrix.PolicyCounts()
	logging.Info().
		Int("policies", policies).
		Int("groupings", groupings).
		Msg("Visibility matrix loaded")

	g := gateway.New(cfg, authenticator, matrix)
	emitter := events.New(g)

	tree := supervisor.New(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	if pruner, ok := store.(session.Pruner); ok {
		tree.AddSessionService(session.NewJanitor(pruner, cfg.Security.SessionSweepInterval))
		logging.Info().
			Dur("interval", cfg.Security.SessionSweepInterval).
			Msg("Session janitor scheduled")
	}

	// The gateway service owns connection teardown and upgrade-limiter
	// pruning; the monitor drives pings and eviction.
	tree.AddRealtimeService(g)
	tree.AddRealtimeService(g.Monitor())

	if cfg.Intake.Enabled {
		tree.AddRealtimeService(intake.New(cfg.Intake, emitter))
		logging.Info().
			Str("url", cfg.Intake.URL).
			Bool("embedded", cfg.Intake.EmbeddedServer).
			Str("stream", cfg.Intake.Stream).
			Msg("Broker intake enabled")
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.NewRouter(cfg, g, emitter, authenticator, store).Handler(),
		ReadHeaderTimeout: cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
		// No blanket read/write timeouts: deadlines on upgraded
		// connections belong to the gateway's pumps.
	}
	tree.AddAPIService(supervisor.NewHTTPService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP service scheduled")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	logging.Info().Msg("Supervisor tree running")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree failed")
		}
	}

	// Drain until the tree has fully stopped.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service did not stop within timeout")
	}

	logging.Info().Msg("Gateway stopped")
}

// warnRiskySettings flags configurations that are fine in development
// and dangerous anywhere else.
func warnRiskySettings(cfg *config.Config) {
	if cfg.Security.AuthMode == config.AuthModeInsecure {
		logging.Warn().Msg("==========================================================")
		logging.Warn().Msg("  AUTH_MODE=insecure: claimed identities are trusted as-is")
		logging.Warn().Msg("  Every client gets whatever role it asks for.")
		logging.Warn().Msg("  Use only for local development and tests.")
		logging.Warn().Msg("==========================================================")
	}

	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
	}

	if cfg.Security.AllowsAllOrigins() && cfg.Server.IsProduction() {
		logging.Warn().Msg("ALLOWED_ORIGINS=* in production: any website can open websockets to this gateway")
	}

	if cfg.Security.AuthMode == config.AuthModeSession &&
		cfg.Security.SessionStore == session.BackendMemory &&
		cfg.Server.IsProduction() {
		logging.Warn().Msg("SESSION_STORE=memory in production: sessions are lost on restart, consider badger or postgres")
	}
}

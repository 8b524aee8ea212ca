// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sokolive/soko/internal/auth"
	"github.com/sokolive/soko/internal/config"
	"github.com/sokolive/soko/internal/logging"
	"github.com/sokolive/soko/internal/models"
	"github.com/sokolive/soko/internal/visibility"
)

const (
	limiterPruneInterval = 5 * time.Minute
	limiterIdleEviction  = time.Hour
)

// Gateway is the realtime core behind one instance with an explicit
// lifecycle: the registry, the admission path, the broadcaster and the
// heartbeat monitor.
type Gateway struct {
	cfg config.GatewayConfig
	sec config.SecurityConfig

	registry      *Registry
	broadcaster   *Broadcaster
	monitor       *Monitor
	authenticator auth.Authenticator
	upgrader      websocket.Upgrader
	ipLimiter     *ipLimiter
	allowAll      bool
}

// New wires a gateway from validated configuration. The configuration
// is copied and read-only from here on.
func New(cfg *config.Config, authenticator auth.Authenticator, matrix *visibility.Matrix) *Gateway {
	g := &Gateway{
		cfg:           cfg.Gateway,
		sec:           cfg.Security,
		registry:      NewRegistry(cfg.Gateway.MaxConnections),
		authenticator: authenticator,
		allowAll:      cfg.Security.AllowsAllOrigins(),
	}
	g.broadcaster = NewBroadcaster(g.registry, matrix)
	g.monitor = NewMonitor(g.registry, cfg.Gateway.PingInterval, cfg.Gateway.PongTimeout)
	if !cfg.Security.RateLimitDisabled {
		g.ipLimiter = newIPLimiter(cfg.Security.RateLimitReqs, cfg.Security.RateLimitWindow)
	}

	// Origins are checked in HandleWS before the upgrade so rejections
	// carry a reason; the upgrader's own check would shadow it.
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		HandshakeTimeout: handshakeTimeout,
		CheckOrigin:      func(*http.Request) bool { return true },
	}

	if g.allowAll {
		logging.Warn().Msg("All origins allowed for websocket upgrades, do not run this in production")
	}
	return g
}

// Registry exposes the connection registry for stats and tests.
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// Monitor returns the heartbeat monitor for the supervisor to run.
func (g *Gateway) Monitor() *Monitor {
	return g.monitor
}

// Emit fans an event out through the broadcaster.
func (g *Gateway) Emit(e *models.Event) DeliveryReport {
	return g.broadcaster.Emit(e)
}

// Serve owns connection teardown. While running it prunes the upgrade
// limiter; on cancellation every connection is told the server is
// going away and closed, and the registry is drained.
func (g *Gateway) Serve(ctx context.Context) error {
	prune := time.NewTicker(limiterPruneInterval)
	defer prune.Stop()

	logging.Info().
		Int("max_connections", g.cfg.MaxConnections).
		Int("send_queue_size", g.cfg.SendQueueSize).
		Str("auth_mode", g.authenticator.Mode()).
		Msg("Gateway started")

	for {
		select {
		case <-ctx.Done():
			closed := g.registry.closeAll(websocket.CloseGoingAway, "server shutting down")
			logging.Info().Int("connections_closed", closed).Msg("Gateway stopped")
			return ctx.Err()
		case <-prune.C:
			if g.ipLimiter != nil {
				g.ipLimiter.prune(limiterIdleEviction)
			}
		}
	}
}

// String names the gateway in supervisor logs.
func (g *Gateway) String() string {
	return "gateway"
}

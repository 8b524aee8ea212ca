// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package gateway

import (
	"context"
	"time"

	"github.com/sokolive/soko/internal/logging"
	"github.com/sokolive/soko/internal/metrics"
	"github.com/sokolive/soko/internal/models"
)

// minSweepInterval floors the eviction cadence for very small pong
// timeouts.
const minSweepInterval = 100 * time.Millisecond

// Monitor drives the per-connection liveness state machine:
// Alive -> AwaitingPong -> (Alive | Evicted). Every ping interval it
// sends a ping frame to each live connection and arms a pong deadline;
// a faster sweep evicts connections whose deadline has passed, so a
// dead connection is removed close to pingInterval + pongTimeout
// rather than at the next ping tick.
type Monitor struct {
	registry     *Registry
	pingInterval time.Duration
	pongTimeout  time.Duration
}

func NewMonitor(r *Registry, pingInterval, pongTimeout time.Duration) *Monitor {
	return &Monitor{
		registry:     r,
		pingInterval: pingInterval,
		pongTimeout:  pongTimeout,
	}
}

// Serve runs the ping and sweep loops until the context is canceled.
func (m *Monitor) Serve(ctx context.Context) error {
	pings := time.NewTicker(m.pingInterval)
	defer pings.Stop()
	sweeps := time.NewTicker(m.sweepInterval())
	defer sweeps.Stop()

	logging.Info().
		Dur("ping_interval", m.pingInterval).
		Dur("pong_timeout", m.pongTimeout).
		Msg("Heartbeat monitor started")

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Heartbeat monitor stopped")
			return ctx.Err()
		case now := <-pings.C:
			m.ping(now)
		case now := <-sweeps.C:
			m.sweep(now)
		}
	}
}

func (m *Monitor) sweepInterval() time.Duration {
	d := m.pongTimeout / 2
	if d < minSweepInterval {
		d = minSweepInterval
	}
	if d > m.pingInterval {
		d = m.pingInterval
	}
	return d
}

// ping sends a ping frame to every Alive connection and arms its pong
// deadline. Connections already past a deadline are evicted instead.
// Sends are nonblocking, so one slow connection never delays the rest
// of the sweep.
func (m *Monitor) ping(now time.Time) {
	for _, c := range m.registry.snapshot() {
		if c.pingOverdue(now) {
			m.evict(c)
			continue
		}
		if c.awaitingPong() {
			continue
		}
		if _, err := c.enqueue(models.NewPingFrame()); err != nil {
			continue
		}
		c.armPing(now.Add(m.pongTimeout))
	}
}

// sweep evicts connections whose pong deadline has passed. O(active
// connections) per pass.
func (m *Monitor) sweep(now time.Time) {
	for _, c := range m.registry.snapshot() {
		if c.pingOverdue(now) {
			m.evict(c)
		}
	}
}

// evict removes a connection that failed its liveness check. A
// lifecycle transition, not an error: logged at info.
func (m *Monitor) evict(c *Conn) {
	metrics.HeartbeatTimeouts.Inc()
	logging.Info().
		Str("connection_id", c.ID).
		Str("user_id", c.Identity.UserID).
		Time("last_pong", c.LastPong()).
		Msg("Heartbeat timeout, evicting connection")
	c.close(models.CloseHeartbeatTimeout, "no pong within deadline")
	m.registry.Remove(c.ID)
}

// String names the monitor in supervisor logs.
func (m *Monitor) String() string {
	return "heartbeat-monitor"
}

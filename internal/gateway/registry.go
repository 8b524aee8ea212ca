// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package gateway

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sokolive/soko/internal/logging"
	"github.com/sokolive/soko/internal/metrics"
	"github.com/sokolive/soko/internal/models"
)

// Registry tracks every live connection and the namespace index over
// them. It is the only shared mutable state in the gateway: a single
// RWMutex with short write sections guards both maps, and all readers
// work on copied snapshots so concurrent admits and removals never
// invalidate an iteration in progress.
type Registry struct {
	mu          sync.RWMutex
	conns       map[string]*Conn
	byNamespace map[models.Namespace]map[string]*Conn

	capacity  int
	startedAt time.Time

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

func NewRegistry(capacity int) *Registry {
	return &Registry{
		conns:       make(map[string]*Conn),
		byNamespace: make(map[models.Namespace]map[string]*Conn),
		capacity:    capacity,
		startedAt:   time.Now(),
	}
}

// Admit registers an authenticated connection, enforcing the capacity
// ceiling. The connection's identity is immutable from here on.
func (r *Registry) Admit(c *Conn) error {
	r.mu.Lock()
	if len(r.conns) >= r.capacity {
		r.mu.Unlock()
		return ErrCapacityExceeded
	}
	r.conns[c.ID] = c
	total := len(r.conns)
	r.mu.Unlock()

	metrics.ConnectionsActive.Set(float64(total))
	metrics.ConnectionsTotal.Inc()
	logging.Info().
		Str("connection_id", c.ID).
		Str("user_id", logging.SanitizeUserID(c.Identity.UserID)).
		Str("role", c.Identity.Role.String()).
		Int("active", total).
		Msg("Connection admitted")
	return nil
}

// Remove deregisters a connection and drops its subscriptions.
// Idempotent; safe to call concurrently from the disconnect path and
// heartbeat eviction. Removal does not close the connection, that is
// the caller's job.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	c, ok := r.conns[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, id)
	for ns, set := range r.byNamespace {
		if _, subscribed := set[id]; subscribed {
			delete(set, id)
			metrics.SubscriptionsActive.WithLabelValues(ns.String()).Dec()
		}
	}
	total := len(r.conns)
	r.mu.Unlock()

	metrics.ConnectionsActive.Set(float64(total))
	logging.Debug().
		Str("connection_id", id).
		Str("user_id", logging.SanitizeUserID(c.Identity.UserID)).
		Int("active", total).
		Msg("Connection removed")
}

// Subscribe adds the connection to a namespace. Duplicate subscribes
// are no-ops.
func (r *Registry) Subscribe(id string, ns models.Namespace) error {
	if !ns.Valid() {
		return ErrInvalidNamespace
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return ErrUnknownConnection
	}

	set := r.byNamespace[ns]
	if set == nil {
		set = make(map[string]*Conn)
		r.byNamespace[ns] = set
	}
	if _, dup := set[id]; dup {
		return nil
	}
	set[id] = c
	metrics.SubscriptionsActive.WithLabelValues(ns.String()).Inc()
	return nil
}

// Unsubscribe removes the connection from a namespace. Unsubscribing
// a namespace the connection never joined is a no-op.
func (r *Registry) Unsubscribe(id string, ns models.Namespace) error {
	if !ns.Valid() {
		return ErrInvalidNamespace
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[id]; !ok {
		return ErrUnknownConnection
	}
	set := r.byNamespace[ns]
	if _, subscribed := set[id]; !subscribed {
		return nil
	}
	delete(set, id)
	metrics.SubscriptionsActive.WithLabelValues(ns.String()).Dec()
	return nil
}

// connectionsFor returns a copy of the subscriber set for fan-out.
// Admits and removals after the copy affect only later snapshots.
func (r *Registry) connectionsFor(ns models.Namespace) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byNamespace[ns]
	if len(set) == 0 {
		return nil
	}
	out := make([]*Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// snapshot returns a copy of all registered connections.
func (r *Registry) snapshot() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Stats is a point-in-time view of the registry for the stats
// endpoint.
type Stats struct {
	Connections     int            `json:"connections"`
	Capacity        int            `json:"capacity"`
	PerNamespace    map[string]int `json:"per_namespace"`
	PerRole         map[string]int `json:"per_role"`
	EventsDelivered uint64         `json:"events_delivered"`
	EventsDropped   uint64         `json:"events_dropped"`
	UptimeSeconds   int64          `json:"uptime_seconds"`
}

// Stats snapshots connection, subscription and delivery counts.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	perNamespace := make(map[string]int, len(r.byNamespace))
	for ns, set := range r.byNamespace {
		if len(set) > 0 {
			perNamespace[ns.String()] = len(set)
		}
	}
	perRole := make(map[string]int)
	for _, c := range r.conns {
		perRole[c.Identity.Role.String()]++
	}
	total := len(r.conns)
	r.mu.RUnlock()

	return Stats{
		Connections:     total,
		Capacity:        r.capacity,
		PerNamespace:    perNamespace,
		PerRole:         perRole,
		EventsDelivered: r.delivered.Load(),
		EventsDropped:   r.dropped.Load(),
		UptimeSeconds:   int64(time.Since(r.startedAt).Seconds()),
	}
}

func (r *Registry) addDelivered(n int) {
	if n > 0 {
		r.delivered.Add(uint64(n))
	}
}

func (r *Registry) addDropped(n int) {
	if n > 0 {
		r.dropped.Add(uint64(n))
	}
}

// closeAll notifies every connection of shutdown, closes them and
// drains the registry. Returns the number of connections closed.
// Safe to call concurrently with in-flight broadcasts, which keep
// working on their own snapshots.
func (r *Registry) closeAll(code int, text string) int {
	conns := r.snapshot()
	for _, c := range conns {
		_, _ = c.enqueue(models.NewErrorFrame(models.CodeServerShutdown, text))
		c.close(code, text)
	}

	r.mu.Lock()
	for ns, set := range r.byNamespace {
		if len(set) > 0 {
			metrics.SubscriptionsActive.WithLabelValues(ns.String()).Set(0)
		}
	}
	r.conns = make(map[string]*Conn)
	r.byNamespace = make(map[models.Namespace]map[string]*Conn)
	r.mu.Unlock()

	metrics.ConnectionsActive.Set(0)
	return len(conns)
}

// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Rejection reasons for soko_admissions_rejected_total. Closed set;
// admission code must not invent new ones ad hoc.
const (
	RejectCapacity         = "capacity"
	RejectOrigin           = "origin"
	RejectUnauthenticated  = "unauthenticated"
	RejectSessionExpired   = "session_expired"
	RejectStoreUnavailable = "store_unavailable"
	RejectAuthTimeout      = "auth_timeout"
	RejectMalformed        = "malformed"
	RejectPayloadTooLarge  = "payload_too_large"
	RejectRateLimited      = "rate_limited"
)

// Drop reasons for soko_events_dropped_total.
const (
	DropQueueFull        = "queue_full"
	DropConnectionClosed = "connection_closed"
)

var (
	// Connection Metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "soko_connections_active",
			Help: "Current number of registered WebSocket connections",
		},
	)

	ConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "soko_connections_total",
			Help: "Total number of connections admitted since start",
		},
	)

	AdmissionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soko_admissions_rejected_total",
			Help: "Total number of connection attempts rejected before registration",
		},
		[]string{"reason"},
	)

	SubscriptionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "soko_subscriptions_active",
			Help: "Current number of namespace subscriptions",
		},
		[]string{"namespace"},
	)

	// Broadcast Metrics
	EventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soko_events_emitted_total",
			Help: "Total number of events handed to the broadcaster",
		},
		[]string{"namespace"},
	)

	EventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soko_events_delivered_total",
			Help: "Total number of event frames enqueued to connections",
		},
		[]string{"namespace"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soko_events_dropped_total",
			Help: "Total number of event frames dropped instead of delivered",
		},
		[]string{"reason"},
	)

	BroadcastDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "soko_broadcast_duration_seconds",
			Help:    "Time to fan an event out to all eligible connections",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	// Per-connection traffic
	MessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "soko_messages_received_total",
			Help: "Total number of frames read from clients",
		},
	)

	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "soko_messages_sent_total",
			Help: "Total number of frames written to clients",
		},
	)

	RateLimitedFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "soko_rate_limited_frames_total",
			Help: "Total number of inbound frames rejected by the per-connection rate limiter",
		},
	)

	ProtocolViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soko_protocol_violations_total",
			Help: "Total number of protocol violations observed on established connections",
		},
		[]string{"kind"}, // "malformed", "oversized", "unexpected_type"
	)

	HeartbeatTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "soko_heartbeat_timeouts_total",
			Help: "Total number of connections closed for missing pong replies",
		},
	)

	// Authentication Metrics
	AuthResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soko_auth_results_total",
			Help: "Total number of handshake authentication attempts by outcome",
		},
		[]string{"mode", "result"}, // result: "ok", "unauthenticated", "expired", "role_mismatch", "store_unavailable"
	)

	SessionCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "soko_session_cache_hits_total",
			Help: "Total number of session verdicts served from cache",
		},
	)

	SessionCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "soko_session_cache_misses_total",
			Help: "Total number of session lookups that went to the store",
		},
	)

	SessionStoreBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "soko_session_store_breaker_state",
			Help: "Session store circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// HTTP API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soko_api_requests_total",
			Help: "Total number of HTTP API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "soko_api_request_duration_seconds",
			Help:    "HTTP API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "soko_api_active_requests",
			Help: "Current number of in-flight HTTP API requests",
		},
	)

	// Intake Metrics
	IntakeMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soko_intake_messages_total",
			Help: "Total number of intake messages by outcome",
		},
		[]string{"result"}, // "ok", "poison", "error"
	)

	IntakeLastEvent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "soko_intake_last_event_timestamp",
			Help: "Unix timestamp of the last event accepted from the intake",
		},
	)
)

// RecordAuthResult records one handshake authentication outcome.
func RecordAuthResult(mode, result string) {
	AuthResults.WithLabelValues(mode, result).Inc()
}

// RecordAdmissionRejected records one rejected connection attempt.
func RecordAdmissionRejected(reason string) {
	AdmissionsRejected.WithLabelValues(reason).Inc()
}

// RecordEventEmitted records one event entering the broadcaster.
func RecordEventEmitted(namespace string) {
	EventsEmitted.WithLabelValues(namespace).Inc()
}

// RecordEventDelivered records n frames enqueued for a namespace.
func RecordEventDelivered(namespace string, n int) {
	if n > 0 {
		EventsDelivered.WithLabelValues(namespace).Add(float64(n))
	}
}

// RecordEventDropped records n frames dropped for a reason.
func RecordEventDropped(reason string, n int) {
	if n > 0 {
		EventsDropped.WithLabelValues(reason).Add(float64(n))
	}
}

// ObserveBroadcast records the duration of one fan-out.
func ObserveBroadcast(d time.Duration) {
	BroadcastDuration.Observe(d.Seconds())
}

// RecordAPIRequest records one completed HTTP request.
func RecordAPIRequest(method, endpoint string, statusCode int, d time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(d.Seconds())
}

// RecordIntakeMessage records one intake message outcome.
func RecordIntakeMessage(result string) {
	IntakeMessages.WithLabelValues(result).Inc()
	if result == "ok" {
		IntakeLastEvent.SetToCurrentTime()
	}
}

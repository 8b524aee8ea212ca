// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/sokolive/soko/internal/auth"
	"github.com/sokolive/soko/internal/logging"
	"github.com/sokolive/soko/internal/metrics"
	"github.com/sokolive/soko/internal/models"
)

const handshakeTimeout = 10 * time.Second

// HandleWS upgrades GET /ws. Admission checks run strictly before
// authentication: per-IP upgrade rate limit, origin allow-list and a
// capacity precheck all reject at the HTTP layer, where the response
// can still carry a reason. Admit re-checks capacity after auth; the
// precheck only spares doomed handshakes the upgrade work.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r, g.sec.TrustedProxies)

	if g.ipLimiter != nil && !g.ipLimiter.allow(ip) {
		metrics.RecordAdmissionRejected(metrics.RejectRateLimited)
		http.Error(w, "upgrade rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	if origin := r.Header.Get("Origin"); !g.originAllowed(origin) {
		metrics.RecordAdmissionRejected(metrics.RejectOrigin)
		logging.Warn().
			Str("origin", origin).
			Str("remote_ip", ip).
			Msg("Connection rejected: origin not allowed")
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	if g.registry.Len() >= g.cfg.MaxConnections {
		metrics.RecordAdmissionRejected(metrics.RejectCapacity)
		http.Error(w, "connection capacity exceeded", http.StatusServiceUnavailable)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade writes its own HTTP error.
		logging.Debug().Err(err).Str("remote_ip", ip).Msg("Upgrade failed")
		return
	}

	g.handshake(r.Context(), ws, ip)
}

// handshake runs the post-upgrade auth exchange. The first frame must
// be an auth frame arriving within the auth timeout; nothing touches
// the registry until the credential verifies.
func (g *Gateway) handshake(ctx context.Context, ws *websocket.Conn, ip string) {
	ws.SetReadLimit(readLimit(g.cfg.MaxPayloadBytes))

	_ = ws.SetReadDeadline(time.Now().Add(g.sec.AuthTimeout))
	_, data, err := ws.ReadMessage()
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			metrics.RecordAdmissionRejected(metrics.RejectAuthTimeout)
			rejectWS(ws, models.CodeAdmissionDenied, "no auth frame received", websocket.CloseTryAgainLater)
			return
		}
		_ = ws.Close()
		return
	}

	frame, err := models.DecodeClientFrame(data)
	if err != nil {
		metrics.RecordAdmissionRejected(metrics.RejectMalformed)
		rejectWS(ws, models.CodeMalformedFrame, "first frame must be valid", models.CloseProtocolViolation)
		return
	}
	if frame.Type != models.FrameAuth {
		metrics.RecordAdmissionRejected(metrics.RejectMalformed)
		rejectWS(ws, models.CodeUnauthenticated, "first frame must be auth", models.CloseUnauthenticated)
		return
	}
	creds, err := frame.DecodeAuth()
	if err != nil {
		metrics.RecordAdmissionRejected(metrics.RejectMalformed)
		rejectWS(ws, models.CodeMalformedFrame, "bad auth payload", models.CloseProtocolViolation)
		return
	}

	authCtx, cancel := context.WithTimeout(ctx, g.sec.AuthTimeout)
	identity, err := g.authenticator.Authenticate(authCtx, creds)
	cancel()
	if err != nil {
		g.rejectAuth(ws, ip, err)
		return
	}
	metrics.RecordAuthResult(g.authenticator.Mode(), "ok")

	conn := newConn(g, ws, *identity)
	if err := g.registry.Admit(conn); err != nil {
		metrics.RecordAdmissionRejected(metrics.RejectCapacity)
		rejectWS(ws, models.CodeCapacityExceeded, "connection capacity exceeded", models.CloseCapacityExceeded)
		return
	}

	_ = ws.SetReadDeadline(time.Time{})
	_, _ = conn.enqueue(models.NewConnectedFrame(conn.ID))
	conn.start()
}

// rejectAuth maps an authentication failure onto the wire. Terminal
// failures get terminal codes so clients stop retrying; transient ones
// get a retryable code and close 1013.
func (g *Gateway) rejectAuth(ws *websocket.Conn, ip string, err error) {
	mode := g.authenticator.Mode()
	switch {
	case errors.Is(err, auth.ErrSessionExpired):
		metrics.RecordAuthResult(mode, "expired")
		metrics.RecordAdmissionRejected(metrics.RejectSessionExpired)
		rejectWS(ws, models.CodeSessionExpired, "session expired", models.CloseUnauthenticated)
	case errors.Is(err, auth.ErrStoreUnavailable):
		metrics.RecordAuthResult(mode, "store_unavailable")
		metrics.RecordAdmissionRejected(metrics.RejectStoreUnavailable)
		rejectWS(ws, models.CodeAdmissionDenied, "credential check unavailable, retry later", websocket.CloseTryAgainLater)
	case errors.Is(err, context.DeadlineExceeded):
		metrics.RecordAuthResult(mode, "timeout")
		metrics.RecordAdmissionRejected(metrics.RejectAuthTimeout)
		rejectWS(ws, models.CodeAdmissionDenied, "authentication timed out, retry later", websocket.CloseTryAgainLater)
	default:
		metrics.RecordAuthResult(mode, "denied")
		metrics.RecordAdmissionRejected(metrics.RejectUnauthenticated)
		// Token parse errors can quote credential material.
		logging.Info().
			Str("reason", logging.SanitizeError(err.Error())).
			Str("remote_ip", ip).
			Msg("Authentication rejected")
		rejectWS(ws, models.CodeUnauthenticated, "authentication failed", models.CloseUnauthenticated)
	}
}

// rejectWS sends an error frame and a close frame on a connection that
// never reached the registry, then closes the socket.
func rejectWS(ws *websocket.Conn, code models.ErrorCode, msg string, closeCode int) {
	deadline := time.Now().Add(writeWait)
	if data, err := models.NewErrorFrame(code, msg).Encode(); err == nil {
		_ = ws.SetWriteDeadline(deadline)
		_ = ws.WriteMessage(websocket.TextMessage, data)
	}
	_ = ws.SetWriteDeadline(deadline)
	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(closeCode, msg))
	_ = ws.Close()
}

// originAllowed applies the allow-list. Browsers always send Origin on
// websocket upgrades; an empty header means a non-browser client and
// is admitted only under the wildcard.
func (g *Gateway) originAllowed(origin string) bool {
	if g.allowAll {
		return true
	}
	if origin == "" {
		return false
	}
	for _, allowed := range g.sec.AllowedOrigins {
		if strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// readLimit is the transport hard cap. Frames over the policy ceiling
// but under the cap are rejected one by one in the read pump; anything
// larger poisons the read and tears the connection down outright.
func readLimit(maxPayload int64) int64 {
	return maxPayload * 2
}

// clientIP resolves the originating address, honoring forwarding
// headers only when the direct peer is a trusted proxy.
func clientIP(r *http.Request, trustedProxies []string) string {
	remote, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		remote = r.RemoteAddr
	}

	trusted := false
	for _, p := range trustedProxies {
		if p == remote {
			trusted = true
			break
		}
	}
	if !trusted {
		return remote
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" && net.ParseIP(xri) != nil {
		return xri
	}
	return remote
}

// ipLimiter rate-limits upgrade attempts per client IP. Entries for
// idle addresses are pruned from the gateway service loop.
type ipLimiter struct {
	mu      sync.Mutex
	entries map[string]*ipLimiterEntry
	rate    rate.Limit
	burst   int
}

type ipLimiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

func newIPLimiter(reqsPerWindow int, window time.Duration) *ipLimiter {
	return &ipLimiter{
		entries: make(map[string]*ipLimiterEntry),
		rate:    rate.Every(window),
		burst:   reqsPerWindow,
	}
}

// allow reports whether a request from the given IP may proceed.
func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	entry, exists := l.entries[ip]
	if !exists {
		entry = &ipLimiterEntry{
			limiter:    rate.NewLimiter(l.rate, l.burst),
			lastAccess: time.Now(),
		}
		l.entries[ip] = entry
	} else {
		entry.lastAccess = time.Now()
	}
	limiter := entry.limiter
	l.mu.Unlock()

	return limiter.Allow()
}

// prune drops entries idle longer than idleFor and returns how many
// were removed.
func (l *ipLimiter) prune(idleFor time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	threshold := time.Now().Add(-idleFor)
	removed := 0
	for ip, entry := range l.entries {
		if entry.lastAccess.Before(threshold) {
			delete(l.entries, ip)
			removed++
		}
	}
	return removed
}

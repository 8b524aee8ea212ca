// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/sokolive/soko/internal/config"
	"github.com/sokolive/soko/internal/logging"
	"github.com/sokolive/soko/internal/metrics"
	"github.com/sokolive/soko/internal/models"
	"github.com/sokolive/soko/internal/session"
)

// SessionAuthenticatorConfig tunes the verdict cache. Zero values
// disable caching, which is what the tests use to exercise the store
// on every call.
type SessionAuthenticatorConfig struct {
	CacheSize int
	CacheTTL  time.Duration
}

// SessionAuthenticator verifies handshake credentials against the
// session store. Lookups run through a circuit breaker so a failing
// store rejects admissions quickly instead of stalling them, and
// positive verdicts are cached briefly to keep reconnect storms off
// the store.
type SessionAuthenticator struct {
	store session.Store
	cb    *gobreaker.CircuitBreaker[*session.Session]
	cache *expirable.LRU[string, session.Session]
}

var _ Authenticator = (*SessionAuthenticator)(nil)

// NewSessionAuthenticator builds a store-backed authenticator.
//
// Breaker configuration:
//   - Opens after 60% failure rate with minimum 10 requests
//   - 1 minute measurement window
//   - 30 second timeout before attempting recovery
//   - Max 3 concurrent requests in half-open state
//
// Only infrastructure failures count against the breaker; a session
// that is merely unknown or expired is a valid answer from a healthy
// store.
func NewSessionAuthenticator(store session.Store, cfg SessionAuthenticatorConfig) *SessionAuthenticator {
	cbName := "session-store"
	metrics.SessionStoreBreakerState.Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[*session.Session](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, session.ErrNotFound) ||
				errors.Is(err, session.ErrExpired)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Session store breaker state changed")
			metrics.SessionStoreBreakerState.Set(breakerStateValue(to))
		},
	})

	a := &SessionAuthenticator{store: store, cb: cb}
	if cfg.CacheSize > 0 && cfg.CacheTTL > 0 {
		a.cache = expirable.NewLRU[string, session.Session](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return a
}

// Authenticate verifies the presented session ID and checks the
// claimed identity against the stored one. The returned Identity is
// built from the store's record, never from the client's claims.
func (a *SessionAuthenticator) Authenticate(ctx context.Context, creds *models.AuthData) (*Identity, error) {
	if creds == nil || creds.SessionID == "" {
		return nil, ErrNoCredentials
	}
	if credentialExpired(creds) {
		return nil, ErrSessionExpired
	}

	s, err := a.lookup(ctx, creds.SessionID)
	if err != nil {
		return nil, err
	}

	if creds.UserID != "" && creds.UserID != s.UserID {
		return nil, ErrUnauthenticated
	}
	if creds.Role != "" && models.Role(creds.Role) != s.Role {
		return nil, ErrRoleMismatch
	}

	return &Identity{
		UserID:    s.UserID,
		Role:      s.Role,
		SessionID: s.ID,
		Method:    config.AuthModeSession,
	}, nil
}

// lookup resolves a session ID through the cache and breaker.
func (a *SessionAuthenticator) lookup(ctx context.Context, id string) (*session.Session, error) {
	if a.cache != nil {
		if cached, ok := a.cache.Get(id); ok {
			if cached.IsExpired() {
				a.cache.Remove(id)
				return nil, ErrSessionExpired
			}
			metrics.SessionCacheHits.Inc()
			return &cached, nil
		}
		metrics.SessionCacheMisses.Inc()
	}

	s, err := a.cb.Execute(func() (*session.Session, error) {
		return a.store.Get(ctx, id)
	})
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound):
			return nil, ErrUnauthenticated
		case errors.Is(err, session.ErrExpired):
			return nil, ErrSessionExpired
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return nil, ErrStoreUnavailable
		default:
			logging.Warn().Err(err).Msg("Session store lookup failed")
			return nil, ErrStoreUnavailable
		}
	}

	if a.cache != nil {
		a.cache.Add(id, *s)
	}
	return s, nil
}

// Mode returns "session".
func (a *SessionAuthenticator) Mode() string {
	return config.AuthModeSession
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sokolive/soko/internal/config"
	"github.com/sokolive/soko/internal/models"
	"github.com/sokolive/soko/internal/session"
)

// Authentication errors. The gateway maps these onto wire error codes;
// anything not in this set is treated as ErrUnauthenticated.
var (
	// ErrNoCredentials means the auth frame carried neither a session
	// ID nor a token.
	ErrNoCredentials = errors.New("no credentials presented")

	// ErrUnauthenticated means the credentials did not verify.
	ErrUnauthenticated = errors.New("authentication failed")

	// ErrSessionExpired means the credentials were once valid but have
	// passed their expiry.
	ErrSessionExpired = errors.New("session expired")

	// ErrRoleMismatch means the client claimed a role different from
	// the one its credentials carry.
	ErrRoleMismatch = errors.New("claimed role does not match credentials")

	// ErrStoreUnavailable means the session store could not be
	// consulted. The client may retry; its credentials were not
	// judged.
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// Identity is a verified client identity. Fields come from the
// credential source, never from the client's claims.
type Identity struct {
	UserID    string
	Role      models.Role
	SessionID string
	Method    string
}

// Authenticator verifies handshake credentials.
type Authenticator interface {
	// Authenticate verifies creds and returns the identity they prove.
	// The context bounds any store round-trip.
	Authenticate(ctx context.Context, creds *models.AuthData) (*Identity, error)

	// Mode returns the auth mode name for logs and /info.
	Mode() string
}

// credentialExpired reports whether the credential carries an expiry
// claim that has already passed. Every mode rejects such credentials
// before verifying anything else; the authoritative expiry (store
// record, JWT exp) is checked separately where one exists.
func credentialExpired(creds *models.AuthData) bool {
	return !creds.ExpiresAt.IsZero() && time.Now().After(creds.ExpiresAt)
}

// New builds the authenticator selected by cfg.AuthMode. The session
// store is only required for session mode and may be nil otherwise.
func New(cfg *config.SecurityConfig, store session.Store) (Authenticator, error) {
	switch cfg.AuthMode {
	case config.AuthModeSession:
		if store == nil {
			return nil, fmt.Errorf("auth mode %q requires a session store", cfg.AuthMode)
		}
		return NewSessionAuthenticator(store, SessionAuthenticatorConfig{
			CacheSize: cfg.SessionCacheSize,
			CacheTTL:  cfg.SessionCacheTTL,
		}), nil
	case config.AuthModeToken:
		return NewTokenAuthenticator(cfg.JWTSecret)
	case config.AuthModeInsecure:
		return NewInsecureAuthenticator(), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.AuthMode)
	}
}

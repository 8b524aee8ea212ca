// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package session

import (
	"context"
	"errors"
	"time"

	"github.com/sokolive/soko/internal/models"
)

// Store errors. Backends translate their native not-found conditions
// into ErrNotFound so callers never see backend-specific sentinels.
var (
	ErrNotFound = errors.New("session not found")
	ErrExpired  = errors.New("session expired")
	ErrInvalid  = errors.New("session invalid")
)

// Session is a single authenticated commerce-app session. The gateway
// treats sessions as opaque facts: it never mints or extends them, it
// only checks that the presented ID maps to a live entry whose role
// matches the one claimed in the handshake.
type Session struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	Role      models.Role `json:"role"`
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// IsExpired reports whether the session has passed its expiry.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Validate checks the fields a session must carry before it is stored.
func (s *Session) Validate() error {
	switch {
	case s == nil:
		return ErrInvalid
	case s.ID == "":
		return errors.New("session id is required")
	case s.UserID == "":
		return errors.New("session user id is required")
	case !s.Role.Valid():
		return errors.New("session role is not recognized")
	case s.ExpiresAt.IsZero():
		return errors.New("session expiry is required")
	default:
		return nil
	}
}

// Store is the persistence contract shared by all session backends.
// Get returns ErrNotFound for unknown IDs and ErrExpired for sessions
// past their expiry; an expired session is as good as absent to the
// authenticator, but the distinct error lets the gateway tell the
// client why it was refused.
type Store interface {
	Put(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	DeleteByUserID(ctx context.Context, userID string) (int, error)
	Close() error
}

// Pruner is implemented by stores that need periodic cleanup of
// expired rows. Badger handles expiry natively through entry TTLs and
// does not implement it.
type Pruner interface {
	DeleteExpired(ctx context.Context) (int, error)
}

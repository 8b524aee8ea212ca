// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package auth

import (
	"context"
	"fmt"

	"github.com/sokolive/soko/internal/config"
	"github.com/sokolive/soko/internal/logging"
	"github.com/sokolive/soko/internal/models"
)

// InsecureAuthenticator accepts whatever identity the client claims.
// Local development only; config validation refuses it in production.
type InsecureAuthenticator struct{}

var _ Authenticator = (*InsecureAuthenticator)(nil)

// NewInsecureAuthenticator returns the trusting authenticator and
// logs loudly about it.
func NewInsecureAuthenticator() *InsecureAuthenticator {
	logging.Warn().Msg("Auth mode is insecure: claimed identities are trusted without verification")
	return &InsecureAuthenticator{}
}

// Authenticate accepts the claimed identity. An empty role claim
// becomes guest; an unknown role is still rejected so the rest of the
// gateway never sees a role outside the taxonomy.
func (a *InsecureAuthenticator) Authenticate(_ context.Context, creds *models.AuthData) (*Identity, error) {
	if creds == nil {
		return nil, ErrNoCredentials
	}
	if credentialExpired(creds) {
		return nil, ErrSessionExpired
	}

	role := models.RoleGuest
	if creds.Role != "" {
		parsed, err := models.ParseRole(creds.Role)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
		}
		role = parsed
	}

	return &Identity{
		UserID:    creds.UserID,
		Role:      role,
		SessionID: creds.SessionID,
		Method:    config.AuthModeInsecure,
	}, nil
}

// Mode returns "insecure".
func (a *InsecureAuthenticator) Mode() string {
	return config.AuthModeInsecure
}

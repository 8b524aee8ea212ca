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

	"github.com/golang-jwt/jwt/v5"

	"github.com/sokolive/soko/internal/config"
	"github.com/sokolive/soko/internal/models"
)

const minSecretLength = 32

// TokenClaims are the JWT claims the gateway understands. The commerce
// app mints these at login; the gateway only verifies.
type TokenClaims struct {
	UserID string `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// TokenAuthenticator verifies JWTs signed with a shared HMAC secret.
// Verification is local: no store round-trip, and no revocation before
// the token expires.
//
// Only HMAC signing methods are accepted; a token whose header names
// any other algorithm is rejected before the secret is consulted.
type TokenAuthenticator struct {
	secret []byte
}

var _ Authenticator = (*TokenAuthenticator)(nil)

// NewTokenAuthenticator builds a token authenticator. The secret must
// be at least 32 characters.
func NewTokenAuthenticator(secret string) (*TokenAuthenticator, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d characters", minSecretLength)
	}
	return &TokenAuthenticator{secret: []byte(secret)}, nil
}

// Authenticate verifies the presented token and checks any claimed
// identity against the token's claims.
func (a *TokenAuthenticator) Authenticate(_ context.Context, creds *models.AuthData) (*Identity, error) {
	if creds == nil || creds.Token == "" {
		return nil, ErrNoCredentials
	}
	if credentialExpired(creds) {
		return nil, ErrSessionExpired
	}

	claims, err := a.verify(creds.Token)
	if err != nil {
		return nil, err
	}

	role := models.Role(claims.Role)
	if !role.Valid() {
		return nil, fmt.Errorf("%w: token carries unknown role %q", ErrUnauthenticated, claims.Role)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: token carries no user id", ErrUnauthenticated)
	}

	if creds.UserID != "" && creds.UserID != claims.UserID {
		return nil, ErrUnauthenticated
	}
	if creds.Role != "" && models.Role(creds.Role) != role {
		return nil, ErrRoleMismatch
	}

	return &Identity{
		UserID:    claims.UserID,
		Role:      role,
		SessionID: claims.ID,
		Method:    config.AuthModeToken,
	}, nil
}

func (a *TokenAuthenticator) verify(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token claims", ErrUnauthenticated)
	}
	return claims, nil
}

// GenerateToken mints a token for userID with the given role and
// lifetime. The gateway itself never calls this in the serving path;
// it exists for the commerce app's tooling and for tests.
func (a *TokenAuthenticator) GenerateToken(userID string, role models.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &TokenClaims{
		UserID: userID,
		Role:   string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Mode returns "token".
func (a *TokenAuthenticator) Mode() string {
	return config.AuthModeToken
}

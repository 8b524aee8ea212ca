// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sokolive/soko/internal/models"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestTokenAuthenticator(t *testing.T) *TokenAuthenticator {
	t.Helper()
	a, err := NewTokenAuthenticator(testSecret)
	if err != nil {
		t.Fatalf("NewTokenAuthenticator() error = %v", err)
	}
	return a
}

func TestNewTokenAuthenticatorRejectsShortSecret(t *testing.T) {
	t.Parallel()

	if _, err := NewTokenAuthenticator("short"); err == nil {
		t.Error("NewTokenAuthenticator() accepted a short secret")
	}
	if _, err := NewTokenAuthenticator(strings.Repeat("x", 31)); err == nil {
		t.Error("NewTokenAuthenticator() accepted a 31-character secret")
	}
}

func TestTokenAuthenticateRoundTrip(t *testing.T) {
	t.Parallel()

	a := newTestTokenAuthenticator(t)
	token, err := a.GenerateToken("user-7", models.RoleStaff, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	id, err := a.Authenticate(context.Background(), &models.AuthData{Token: token})
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if id.UserID != "user-7" || id.Role != models.RoleStaff {
		t.Errorf("Authenticate() = %+v, want user-7/staff", id)
	}
	if id.Method != "token" {
		t.Errorf("Method = %q, want token", id.Method)
	}
}

func TestTokenAuthenticateFailures(t *testing.T) {
	t.Parallel()

	a := newTestTokenAuthenticator(t)

	valid, err := a.GenerateToken("user-7", models.RoleStaff, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	expired, err := a.GenerateToken("user-7", models.RoleStaff, -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	other, err := NewTokenAuthenticator(strings.Repeat("z", 32))
	if err != nil {
		t.Fatalf("NewTokenAuthenticator() error = %v", err)
	}
	foreign, err := other.GenerateToken("user-7", models.RoleStaff, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	unknownRole, err := a.GenerateToken("user-7", models.Role("root"), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	tests := []struct {
		name    string
		creds   *models.AuthData
		wantErr error
	}{
		{"nil credentials", nil, ErrNoCredentials},
		{"empty token", &models.AuthData{}, ErrNoCredentials},
		{"garbage token", &models.AuthData{Token: "not.a.jwt"}, ErrUnauthenticated},
		{"expired token", &models.AuthData{Token: expired}, ErrSessionExpired},
		{"wrong secret", &models.AuthData{Token: foreign}, ErrUnauthenticated},
		{"unknown role in token", &models.AuthData{Token: unknownRole}, ErrUnauthenticated},
		{"claimed role mismatch", &models.AuthData{Token: valid, Role: "admin"}, ErrRoleMismatch},
		{"claimed user mismatch", &models.AuthData{Token: valid, UserID: "user-8"}, ErrUnauthenticated},
		{"claimed expiry in the past", &models.AuthData{Token: valid, ExpiresAt: time.Now().Add(-time.Minute)}, ErrSessionExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.Authenticate(context.Background(), tt.creds); !errors.Is(err, tt.wantErr) {
				t.Errorf("Authenticate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTokenAuthenticateRejectsUnsignedToken(t *testing.T) {
	t.Parallel()

	a := newTestTokenAuthenticator(t)

	claims := &TokenClaims{
		UserID: "user-7",
		Role:   "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign with none: %v", err)
	}

	if _, err := a.Authenticate(context.Background(), &models.AuthData{Token: unsigned}); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Authenticate() error = %v, want ErrUnauthenticated for alg=none", err)
	}
}

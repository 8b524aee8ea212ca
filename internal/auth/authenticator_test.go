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

	"github.com/sokolive/soko/internal/config"
	"github.com/sokolive/soko/internal/models"
)

func TestNew(t *testing.T) {
	t.Parallel()

	store := newFakeStore()

	tests := []struct {
		name      string
		cfg       config.SecurityConfig
		withStore bool
		wantMode  string
		wantErr   bool
	}{
		{
			name:      "session mode",
			cfg:       config.SecurityConfig{AuthMode: config.AuthModeSession, SessionCacheSize: 64, SessionCacheTTL: time.Minute},
			withStore: true,
			wantMode:  "session",
		},
		{
			name:    "session mode without store",
			cfg:     config.SecurityConfig{AuthMode: config.AuthModeSession},
			wantErr: true,
		},
		{
			name:     "token mode",
			cfg:      config.SecurityConfig{AuthMode: config.AuthModeToken, JWTSecret: strings.Repeat("k", 32)},
			wantMode: "token",
		},
		{
			name:    "token mode with short secret",
			cfg:     config.SecurityConfig{AuthMode: config.AuthModeToken, JWTSecret: "short"},
			wantErr: true,
		},
		{
			name:     "insecure mode",
			cfg:      config.SecurityConfig{AuthMode: config.AuthModeInsecure},
			wantMode: "insecure",
		},
		{
			name:    "unknown mode",
			cfg:     config.SecurityConfig{AuthMode: "kerberos"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s *fakeStore
			if tt.withStore {
				s = store
			}
			var a Authenticator
			var err error
			if s != nil {
				a, err = New(&tt.cfg, s)
			} else {
				a, err = New(&tt.cfg, nil)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if a.Mode() != tt.wantMode {
				t.Errorf("Mode() = %q, want %q", a.Mode(), tt.wantMode)
			}
		})
	}
}

func TestInsecureAuthenticate(t *testing.T) {
	t.Parallel()

	a := NewInsecureAuthenticator()
	ctx := context.Background()

	id, err := a.Authenticate(ctx, &models.AuthData{UserID: "dev-user", Role: "admin"})
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if id.UserID != "dev-user" || id.Role != models.RoleAdmin {
		t.Errorf("Authenticate() = %+v, want claimed identity", id)
	}

	id, err = a.Authenticate(ctx, &models.AuthData{})
	if err != nil {
		t.Fatalf("Authenticate() with empty claims error = %v", err)
	}
	if id.Role != models.RoleGuest {
		t.Errorf("empty role claim became %q, want guest", id.Role)
	}

	if _, err := a.Authenticate(ctx, &models.AuthData{Role: "root"}); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Authenticate() with unknown role error = %v, want ErrUnauthenticated", err)
	}

	if _, err := a.Authenticate(ctx, nil); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("Authenticate(nil) error = %v, want ErrNoCredentials", err)
	}

	// Even the trusting mode rejects a credential past its claimed
	// expiry.
	expired := &models.AuthData{UserID: "dev-user", Role: "admin", ExpiresAt: time.Now().Add(-time.Minute)}
	if _, err := a.Authenticate(ctx, expired); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("Authenticate() with past expiry error = %v, want ErrSessionExpired", err)
	}
}

// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sokolive/soko/internal/models"
	"github.com/sokolive/soko/internal/session"
)

// fakeStore is a programmable session store that counts lookups.
type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]session.Session
	failWith error
	getCalls int
}

func newFakeStore(sessions ...session.Session) *fakeStore {
	f := &fakeStore{sessions: make(map[string]session.Session)}
	for _, s := range sessions {
		f.sessions[s.ID] = s
	}
	return f
}

func (f *fakeStore) Get(_ context.Context, id string) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.failWith != nil {
		return nil, f.failWith
	}
	s, ok := f.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	if s.IsExpired() {
		return nil, session.ErrExpired
	}
	cp := s
	return &cp, nil
}

func (f *fakeStore) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls
}

func (f *fakeStore) Put(_ context.Context, s *session.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = *s
	return nil
}

func (f *fakeStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
	return nil
}

func (f *fakeStore) DeleteByUserID(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for id, s := range f.sessions {
		if s.UserID == userID {
			delete(f.sessions, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) Close() error { return nil }

func liveSession(id, userID string, role models.Role) session.Session {
	now := time.Now()
	return session.Session{
		ID:        id,
		UserID:    userID,
		Role:      role,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestSessionAuthenticate(t *testing.T) {
	t.Parallel()

	store := newFakeStore(liveSession("sess-1", "user-1", models.RoleManager))
	a := NewSessionAuthenticator(store, SessionAuthenticatorConfig{})

	tests := []struct {
		name    string
		creds   *models.AuthData
		wantErr error
	}{
		{
			name:  "valid session without claims",
			creds: &models.AuthData{SessionID: "sess-1"},
		},
		{
			name:  "valid session with matching claims",
			creds: &models.AuthData{SessionID: "sess-1", UserID: "user-1", Role: "manager"},
		},
		{
			name:    "nil credentials",
			creds:   nil,
			wantErr: ErrNoCredentials,
		},
		{
			name:    "missing session id",
			creds:   &models.AuthData{UserID: "user-1"},
			wantErr: ErrNoCredentials,
		},
		{
			name:    "unknown session",
			creds:   &models.AuthData{SessionID: "sess-unknown"},
			wantErr: ErrUnauthenticated,
		},
		{
			name:    "claimed role does not match",
			creds:   &models.AuthData{SessionID: "sess-1", Role: "admin"},
			wantErr: ErrRoleMismatch,
		},
		{
			name:    "claimed expiry in the past",
			creds:   &models.AuthData{SessionID: "sess-1", ExpiresAt: time.Now().Add(-time.Minute)},
			wantErr: ErrSessionExpired,
		},
		{
			name:    "claimed user does not match",
			creds:   &models.AuthData{SessionID: "sess-1", UserID: "someone-else"},
			wantErr: ErrUnauthenticated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := a.Authenticate(context.Background(), tt.creds)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Authenticate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authenticate() error = %v", err)
			}
			if id.UserID != "user-1" || id.Role != models.RoleManager || id.SessionID != "sess-1" {
				t.Errorf("Authenticate() = %+v, want store-backed identity", id)
			}
			if id.Method != "session" {
				t.Errorf("Method = %q, want session", id.Method)
			}
		})
	}
}

func TestSessionAuthenticateExpired(t *testing.T) {
	t.Parallel()

	expired := liveSession("sess-old", "user-1", models.RoleStaff)
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	store := newFakeStore(expired)
	a := NewSessionAuthenticator(store, SessionAuthenticatorConfig{})

	_, err := a.Authenticate(context.Background(), &models.AuthData{SessionID: "sess-old"})
	if !errors.Is(err, ErrSessionExpired) {
		t.Errorf("Authenticate() error = %v, want ErrSessionExpired", err)
	}
}

func TestSessionAuthenticateStoreError(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.failWith = errors.New("connection refused")
	a := NewSessionAuthenticator(store, SessionAuthenticatorConfig{})

	_, err := a.Authenticate(context.Background(), &models.AuthData{SessionID: "sess-1"})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Authenticate() error = %v, want ErrStoreUnavailable", err)
	}
}

func TestSessionAuthenticateCaching(t *testing.T) {
	t.Parallel()

	store := newFakeStore(liveSession("sess-1", "user-1", models.RoleCustomer))
	a := NewSessionAuthenticator(store, SessionAuthenticatorConfig{
		CacheSize: 16,
		CacheTTL:  time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := a.Authenticate(ctx, &models.AuthData{SessionID: "sess-1"}); err != nil {
			t.Fatalf("Authenticate() #%d error = %v", i, err)
		}
	}

	if calls := store.calls(); calls != 1 {
		t.Errorf("store lookups = %d, want 1 (verdict cached)", calls)
	}
}

func TestSessionAuthenticateNegativeVerdictsNotCached(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	a := NewSessionAuthenticator(store, SessionAuthenticatorConfig{
		CacheSize: 16,
		CacheTTL:  time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := a.Authenticate(ctx, &models.AuthData{SessionID: "nope"}); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("Authenticate() error = %v, want ErrUnauthenticated", err)
		}
	}

	// A session registered after failed attempts must be usable at
	// once, so failures cannot be cached.
	if calls := store.calls(); calls != 3 {
		t.Errorf("store lookups = %d, want 3", calls)
	}
}

func TestSessionAuthenticateBreakerOpens(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.failWith = errors.New("connection refused")
	a := NewSessionAuthenticator(store, SessionAuthenticatorConfig{})
	ctx := context.Background()

	// Saturate the breaker with infrastructure failures.
	for i := 0; i < 12; i++ {
		_, _ = a.Authenticate(ctx, &models.AuthData{SessionID: "sess-1"})
	}
	callsWhenOpen := store.calls()
	if callsWhenOpen >= 12 {
		t.Fatalf("store lookups = %d, want breaker to stop lookups before 12", callsWhenOpen)
	}

	// Open breaker answers without touching the store.
	_, err := a.Authenticate(ctx, &models.AuthData{SessionID: "sess-1"})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Authenticate() error = %v, want ErrStoreUnavailable", err)
	}
	if store.calls() != callsWhenOpen {
		t.Errorf("store lookups grew to %d while breaker open", store.calls())
	}
}

func TestSessionAuthenticateInvalidSessionsDoNotTripBreaker(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	a := NewSessionAuthenticator(store, SessionAuthenticatorConfig{})
	ctx := context.Background()

	// A burst of unknown sessions is a healthy store answering
	// truthfully; it must not open the breaker.
	for i := 0; i < 20; i++ {
		if _, err := a.Authenticate(ctx, &models.AuthData{SessionID: "nope"}); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("Authenticate() error = %v, want ErrUnauthenticated", err)
		}
	}
	if calls := store.calls(); calls != 20 {
		t.Errorf("store lookups = %d, want 20 (breaker must stay closed)", calls)
	}
}

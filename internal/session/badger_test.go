// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sokolive/soko/internal/models"
)

func newTestBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBadgerStore() error = %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return store
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestBadgerStore(t)
	ctx := context.Background()

	want := testSession("sess-1", "user-1", models.RoleManager, time.Hour)
	if err := store.Put(ctx, want); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != want.ID || got.UserID != want.UserID || got.Role != want.Role {
		t.Errorf("Get() = %+v, want id/user/role of %+v", got, want)
	}
}

func TestBadgerStoreGetMissing(t *testing.T) {
	t.Parallel()

	store := newTestBadgerStore(t)
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestBadgerStoreGetExpired(t *testing.T) {
	t.Parallel()

	store := newTestBadgerStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, testSession("sess-exp", "user-1", models.RoleGuest, 20*time.Millisecond)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	// The entry TTL carries a retention pad, so a just-expired session
	// is still readable and reports ErrExpired rather than ErrNotFound.
	if _, err := store.Get(ctx, "sess-exp"); !errors.Is(err, ErrExpired) {
		t.Errorf("Get() error = %v, want ErrExpired", err)
	}
}

func TestBadgerStorePutAlreadyExpired(t *testing.T) {
	t.Parallel()

	store := newTestBadgerStore(t)
	s := testSession("sess-old", "user-1", models.RoleStaff, -2*time.Hour)
	if err := store.Put(context.Background(), s); err == nil {
		t.Error("Put() accepted a session already past expiry plus retention")
	}
}

func TestBadgerStoreDelete(t *testing.T) {
	t.Parallel()

	store := newTestBadgerStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, testSession("sess-1", "user-1", models.RoleAdmin, time.Hour)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Delete(ctx, "sess-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, "sess-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "sess-1"); err != nil {
		t.Errorf("repeat Delete() error = %v", err)
	}
}

func TestBadgerStoreDeleteByUserID(t *testing.T) {
	t.Parallel()

	store := newTestBadgerStore(t)
	ctx := context.Background()

	for _, s := range []*Session{
		testSession("a1", "alice", models.RoleCustomer, time.Hour),
		testSession("a2", "alice", models.RoleCustomer, time.Hour),
		testSession("b1", "bob", models.RoleCustomer, time.Hour),
	} {
		if err := store.Put(ctx, s); err != nil {
			t.Fatalf("Put(%s) error = %v", s.ID, err)
		}
	}

	removed, err := store.DeleteByUserID(ctx, "alice")
	if err != nil {
		t.Fatalf("DeleteByUserID() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("DeleteByUserID() removed = %d, want 2", removed)
	}

	if _, err := store.Get(ctx, "a1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(a1) error = %v, want ErrNotFound", err)
	}
	if _, err := store.Get(ctx, "b1"); err != nil {
		t.Errorf("unrelated session lost: %v", err)
	}
}

func TestBadgerStorePersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewBadgerStore(dir)
	if err != nil {
		t.Fatalf("NewBadgerStore() error = %v", err)
	}
	if err := store.Put(ctx, testSession("sess-1", "user-1", models.RoleStaff, time.Hour)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := NewBadgerStore(dir)
	if err != nil {
		t.Fatalf("reopen NewBadgerStore() error = %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if got.UserID != "user-1" {
		t.Errorf("Get() after reopen UserID = %q, want user-1", got.UserID)
	}
}

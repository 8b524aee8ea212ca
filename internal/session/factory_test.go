// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package session

import (
	"context"
	"testing"
)

func TestNewStore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     StoreConfig
		wantErr bool
	}{
		{"memory", StoreConfig{Backend: BackendMemory}, false},
		{"badger", StoreConfig{Backend: BackendBadger, BadgerDir: t.TempDir()}, false},
		{"badger missing dir", StoreConfig{Backend: BackendBadger}, true},
		{"postgres missing dsn", StoreConfig{Backend: BackendPostgres}, true},
		{"unknown backend", StoreConfig{Backend: "etcd"}, true},
		{"empty backend", StoreConfig{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewStore(context.Background(), tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewStore() error = %v, wantErr %v", err, tt.wantErr)
			}
			if store != nil {
				if err := store.Close(); err != nil {
					t.Errorf("Close() error = %v", err)
				}
			}
		})
	}
}

func TestPostgresDSNRejected(t *testing.T) {
	t.Parallel()

	_, err := NewPostgresStore(context.Background(), "://not-a-dsn")
	if err == nil {
		t.Fatal("NewPostgresStore() accepted a malformed dsn")
	}
}

// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package session

import (
	"context"
	"fmt"
)

// Supported store backends.
const (
	BackendMemory   = "memory"
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
)

// StoreConfig selects and parameterizes a session store backend.
type StoreConfig struct {
	Backend     string
	BadgerDir   string
	PostgresDSN string
}

// NewStore builds the session store named by cfg.Backend.
func NewStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendBadger:
		if cfg.BadgerDir == "" {
			return nil, fmt.Errorf("session store %q requires a data directory", cfg.Backend)
		}
		return NewBadgerStore(cfg.BadgerDir)
	case BackendPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("session store %q requires a dsn", cfg.Backend)
		}
		return NewPostgresStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown session store backend %q", cfg.Backend)
	}
}

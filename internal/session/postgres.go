// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sokolive/soko/internal/models"
)

// Schema is created on startup so the gateway can point at an empty
// database. IF NOT EXISTS keeps it safe against a schema the commerce
// application already owns.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS gateway_sessions (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	role       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS gateway_sessions_user_idx ON gateway_sessions (user_id);
CREATE INDEX IF NOT EXISTS gateway_sessions_expires_idx ON gateway_sessions (expires_at);
`

// PostgresStore persists sessions in PostgreSQL through a pgx pool,
// for deployments that share the commerce application's database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)
var _ Pruner = (*PostgresStore)(nil)

// NewPostgresStore connects to dsn, verifies the connection and
// ensures the session schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create session schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Ready reports whether the database answers a trivial query.
func (p *PostgresStore) Ready(ctx context.Context) error {
	var one int
	if err := p.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("postgres not ready: %w", err)
	}
	return nil
}

// Put upserts the session row.
func (p *PostgresStore) Put(ctx context.Context, s *Session) error {
	if err := s.Validate(); err != nil {
		return err
	}
	const q = `
		INSERT INTO gateway_sessions (id, user_id, role, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET user_id = EXCLUDED.user_id,
		    role = EXCLUDED.role,
		    expires_at = EXCLUDED.expires_at`
	createdAt := s.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	if _, err := p.pool.Exec(ctx, q, s.ID, s.UserID, string(s.Role), createdAt, s.ExpiresAt); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// Get loads the session row for id.
func (p *PostgresStore) Get(ctx context.Context, id string) (*Session, error) {
	const q = `
		SELECT id, user_id, role, created_at, expires_at
		FROM gateway_sessions
		WHERE id = $1`
	var (
		s    Session
		role string
	)
	err := p.pool.QueryRow(ctx, q, id).Scan(&s.ID, &s.UserID, &role, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read session: %w", err)
	}
	s.Role = models.Role(role)
	if s.IsExpired() {
		return nil, ErrExpired
	}
	return &s, nil
}

// Delete removes the session row for id.
func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := p.pool.Exec(ctx, "DELETE FROM gateway_sessions WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteByUserID removes every session row belonging to userID.
func (p *PostgresStore) DeleteByUserID(ctx context.Context, userID string) (int, error) {
	tag, err := p.pool.Exec(ctx, "DELETE FROM gateway_sessions WHERE user_id = $1", userID)
	if err != nil {
		return 0, fmt.Errorf("delete sessions for user: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// DeleteExpired removes every session row past its expiry.
func (p *PostgresStore) DeleteExpired(ctx context.Context) (int, error) {
	tag, err := p.pool.Exec(ctx, "DELETE FROM gateway_sessions WHERE expires_at < now()")
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Close releases the connection pool.
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

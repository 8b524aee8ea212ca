// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package config

import (
	"fmt"
	"time"
)

// Config holds all gateway configuration. It is assembled by Load from
// defaults, an optional YAML file and environment variables, validated
// once, and then treated as read-only.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Gateway  GatewayConfig  `koanf:"gateway"`
	Security SecurityConfig `koanf:"security"`
	Intake   IntakeConfig   `koanf:"intake"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
//
// Environment Variables:
//   - HTTP_PORT: Listen port (default: 8443)
//   - HTTP_HOST: Bind address (default: 0.0.0.0)
//   - HTTP_TIMEOUT: Read/write timeout for plain HTTP endpoints (default: 30s)
//   - ENVIRONMENT: "development" or "production" (default: development)
type ServerConfig struct {
	Port        int           `koanf:"port"`
	Host        string        `koanf:"host"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"`
}

// Addr returns the host:port listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsProduction reports whether the server runs in production mode.
// Production mode tightens validation: wildcard origins and the
// insecure auth mode are rejected.
func (c ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

// GatewayConfig holds the realtime gateway tunables.
//
// Environment Variables:
//   - MAX_CONNECTIONS: Connection admission ceiling (default: 10000)
//   - PING_INTERVAL: Server heartbeat cadence (default: 30s)
//   - PONG_TIMEOUT: Grace period for a pong reply (default: 5s)
//   - SEND_QUEUE_SIZE: Per-connection outbound queue depth (default: 256)
//   - RATE_LIMIT_EVENTS: Inbound frames allowed per window (default: 100)
//   - RATE_LIMIT_WINDOW: Inbound frame window length (default: 60s)
//   - MAX_PAYLOAD_BYTES: Inbound frame size ceiling (default: 1048576)
//   - VIOLATION_LIMIT: Protocol violations tolerated before disconnect (default: 5)
type GatewayConfig struct {
	MaxConnections  int           `koanf:"max_connections"`
	PingInterval    time.Duration `koanf:"ping_interval"`
	PongTimeout     time.Duration `koanf:"pong_timeout"`
	SendQueueSize   int           `koanf:"send_queue_size"`
	RateLimitEvents int           `koanf:"rate_limit_events"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	MaxPayloadBytes int64         `koanf:"max_payload_bytes"`
	ViolationLimit  int           `koanf:"violation_limit"`
}

// SecurityConfig holds authentication and admission settings.
//
// Environment Variables:
//   - AUTH_MODE: "session", "token" or "insecure" (default: session)
//   - JWT_SECRET: HMAC secret for token mode, minimum 32 characters
//   - AUTH_TIMEOUT: Deadline for the handshake auth frame (default: 10s)
//   - SESSION_STORE: "memory", "badger" or "postgres" (default: badger)
//   - SESSION_STORE_PATH: Badger data directory (default: /data/sessions)
//   - SESSION_STORE_DSN: PostgreSQL DSN for the postgres store
//   - SESSION_CACHE_SIZE: Verified-session cache entries (default: 4096)
//   - SESSION_CACHE_TTL: Verified-session cache lifetime (default: 30s)
//   - SESSION_SWEEP_INTERVAL: Expired-session sweep cadence (default: 5m)
//   - ALLOWED_ORIGINS: Comma-separated origin allow-list (default: *)
//   - TRUSTED_PROXIES: Comma-separated CIDRs trusted for X-Forwarded-For
//   - HTTP_RATE_LIMIT_REQUESTS: Per-IP HTTP request ceiling (default: 100)
//   - HTTP_RATE_LIMIT_WINDOW: Per-IP HTTP request window (default: 1m)
//   - DISABLE_RATE_LIMIT: Disable HTTP rate limiting (default: false)
type SecurityConfig struct {
	AuthMode    string        `koanf:"auth_mode"`
	JWTSecret   string        `koanf:"jwt_secret"`
	AuthTimeout time.Duration `koanf:"auth_timeout"`

	SessionStore         string        `koanf:"session_store"`
	SessionStorePath     string        `koanf:"session_store_path"`
	SessionStoreDSN      string        `koanf:"session_store_dsn"`
	SessionCacheSize     int           `koanf:"session_cache_size"`
	SessionCacheTTL      time.Duration `koanf:"session_cache_ttl"`
	SessionSweepInterval time.Duration `koanf:"session_sweep_interval"`

	AllowedOrigins []string `koanf:"allowed_origins"`
	TrustedProxies []string `koanf:"trusted_proxies"`

	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// AllowsAllOrigins reports whether the origin allow-list is the
// wildcard. Only acceptable outside production.
func (c SecurityConfig) AllowsAllOrigins() bool {
	return len(c.AllowedOrigins) == 1 && c.AllowedOrigins[0] == "*"
}

// IntakeConfig holds the NATS JetStream event intake settings. The
// intake is optional: collaborators can also emit events in-process or
// through the HTTP ingest endpoint.
//
// Environment Variables:
//   - NATS_ENABLED: Enable the JetStream intake (default: false)
//   - NATS_URL: Server URL (default: nats://127.0.0.1:4222)
//   - NATS_EMBEDDED: Run an embedded NATS server (default: true)
//   - NATS_STORE_DIR: JetStream storage directory (default: /data/nats/jetstream)
//   - NATS_MAX_MEMORY: JetStream memory ceiling in bytes (default: 1GB)
//   - NATS_MAX_STORE: JetStream disk ceiling in bytes (default: 10GB)
//   - NATS_STREAM: Stream name (default: COMMERCE_EVENTS)
//   - NATS_SUBJECT_PREFIX: Subject prefix events arrive under (default: commerce.events)
//   - NATS_DURABLE_NAME: Durable consumer name (default: soko-gateway)
//   - NATS_QUEUE_GROUP: Queue group for horizontal scaling (default: gateways)
//   - NATS_SUBSCRIBERS: Concurrent subscriber count (default: 4)
//   - NATS_CLOSE_TIMEOUT: Graceful close deadline (default: 30s)
type IntakeConfig struct {
	Enabled          bool          `koanf:"enabled"`
	URL              string        `koanf:"url"`
	EmbeddedServer   bool          `koanf:"embedded_server"`
	StoreDir         string        `koanf:"store_dir"`
	MaxMemory        int64         `koanf:"max_memory"`
	MaxStore         int64         `koanf:"max_store"`
	Stream           string        `koanf:"stream"`
	SubjectPrefix    string        `koanf:"subject_prefix"`
	DurableName      string        `koanf:"durable_name"`
	QueueGroup       string        `koanf:"queue_group"`
	SubscribersCount int           `koanf:"subscribers_count"`
	CloseTimeout     time.Duration `koanf:"close_timeout"`
}

// LoggingConfig holds log output settings.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json or console (default: json)
//   - LOG_CALLER: Include caller file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Auth modes accepted by security.auth_mode. Insecure mode trusts the
// identity claimed in the handshake and exists for local development.
const (
	AuthModeSession  = "session"
	AuthModeToken    = "token"
	AuthModeInsecure = "insecure"
)

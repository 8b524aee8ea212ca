// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package config

import (
	"fmt"
	"net/url"
	"strings"
)

const minJWTSecretLength = 32

// Validate checks that the configuration is complete and coherent.
// Error messages name environment variables so operators can fix the
// deployment without reading source.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateGateway(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	if err := c.validateIntake(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got: %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got: %s", c.Server.Timeout)
	}
	switch c.Server.Environment {
	case "development", "production":
		return nil
	default:
		return fmt.Errorf("ENVIRONMENT must be development or production, got: %s", c.Server.Environment)
	}
}

func (c *Config) validateGateway() error {
	g := c.Gateway
	if g.MaxConnections < 1 {
		return fmt.Errorf("MAX_CONNECTIONS must be at least 1, got: %d", g.MaxConnections)
	}
	if g.PingInterval <= 0 {
		return fmt.Errorf("PING_INTERVAL must be positive, got: %s", g.PingInterval)
	}
	if g.PongTimeout <= 0 {
		return fmt.Errorf("PONG_TIMEOUT must be positive, got: %s", g.PongTimeout)
	}
	if g.PongTimeout >= g.PingInterval {
		return fmt.Errorf("PONG_TIMEOUT (%s) must be shorter than PING_INTERVAL (%s)", g.PongTimeout, g.PingInterval)
	}
	if g.SendQueueSize < 1 {
		return fmt.Errorf("SEND_QUEUE_SIZE must be at least 1, got: %d", g.SendQueueSize)
	}
	if g.RateLimitEvents < 1 {
		return fmt.Errorf("RATE_LIMIT_EVENTS must be at least 1, got: %d", g.RateLimitEvents)
	}
	if g.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got: %s", g.RateLimitWindow)
	}
	if g.MaxPayloadBytes < 1 {
		return fmt.Errorf("MAX_PAYLOAD_BYTES must be at least 1, got: %d", g.MaxPayloadBytes)
	}
	if g.ViolationLimit < 1 {
		return fmt.Errorf("VIOLATION_LIMIT must be at least 1, got: %d", g.ViolationLimit)
	}
	return nil
}

func (c *Config) validateSecurity() error {
	s := c.Security

	switch s.AuthMode {
	case AuthModeSession:
		if err := c.validateSessionStore(); err != nil {
			return err
		}
	case AuthModeToken:
		if len(s.JWTSecret) < minJWTSecretLength {
			return fmt.Errorf("JWT_SECRET must be at least %d characters when AUTH_MODE=token", minJWTSecretLength)
		}
	case AuthModeInsecure:
		if c.Server.IsProduction() {
			return fmt.Errorf("AUTH_MODE=insecure is not allowed when ENVIRONMENT=production")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be session, token, or insecure, got: %s", s.AuthMode)
	}

	if s.AuthTimeout <= 0 {
		return fmt.Errorf("AUTH_TIMEOUT must be positive, got: %s", s.AuthTimeout)
	}

	if err := c.validateOrigins(); err != nil {
		return err
	}

	if !s.RateLimitDisabled {
		if s.RateLimitReqs < 1 {
			return fmt.Errorf("HTTP_RATE_LIMIT_REQUESTS must be at least 1, got: %d", s.RateLimitReqs)
		}
		if s.RateLimitWindow <= 0 {
			return fmt.Errorf("HTTP_RATE_LIMIT_WINDOW must be positive, got: %s", s.RateLimitWindow)
		}
	}
	return nil
}

func (c *Config) validateSessionStore() error {
	s := c.Security
	switch s.SessionStore {
	case "memory":
	case "badger":
		if s.SessionStorePath == "" {
			return fmt.Errorf("SESSION_STORE_PATH is required when SESSION_STORE=badger")
		}
	case "postgres":
		if s.SessionStoreDSN == "" {
			return fmt.Errorf("SESSION_STORE_DSN is required when SESSION_STORE=postgres")
		}
	default:
		return fmt.Errorf("SESSION_STORE must be memory, badger, or postgres, got: %s", s.SessionStore)
	}
	if s.SessionCacheSize < 0 {
		return fmt.Errorf("SESSION_CACHE_SIZE must not be negative, got: %d", s.SessionCacheSize)
	}
	if s.SessionCacheTTL < 0 {
		return fmt.Errorf("SESSION_CACHE_TTL must not be negative, got: %s", s.SessionCacheTTL)
	}
	if s.SessionSweepInterval <= 0 {
		return fmt.Errorf("SESSION_SWEEP_INTERVAL must be positive, got: %s", s.SessionSweepInterval)
	}
	return nil
}

func (c *Config) validateOrigins() error {
	if len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("ALLOWED_ORIGINS must not be empty; use * to allow all origins in development")
	}
	if c.Security.AllowsAllOrigins() {
		if c.Server.IsProduction() {
			return fmt.Errorf("ALLOWED_ORIGINS=* is not allowed when ENVIRONMENT=production")
		}
		return nil
	}
	for _, origin := range c.Security.AllowedOrigins {
		if origin == "*" {
			return fmt.Errorf("ALLOWED_ORIGINS must not mix * with explicit origins")
		}
		if err := validateOrigin(origin); err != nil {
			return fmt.Errorf("ALLOWED_ORIGINS entry %q is invalid: %w", origin, err)
		}
	}
	return nil
}

// validateOrigin checks a browser origin: scheme://host[:port] with no
// path, query or fragment.
func validateOrigin(origin string) error {
	parsed, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("failed to parse origin: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got: %s", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("host is required")
	}
	if parsed.Path != "" || parsed.RawQuery != "" || parsed.Fragment != "" {
		return fmt.Errorf("origin must be scheme://host[:port] with no path")
	}
	return nil
}

func (c *Config) validateIntake() error {
	if !c.Intake.Enabled {
		return nil
	}
	i := c.Intake
	if err := validateNATSURL(i.URL); err != nil {
		return fmt.Errorf("NATS_URL is invalid: %w", err)
	}
	if i.EmbeddedServer && i.StoreDir == "" {
		return fmt.Errorf("NATS_STORE_DIR is required when NATS_EMBEDDED=true")
	}
	if i.Stream == "" {
		return fmt.Errorf("NATS_STREAM is required when NATS_ENABLED=true")
	}
	if i.SubjectPrefix == "" || strings.ContainsAny(i.SubjectPrefix, " *>") {
		return fmt.Errorf("NATS_SUBJECT_PREFIX must be a literal subject prefix, got: %q", i.SubjectPrefix)
	}
	if i.DurableName == "" {
		return fmt.Errorf("NATS_DURABLE_NAME is required when NATS_ENABLED=true")
	}
	if i.SubscribersCount < 1 {
		return fmt.Errorf("NATS_SUBSCRIBERS must be at least 1, got: %d", i.SubscribersCount)
	}
	if i.CloseTimeout <= 0 {
		return fmt.Errorf("NATS_CLOSE_TIMEOUT must be positive, got: %s", i.CloseTimeout)
	}
	return nil
}

// validateNATSURL accepts nats://, tls://, ws:// and wss:// URLs with
// a host.
func validateNATSURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}
	validSchemes := map[string]bool{"nats": true, "tls": true, "ws": true, "wss": true}
	if !validSchemes[parsed.Scheme] {
		return fmt.Errorf("scheme must be nats, tls, ws, or wss, got: %s", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("host is required (e.g., localhost:4222)")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be trace, debug, info, warn, or error, got: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
		return nil
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got: %s", c.Logging.Format)
	}
}

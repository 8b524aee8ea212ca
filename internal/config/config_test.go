// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8443 {
		t.Errorf("Server.Port = %d, want 8443", cfg.Server.Port)
	}
	if cfg.Server.Addr() != "0.0.0.0:8443" {
		t.Errorf("Server.Addr() = %q, want 0.0.0.0:8443", cfg.Server.Addr())
	}
	if cfg.Gateway.MaxConnections != 10000 {
		t.Errorf("Gateway.MaxConnections = %d, want 10000", cfg.Gateway.MaxConnections)
	}
	if cfg.Gateway.RateLimitEvents != 100 {
		t.Errorf("Gateway.RateLimitEvents = %d, want 100", cfg.Gateway.RateLimitEvents)
	}
	if cfg.Gateway.RateLimitWindow != 60*time.Second {
		t.Errorf("Gateway.RateLimitWindow = %s, want 60s", cfg.Gateway.RateLimitWindow)
	}
	if cfg.Gateway.MaxPayloadBytes != 1<<20 {
		t.Errorf("Gateway.MaxPayloadBytes = %d, want %d", cfg.Gateway.MaxPayloadBytes, 1<<20)
	}
	if cfg.Security.AuthMode != AuthModeSession {
		t.Errorf("Security.AuthMode = %q, want session", cfg.Security.AuthMode)
	}
	if !cfg.Security.AllowsAllOrigins() {
		t.Errorf("Security.AllowedOrigins = %v, want wildcard default", cfg.Security.AllowedOrigins)
	}
	if cfg.Intake.Enabled {
		t.Error("Intake.Enabled = true, want false by default")
	}
	if cfg.Intake.Stream != "COMMERCE_EVENTS" {
		t.Errorf("Intake.Stream = %q, want COMMERCE_EVENTS", cfg.Intake.Stream)
	}
	if cfg.Intake.DurableName != "soko-gateway" {
		t.Errorf("Intake.DurableName = %q, want soko-gateway", cfg.Intake.DurableName)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9001")
	t.Setenv("MAX_CONNECTIONS", "250")
	t.Setenv("PING_INTERVAL", "15s")
	t.Setenv("PONG_TIMEOUT", "3s")
	t.Setenv("RATE_LIMIT_EVENTS", "42")
	t.Setenv("ALLOWED_ORIGINS", "https://shop.example.com, https://admin.example.com")
	t.Setenv("AUTH_MODE", "token")
	t.Setenv("JWT_SECRET", strings.Repeat("s", 32))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9001 {
		t.Errorf("Server.Port = %d, want 9001", cfg.Server.Port)
	}
	if cfg.Gateway.MaxConnections != 250 {
		t.Errorf("Gateway.MaxConnections = %d, want 250", cfg.Gateway.MaxConnections)
	}
	if cfg.Gateway.PingInterval != 15*time.Second {
		t.Errorf("Gateway.PingInterval = %s, want 15s", cfg.Gateway.PingInterval)
	}
	if cfg.Gateway.RateLimitEvents != 42 {
		t.Errorf("Gateway.RateLimitEvents = %d, want 42", cfg.Gateway.RateLimitEvents)
	}
	want := []string{"https://shop.example.com", "https://admin.example.com"}
	if len(cfg.Security.AllowedOrigins) != len(want) {
		t.Fatalf("AllowedOrigins = %v, want %v", cfg.Security.AllowedOrigins, want)
	}
	for i, origin := range want {
		if cfg.Security.AllowedOrigins[i] != origin {
			t.Errorf("AllowedOrigins[%d] = %q, want %q", i, cfg.Security.AllowedOrigins[i], origin)
		}
	}
	if cfg.Security.AuthMode != AuthModeToken {
		t.Errorf("Security.AuthMode = %q, want token", cfg.Security.AuthMode)
	}
}

func TestLoadUnmappedEnvIgnored(t *testing.T) {
	t.Setenv("SOME_RANDOM_VARIABLE", "should-not-appear")

	if _, err := Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 7777
gateway:
  max_connections: 123
security:
  allowed_origins:
    - https://store.example.com
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("Server.Port = %d, want 7777 from file", cfg.Server.Port)
	}
	if cfg.Gateway.MaxConnections != 123 {
		t.Errorf("Gateway.MaxConnections = %d, want 123 from file", cfg.Gateway.MaxConnections)
	}
	if len(cfg.Security.AllowedOrigins) != 1 || cfg.Security.AllowedOrigins[0] != "https://store.example.com" {
		t.Errorf("AllowedOrigins = %v, want [https://store.example.com]", cfg.Security.AllowedOrigins)
	}
}

func TestEnvOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 7777\n"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("HTTP_PORT", "8888")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8888 {
		t.Errorf("Server.Port = %d, want env override 8888", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "HTTP_PORT",
		},
		{
			name:    "bad environment",
			mutate:  func(c *Config) { c.Server.Environment = "staging" },
			wantErr: "ENVIRONMENT",
		},
		{
			name:    "pong timeout exceeds ping interval",
			mutate:  func(c *Config) { c.Gateway.PongTimeout = c.Gateway.PingInterval },
			wantErr: "PONG_TIMEOUT",
		},
		{
			name:    "zero rate limit",
			mutate:  func(c *Config) { c.Gateway.RateLimitEvents = 0 },
			wantErr: "RATE_LIMIT_EVENTS",
		},
		{
			name:    "unknown auth mode",
			mutate:  func(c *Config) { c.Security.AuthMode = "ldap" },
			wantErr: "AUTH_MODE",
		},
		{
			name: "token mode requires long secret",
			mutate: func(c *Config) {
				c.Security.AuthMode = AuthModeToken
				c.Security.JWTSecret = "short"
			},
			wantErr: "JWT_SECRET",
		},
		{
			name: "insecure mode rejected in production",
			mutate: func(c *Config) {
				c.Security.AuthMode = AuthModeInsecure
				c.Server.Environment = "production"
				c.Security.AllowedOrigins = []string{"https://shop.example.com"}
			},
			wantErr: "AUTH_MODE=insecure",
		},
		{
			name: "wildcard origins rejected in production",
			mutate: func(c *Config) {
				c.Server.Environment = "production"
			},
			wantErr: "ALLOWED_ORIGINS",
		},
		{
			name: "origin with path rejected",
			mutate: func(c *Config) {
				c.Security.AllowedOrigins = []string{"https://shop.example.com/checkout"}
			},
			wantErr: "ALLOWED_ORIGINS",
		},
		{
			name: "wildcard mixed with explicit origins",
			mutate: func(c *Config) {
				c.Security.AllowedOrigins = []string{"https://shop.example.com", "*"}
			},
			wantErr: "must not mix",
		},
		{
			name:    "unknown session store",
			mutate:  func(c *Config) { c.Security.SessionStore = "redis" },
			wantErr: "SESSION_STORE",
		},
		{
			name: "postgres store requires dsn",
			mutate: func(c *Config) {
				c.Security.SessionStore = "postgres"
				c.Security.SessionStoreDSN = ""
			},
			wantErr: "SESSION_STORE_DSN",
		},
		{
			name: "intake requires valid url",
			mutate: func(c *Config) {
				c.Intake.Enabled = true
				c.Intake.URL = "http://localhost:4222"
			},
			wantErr: "NATS_URL",
		},
		{
			name: "intake rejects wildcard subject prefix",
			mutate: func(c *Config) {
				c.Intake.Enabled = true
				c.Intake.SubjectPrefix = "commerce.>"
			},
			wantErr: "NATS_SUBJECT_PREFIX",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "LOG_LEVEL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

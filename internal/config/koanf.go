// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/soko/config.yaml",
	"/etc/soko/config.yml",
}

// ConfigPathEnvVar overrides the config file search entirely.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with every default filled in. These
// are applied first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8443,
			Host:        "0.0.0.0",
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		Gateway: GatewayConfig{
			MaxConnections:  10000,
			PingInterval:    30 * time.Second,
			PongTimeout:     5 * time.Second,
			SendQueueSize:   256,
			RateLimitEvents: 100,
			RateLimitWindow: 60 * time.Second,
			MaxPayloadBytes: 1 << 20, // 1 MiB
			ViolationLimit:  5,
		},
		Security: SecurityConfig{
			AuthMode:    AuthModeSession,
			JWTSecret:   "",
			AuthTimeout: 10 * time.Second,

			SessionStore:         "badger",
			SessionStorePath:     "/data/sessions",
			SessionStoreDSN:      "",
			SessionCacheSize:     4096,
			SessionCacheTTL:      30 * time.Second,
			SessionSweepInterval: 5 * time.Minute,

			AllowedOrigins: []string{"*"},
			TrustedProxies: []string{},

			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
		},
		Intake: IntakeConfig{
			Enabled:          false,
			URL:              "nats://127.0.0.1:4222",
			EmbeddedServer:   true,
			StoreDir:         "/data/nats/jetstream",
			MaxMemory:        1 << 30,  // 1GB
			MaxStore:         10 << 30, // 10GB
			Stream:           "COMMERCE_EVENTS",
			SubjectPrefix:    "commerce.events",
			DurableName:      "soko-gateway",
			QueueGroup:       "gateways",
			SubscribersCount: 4,
			CloseTimeout:     30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from layered sources:
//  1. Defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file that exists, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices
// when supplied through environment variables.
var sliceConfigPaths = []string{
	"security.allowed_origins",
	"security.trusted_proxies",
}

// processSliceFields converts comma-separated string values to slices
// for the known slice fields. Env vars arrive as strings, but the
// config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice (from YAML or defaults).
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps flat environment variable names onto nested
// config paths. Unmapped variables return "" and are skipped, which
// keeps unrelated process environment out of the configuration.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - MAX_CONNECTIONS -> gateway.max_connections
//   - NATS_DURABLE_NAME -> intake.durable_name
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server mappings
		"http_port":    "server.port",
		"http_host":    "server.host",
		"http_timeout": "server.timeout",
		"environment":  "server.environment",

		// Gateway mappings
		"max_connections":   "gateway.max_connections",
		"ping_interval":     "gateway.ping_interval",
		"pong_timeout":      "gateway.pong_timeout",
		"send_queue_size":   "gateway.send_queue_size",
		"rate_limit_events": "gateway.rate_limit_events",
		"rate_limit_window": "gateway.rate_limit_window",
		"max_payload_bytes": "gateway.max_payload_bytes",
		"violation_limit":   "gateway.violation_limit",

		// Security mappings
		"auth_mode":                "security.auth_mode",
		"jwt_secret":               "security.jwt_secret",
		"auth_timeout":             "security.auth_timeout",
		"session_store":            "security.session_store",
		"session_store_path":       "security.session_store_path",
		"session_store_dsn":        "security.session_store_dsn",
		"session_cache_size":       "security.session_cache_size",
		"session_cache_ttl":        "security.session_cache_ttl",
		"session_sweep_interval":   "security.session_sweep_interval",
		"allowed_origins":          "security.allowed_origins",
		"trusted_proxies":          "security.trusted_proxies",
		"http_rate_limit_requests": "security.rate_limit_reqs",
		"http_rate_limit_window":   "security.rate_limit_window",
		"disable_rate_limit":       "security.rate_limit_disabled",

		// Intake mappings
		"nats_enabled":        "intake.enabled",
		"nats_url":            "intake.url",
		"nats_embedded":       "intake.embedded_server",
		"nats_store_dir":      "intake.store_dir",
		"nats_max_memory":     "intake.max_memory",
		"nats_max_store":      "intake.max_store",
		"nats_stream":         "intake.stream",
		"nats_subject_prefix": "intake.subject_prefix",
		"nats_durable_name":   "intake.durable_name",
		"nats_queue_group":    "intake.queue_group",
		"nats_subscribers":    "intake.subscribers_count",
		"nats_close_timeout":  "intake.close_timeout",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}

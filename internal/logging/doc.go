// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

// Package logging provides centralized zerolog-based structured logging for Soko.
//
// The package exposes a single global logger configured once at startup and
// used through package-level functions, giving zero-allocation structured
// JSON logging in production and human-readable console output during
// development.
//
// # Quick Start
//
//	import "github.com/sokolive/soko/internal/logging"
//
//	// Initialize at application startup
//	logging.Init(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	})
//
//	// Log messages with structured fields
//	logging.Info().Str("conn_id", id).Msg("Connection admitted")
//	logging.Error().Err(err).Str("namespace", ns).Msg("Broadcast failed")
//
//	// Context-aware logging (request IDs ride along in handlers)
//	logging.Ctx(ctx).Info().Msg("Registering session")
//
// # Configuration
//
// Environment variables (read through internal/config):
//
//	LOG_LEVEL   - Minimum log level: trace, debug, info, warn, error (default: info)
//	LOG_FORMAT  - Output format: json, console (default: json)
//	LOG_CALLER  - Include caller file:line: true, false (default: false)
//
// # Best Practices
//
// Always terminate log chains with .Msg() or .Send():
//
//	logging.Info().Str("key", "value").Msg("message")  // Correct
//	logging.Info().Str("key", "value")                 // WRONG - log not emitted
//
// Use structured fields instead of string formatting:
//
//	logging.Info().Str("user", u).Int("delivered", n).Msg("Event fanned out")
//
// # slog Adapter
//
// NewSlogLogger returns an slog.Logger backed by zerolog for libraries that
// require slog (the suture supervision tree uses it via sutureslog).
//
// # Thread Safety
//
// All exported functions are safe for concurrent use. The global logger is
// protected by sync.RWMutex for configuration changes.
package logging

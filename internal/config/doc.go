// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

// Package config loads and validates gateway configuration.
//
// Configuration is layered with Koanf v2, lowest priority first:
//
//  1. Built-in defaults
//  2. Optional YAML config file (config.yaml, or CONFIG_PATH)
//  3. Environment variables
//
// Environment variables use flat names mapped onto the nested
// structure, so HTTP_PORT sets server.port and MAX_CONNECTIONS sets
// gateway.max_connections. Unknown environment variables are ignored
// rather than collected, which keeps unrelated process environment out
// of the configuration.
//
// The Config returned by Load is immutable afterwards and safe for
// concurrent reads.
package config

// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

// Package session stores and verifies the sessions presented during the
// gateway handshake. The commerce application registers a session at
// login and revokes it at logout; the gateway only ever reads.
//
// Three backends implement the same Store interface: an in-memory map
// for development and tests, an embedded BadgerDB store for single-node
// deployments, and a PostgreSQL store for deployments that share the
// commerce application's database.
package session

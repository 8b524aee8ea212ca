// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

// Package gateway implements the realtime core: connection admission,
// the registry of live connections, heartbeat liveness tracking and
// event fan-out.
//
// One Gateway instance owns all connection state. The HTTP layer mounts
// HandleWS for upgrades, collaborators feed events through Emit, and
// the supervisor runs Gateway.Serve and Monitor.Serve as long-lived
// services. Each connection gets a read pump and a write pump; all
// shared state lives in the Registry behind a single RWMutex with
// copy-on-read snapshots, so fan-out and stats never iterate live maps.
package gateway

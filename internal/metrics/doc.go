// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

// Package metrics defines the gateway's Prometheus collectors.
//
// All collectors are registered with the default registry at package
// load via promauto and exposed by the /metrics endpoint. Metric names
// share the soko_ prefix. Label values come from closed sets only:
// reasons, namespaces and roles. Nothing derived from client input
// (user IDs, session IDs, origins) ever becomes a label.
package metrics

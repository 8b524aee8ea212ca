// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

// Package intake bridges the commerce platform's out-of-process
// collaborators to the gateway. Services that cannot link the emitter
// directly (cron jobs, database trigger consumers, sibling deployments
// on the same host) publish event envelopes to NATS JetStream; the
// intake service consumes them and hands each decoded envelope to the
// broadcaster.
//
// The broker is either an external NATS server or an embedded one
// started in-process, selected by configuration. Consumption is
// at-most-once from the subscribers' point of view: every message is
// acked exactly once, including poison messages that fail to decode.
// A malformed envelope must never wedge the stream behind redelivery
// loops; it is logged, counted and skipped.
package intake

// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package gateway

import "errors"

var (
	// ErrCapacityExceeded means the registry is at its configured
	// connection ceiling. New admissions fail; existing connections
	// are unaffected.
	ErrCapacityExceeded = errors.New("connection capacity exceeded")

	// ErrInvalidNamespace means a subscription named a namespace
	// outside the closed set.
	ErrInvalidNamespace = errors.New("invalid namespace")

	// ErrUnknownConnection means the connection id is not registered.
	// Callers racing with Remove treat this as a no-op.
	ErrUnknownConnection = errors.New("unknown connection")

	// ErrConnectionClosed means the connection is tearing down and no
	// longer accepts outbound frames.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrQueueFull means a frame could not be enqueued even after
	// evicting the oldest pending frame.
	ErrQueueFull = errors.New("outbound queue full")
)

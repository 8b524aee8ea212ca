// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

// Package ratelimit implements the per-connection fixed-window frame
// limiter.
//
// Each connection owns one Counter and consults it from its read loop,
// so the counter needs no locking and no cross-connection
// coordination. A rejected frame is counted but not delivered; the
// connection stays open, and the window resets only when its time
// elapses, never because of rejections.
package ratelimit

import "time"

// Window describes a fixed window: at most Limit frames per Length.
type Window struct {
	Limit  int
	Length time.Duration
}

// Counter is a fixed-window frame counter. Not safe for concurrent
// use; each connection touches its counter only from its own read
// loop.
type Counter struct {
	window      Window
	count       int
	windowStart time.Time
}

// NewCounter returns a counter for w. The first Allow call opens the
// first window.
func NewCounter(w Window) *Counter {
	return &Counter{window: w}
}

// Allow records one inbound frame at now and reports whether it is
// within the window's budget. Frames beyond the budget still count, so
// a client that keeps sending while throttled stays throttled until
// the window turns over.
func (c *Counter) Allow(now time.Time) bool {
	if now.Sub(c.windowStart) > c.window.Length {
		c.windowStart = now
		c.count = 0
	}
	c.count++
	return c.count <= c.window.Limit
}

// Remaining reports how many frames the current window still accepts
// at now. A fresh window reports the full limit.
func (c *Counter) Remaining(now time.Time) int {
	if now.Sub(c.windowStart) > c.window.Length {
		return c.window.Limit
	}
	if r := c.window.Limit - c.count; r > 0 {
		return r
	}
	return 0
}

// WindowStart returns when the current window opened.
func (c *Counter) WindowStart() time.Time {
	return c.windowStart
}

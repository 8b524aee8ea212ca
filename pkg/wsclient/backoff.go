// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package wsclient

import (
	"math/rand"
	"sync"
	"time"
)

// backoff computes reconnect delays: exponential doubling from min to
// max with symmetric jitter, so a fleet of clients cut off by the same
// outage does not stampede the gateway when it comes back.
type backoff struct {
	mu      sync.Mutex
	min     time.Duration
	max     time.Duration
	jitter  float64
	current time.Duration
	rng     *rand.Rand
}

func newBackoff(min, max time.Duration, jitter float64, seed int64) *backoff {
	return &backoff{
		min:     min,
		max:     max,
		jitter:  jitter,
		current: min,
		rng:     rand.New(rand.NewSource(seed)), //nolint:gosec // G404: reconnect jitter is not security-sensitive
	}
}

// next returns the delay before the upcoming attempt and advances the
// schedule. The returned value stays within [min, max] even after
// jitter is applied.
func (b *backoff) next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	interval := b.current
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}

	if b.jitter > 0 {
		offset := b.jitter * (b.rng.Float64()*2 - 1)
		interval += time.Duration(float64(interval) * offset)
	}

	if interval < b.min {
		interval = b.min
	}
	if interval > b.max {
		interval = b.max
	}
	return interval
}

// reset restarts the schedule at the minimum delay. Called after a
// session reaches the subscribed state.
func (b *backoff) reset() {
	b.mu.Lock()
	b.current = b.min
	b.mu.Unlock()
}

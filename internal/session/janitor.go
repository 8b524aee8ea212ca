// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package session

import (
	"context"
	"time"

	"github.com/sokolive/soko/internal/logging"
)

const defaultSweepInterval = 5 * time.Minute

// Janitor periodically prunes expired sessions from stores that cannot
// expire entries on their own. It implements suture's Service contract
// and runs under the process supervision tree.
type Janitor struct {
	store    Pruner
	interval time.Duration
}

// NewJanitor returns a janitor sweeping store every interval. A zero
// interval selects the default.
func NewJanitor(store Pruner, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Janitor{store: store, interval: interval}
}

// Serve sweeps until ctx is cancelled.
func (j *Janitor) Serve(ctx context.Context) error {
	log := logging.WithComponent("session-janitor")
	log.Debug().Dur("interval", j.interval).Msg("Session janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("Session janitor stopped")
			return ctx.Err()
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			removed, err := j.store.DeleteExpired(sweepCtx)
			cancel()
			if err != nil {
				log.Warn().Err(err).Msg("Session sweep failed")
				continue
			}
			if removed > 0 {
				log.Info().Int("removed", removed).Msg("Expired sessions pruned")
			}
		}
	}
}

func (j *Janitor) String() string {
	return "session-janitor"
}

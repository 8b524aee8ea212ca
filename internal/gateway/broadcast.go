// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package gateway

import (
	"errors"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/sokolive/soko/internal/logging"
	"github.com/sokolive/soko/internal/metrics"
	"github.com/sokolive/soko/internal/models"
	"github.com/sokolive/soko/internal/visibility"
)

// DeliveryReport summarizes one fan-out: how many connections were
// entitled to the event, how many got it queued, and how many frames
// were lost to backpressure.
type DeliveryReport struct {
	Eligible  int `json:"eligible"`
	Delivered int `json:"delivered"`
	Dropped   int `json:"dropped"`
}

// Broadcaster fans events out to eligible subscribers. It runs on the
// emitting goroutine and never blocks on any single connection; slow
// consumers lose frames, they do not slow anyone else down.
type Broadcaster struct {
	registry *Registry
	matrix   *visibility.Matrix
	dropLog  rate.Sometimes
}

func NewBroadcaster(r *Registry, mx *visibility.Matrix) *Broadcaster {
	return &Broadcaster{
		registry: r,
		matrix:   mx,
		dropLog:  rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}
}

// Emit delivers the event to every eligible subscriber of its
// namespace. Best-effort: malformed events are logged and discarded,
// per-connection failures are absorbed into the report, and nothing
// ever propagates back to the emitting collaborator.
func (b *Broadcaster) Emit(e *models.Event) DeliveryReport {
	var report DeliveryReport
	if e == nil {
		return report
	}
	if _, known := e.Type.Namespace(); !known {
		logging.Warn().
			Str("event_type", e.Type.String()).
			Msg("Discarding event of unknown type")
		return report
	}
	if !e.Namespace.Valid() {
		logging.Warn().
			Str("namespace", e.Namespace.String()).
			Msg("Discarding event with invalid namespace")
		return report
	}

	start := time.Now()
	metrics.RecordEventEmitted(e.Namespace.String())

	frame := models.NewEventFrame(e)
	conns := b.registry.connectionsFor(e.Namespace)

	// Deterministic fan-out order keeps delivery behavior reproducible
	// under test and in incident replays.
	sort.Slice(conns, func(i, j int) bool { return conns[i].ID < conns[j].ID })

	closedSkips := 0
	for _, c := range conns {
		if !b.matrix.EventVisible(c.Identity.Role, c.Identity.UserID, e) {
			continue
		}
		report.Eligible++

		evicted, err := c.enqueue(frame)
		report.Dropped += evicted
		switch {
		case err == nil:
			report.Delivered++
		case errors.Is(err, ErrQueueFull):
			report.Dropped++
		case errors.Is(err, ErrConnectionClosed):
			// Disconnecting mid-broadcast: skipped silently.
			closedSkips++
		}
	}

	metrics.RecordEventDelivered(e.Namespace.String(), report.Delivered)
	metrics.RecordEventDropped(metrics.DropQueueFull, report.Dropped)
	metrics.RecordEventDropped(metrics.DropConnectionClosed, closedSkips)
	metrics.ObserveBroadcast(time.Since(start))
	b.registry.addDelivered(report.Delivered)
	b.registry.addDropped(report.Dropped)

	if report.Dropped > 0 {
		b.dropLog.Do(func() {
			logging.Warn().
				Str("event_type", e.Type.String()).
				Str("namespace", e.Namespace.String()).
				Int("dropped", report.Dropped).
				Msg("Slow consumers dropped frames during fan-out")
		})
	}

	logging.Debug().
		Str("event_id", e.ID.String()).
		Str("event_type", e.Type.String()).
		Str("namespace", e.Namespace.String()).
		Int("eligible", report.Eligible).
		Int("delivered", report.Delivered).
		Int("dropped", report.Dropped).
		Msg("Event broadcast")
	return report
}

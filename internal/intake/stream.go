// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Stream retention defaults. The stream is a short buffer between
// collaborators and the gateway, not an event log: consumers read new
// messages only, so anything older than a day is dead weight.
const (
	defaultStreamMaxAge      = 24 * time.Hour
	defaultDuplicateWindow   = 2 * time.Minute
	defaultStreamMaxMessages = -1 // bounded by bytes and age instead
)

// JetStreamContext is the subset of jetstream.JetStream the stream
// initializer touches. Tests substitute a fake.
type JetStreamContext interface {
	Stream(ctx context.Context, name string) (jetstream.Stream, error)
	CreateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	UpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
}

// StreamOptions holds the stream shape for EnsureStream.
type StreamOptions struct {
	// Name is the JetStream stream name. Stream names cannot contain
	// wildcards, which is why subscribers bind to the stream by name
	// while subscribing to wildcard subjects.
	Name string

	// Subjects the stream captures, typically ["<prefix>.>"].
	Subjects []string

	// MaxBytes bounds the stream on disk. Zero means broker default.
	MaxBytes int64

	// MaxAge bounds message retention. Zero applies the package default.
	MaxAge time.Duration
}

// EnsureStream creates or updates the envelope stream. Idempotent:
// publishers and subscribers may race through it at startup.
func EnsureStream(ctx context.Context, js JetStreamContext, opts StreamOptions) (jetstream.Stream, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("stream name required")
	}
	if len(opts.Subjects) == 0 {
		return nil, fmt.Errorf("stream subjects required")
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = defaultStreamMaxAge
	}

	streamCfg := jetstream.StreamConfig{
		Name:        opts.Name,
		Subjects:    opts.Subjects,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      opts.MaxAge,
		MaxBytes:    opts.MaxBytes,
		MaxMsgs:     defaultStreamMaxMessages,
		Duplicates:  defaultDuplicateWindow,
		Storage:     jetstream.FileStorage,
		Discard:     jetstream.DiscardOld,
		AllowDirect: true,
	}

	if _, err := js.Stream(ctx, opts.Name); err == nil {
		stream, err := js.UpdateStream(ctx, streamCfg)
		if err != nil {
			return nil, fmt.Errorf("update stream %s: %w", opts.Name, err)
		}
		return stream, nil
	} else if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return nil, fmt.Errorf("check stream %s: %w", opts.Name, err)
	}

	stream, err := js.CreateStream(ctx, streamCfg)
	if err != nil {
		return nil, fmt.Errorf("create stream %s: %w", opts.Name, err)
	}
	return stream, nil
}

// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package intake

import (
	"context"
	"fmt"
	"sync"
	"time"

	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/sokolive/soko/internal/events"
)

// PublisherOptions holds publisher connection settings.
type PublisherOptions struct {
	// URL is the broker connection URL.
	URL string

	// SubjectPrefix is prepended to the event type to form the subject,
	// e.g. "commerce.events" + "order.created".
	SubjectPrefix string

	// MaxReconnects caps reconnection attempts; -1 retries forever.
	MaxReconnects int

	// ReconnectWait is the pause between reconnection attempts.
	ReconnectWait time.Duration

	// ReconnectBuffer is the outgoing buffer while disconnected, in
	// bytes. Messages beyond it are dropped rather than queued without
	// bound.
	ReconnectBuffer int
}

// DefaultPublisherOptions returns production defaults for the given URL
// and subject prefix.
func DefaultPublisherOptions(url, subjectPrefix string) PublisherOptions {
	return PublisherOptions{
		URL:             url,
		SubjectPrefix:   subjectPrefix,
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		ReconnectBuffer: 8 << 20, // 8MB
	}
}

// Publisher sends event envelopes to the broker. Collaborators that
// cannot link the emitter use it as their ingest path; the intake
// service on the gateway side consumes what it publishes.
type Publisher struct {
	publisher message.Publisher
	prefix    string
	breaker   *gobreaker.CircuitBreaker[any]

	mu     sync.RWMutex
	closed bool
}

// NewPublisher creates a JetStream publisher with reconnection handling.
// Message IDs feed the stream's duplicate window, so republishing after
// an ambiguous failure is safe.
func NewPublisher(opts PublisherOptions) (*Publisher, error) {
	logger := newWatermillLogger()

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(opts.MaxReconnects),
		natsgo.ReconnectWait(opts.ReconnectWait),
		natsgo.ReconnectBufSize(opts.ReconnectBuffer),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("Broker disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("Broker reconnected", nil)
		}),
	}

	wmConfig := wmNats.PublisherConfig{
		URL:         opts.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: false, // stream is pre-created by EnsureStream
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}

	pub, err := wmNats.NewPublisher(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create publisher: %w", err)
	}

	return &Publisher{
		publisher: pub,
		prefix:    opts.SubjectPrefix,
	}, nil
}

// SetCircuitBreaker wraps publish calls in the given breaker. A tripped
// breaker fails publishes fast instead of queueing against a broker
// that stopped answering.
func (p *Publisher) SetCircuitBreaker(cb *gobreaker.CircuitBreaker[any]) {
	p.breaker = cb
}

// PublishEnvelope encodes and publishes one event envelope. The subject
// carries the event type so subscribers can filter without decoding.
func (p *Publisher) PublishEnvelope(ctx context.Context, env *events.Envelope) error {
	if env == nil {
		return fmt.Errorf("nil envelope")
	}
	if _, ok := env.Type.Namespace(); !ok {
		return fmt.Errorf("unknown event type %q", env.Type)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), data)
	msg.Metadata.Set("type", env.Type.String())

	return p.publish(ctx, subjectFor(p.prefix, env.Type), msg)
}

// Publish sends a raw watermill message to the given subject.
func (p *Publisher) Publish(ctx context.Context, subject string, msg *message.Message) error {
	return p.publish(ctx, subject, msg)
}

func (p *Publisher) publish(ctx context.Context, subject string, msg *message.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return fmt.Errorf("publisher is closed")
	}
	p.mu.RUnlock()

	// The message ID doubles as the JetStream dedup key.
	if msg.Metadata.Get(natsgo.MsgIdHdr) == "" {
		msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	}

	if p.breaker != nil {
		_, err := p.breaker.Execute(func() (any, error) {
			return nil, p.publisher.Publish(subject, msg)
		})
		return err
	}
	return p.publisher.Publish(subject, msg)
}

// Close shuts the publisher down. Idempotent.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	return p.publisher.Close()
}

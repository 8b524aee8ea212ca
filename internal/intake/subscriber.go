// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package intake

import (
	"context"
	"fmt"
	"time"

	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
)

// SubscriberOptions holds durable consumer settings.
type SubscriberOptions struct {
	// URL is the broker connection URL.
	URL string

	// StreamName binds the consumer to a pre-created stream. Required:
	// the subscription subject is a wildcard, and NATS cannot derive a
	// stream name from a wildcard.
	StreamName string

	// DurableName identifies the consumer across restarts so the
	// gateway resumes where it left off instead of re-reading.
	DurableName string

	// QueueGroup load-balances messages across gateway instances
	// sharing the group.
	QueueGroup string

	// SubscribersCount is the number of concurrent consumers. Envelope
	// handling is commutative per connection (each conn's queue orders
	// its own frames), so values above 1 trade global ordering for
	// throughput.
	SubscribersCount int

	// AckWaitTimeout is how long the broker waits for an ack before
	// redelivering.
	AckWaitTimeout time.Duration

	// MaxDeliver caps redelivery attempts per message.
	MaxDeliver int

	// MaxAckPending bounds unacked messages in flight.
	MaxAckPending int

	// CloseTimeout bounds graceful shutdown.
	CloseTimeout time.Duration

	// MaxReconnects caps reconnection attempts; -1 retries forever.
	MaxReconnects int

	// ReconnectWait is the pause between reconnection attempts.
	ReconnectWait time.Duration
}

// DefaultSubscriberOptions returns production defaults for the given
// URL and stream.
func DefaultSubscriberOptions(url, streamName string) SubscriberOptions {
	return SubscriberOptions{
		URL:              url,
		StreamName:       streamName,
		DurableName:      "soko-gateway",
		QueueGroup:       "gateways",
		SubscribersCount: 4,
		AckWaitTimeout:   30 * time.Second,
		MaxDeliver:       5,
		MaxAckPending:    1000,
		CloseTimeout:     30 * time.Second,
		MaxReconnects:    -1,
		ReconnectWait:    2 * time.Second,
	}
}

// Subscriber consumes event envelopes from the broker through a durable
// JetStream consumer. New messages only: a gateway that was down missed
// its window, and replaying stale realtime events at reconnected
// dashboards would be worse than the gap.
type Subscriber struct {
	subscriber message.Subscriber
}

// NewSubscriber creates a durable JetStream subscriber.
func NewSubscriber(opts SubscriberOptions) (*Subscriber, error) {
	if opts.StreamName == "" {
		return nil, fmt.Errorf("stream name required")
	}

	logger := newWatermillLogger()

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(opts.MaxReconnects),
		natsgo.ReconnectWait(opts.ReconnectWait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("Subscriber disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("Subscriber reconnected", nil)
		}),
	}

	subOpts := []natsgo.SubOpt{
		natsgo.MaxDeliver(opts.MaxDeliver),
		natsgo.MaxAckPending(opts.MaxAckPending),
		natsgo.AckWait(opts.AckWaitTimeout),
		natsgo.DeliverNew(),
		natsgo.BindStream(opts.StreamName),
	}

	wmConfig := wmNats.SubscriberConfig{
		URL:              opts.URL,
		QueueGroupPrefix: opts.QueueGroup,
		SubscribersCount: opts.SubscribersCount,
		AckWaitTimeout:   opts.AckWaitTimeout,
		CloseTimeout:     opts.CloseTimeout,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:         false,
			AutoProvision:    false, // bound to the pre-created stream
			AckAsync:         false,
			SubscribeOptions: subOpts,
			DurablePrefix:    opts.DurableName,
		},
	}

	sub, err := wmNats.NewSubscriber(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create subscriber: %w", err)
	}

	return &Subscriber{subscriber: sub}, nil
}

// Subscribe returns a channel of messages for the given subject. The
// channel closes when the context is canceled or the subscriber shuts
// down.
func (s *Subscriber) Subscribe(ctx context.Context, subject string) (<-chan *message.Message, error) {
	return s.subscriber.Subscribe(ctx, subject)
}

// Close shuts the subscriber down.
func (s *Subscriber) Close() error {
	return s.subscriber.Close()
}

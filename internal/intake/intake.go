// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package intake

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/sokolive/soko/internal/config"
	"github.com/sokolive/soko/internal/events"
	"github.com/sokolive/soko/internal/gateway"
	"github.com/sokolive/soko/internal/logging"
	"github.com/sokolive/soko/internal/metrics"
	"github.com/sokolive/soko/internal/models"
)

// Sink accepts decoded envelopes for fan-out. *events.Emitter satisfies
// it; tests substitute a recorder.
type Sink interface {
	EmitEnvelope(env *events.Envelope) (gateway.DeliveryReport, error)
}

// Intake consumes event envelopes from the broker and forwards them to
// the sink. It is a supervised service: Serve owns the full lifecycle,
// including the embedded broker when one is configured, so a restart
// rebuilds everything from configuration.
type Intake struct {
	cfg  config.IntakeConfig
	sink Sink
}

// New creates the intake service. No I/O happens until Serve.
func New(cfg config.IntakeConfig, sink Sink) *Intake {
	return &Intake{cfg: cfg, sink: sink}
}

// Serve runs the intake until the context is canceled: start the
// embedded broker if configured, ensure the stream, then consume
// envelopes. Returns a non-nil error on broker failure so the
// supervisor restarts the service.
func (in *Intake) Serve(ctx context.Context) error {
	url := in.cfg.URL

	if in.cfg.EmbeddedServer {
		host, port := listenAddress(in.cfg.URL)
		srv, err := NewEmbeddedServer(ServerOptions{
			Host:      host,
			Port:      port,
			StoreDir:  in.cfg.StoreDir,
			MaxMemory: in.cfg.MaxMemory,
			MaxStore:  in.cfg.MaxStore,
		})
		if err != nil {
			return fmt.Errorf("start embedded broker: %w", err)
		}
		defer in.shutdownServer(srv)
		url = srv.ClientURL()

		logging.Info().
			Str("client_url", url).
			Str("store_dir", in.cfg.StoreDir).
			Msg("Embedded broker started")
	}

	if err := in.ensureStream(ctx, url); err != nil {
		return fmt.Errorf("ensure stream: %w", err)
	}

	subOpts := DefaultSubscriberOptions(url, in.cfg.Stream)
	if in.cfg.DurableName != "" {
		subOpts.DurableName = in.cfg.DurableName
	}
	if in.cfg.QueueGroup != "" {
		subOpts.QueueGroup = in.cfg.QueueGroup
	}
	if in.cfg.SubscribersCount > 0 {
		subOpts.SubscribersCount = in.cfg.SubscribersCount
	}
	if in.cfg.CloseTimeout > 0 {
		subOpts.CloseTimeout = in.cfg.CloseTimeout
	}

	sub, err := NewSubscriber(subOpts)
	if err != nil {
		return fmt.Errorf("create subscriber: %w", err)
	}
	defer func() {
		if err := sub.Close(); err != nil {
			logging.Warn().Err(err).Msg("Subscriber close failed")
		}
	}()

	messages, err := sub.Subscribe(ctx, in.subject())
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", in.subject(), err)
	}

	logging.Info().
		Str("subject", in.subject()).
		Str("stream", in.cfg.Stream).
		Str("durable", subOpts.DurableName).
		Msg("Intake started")

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Intake stopped")
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				if err := ctx.Err(); err != nil {
					logging.Info().Msg("Intake stopped")
					return err
				}
				return fmt.Errorf("subscription closed unexpectedly")
			}
			in.handle(msg)
		}
	}
}

func (in *Intake) String() string {
	return "intake"
}

// subject is the wildcard subscription covering every event type under
// the configured prefix.
func (in *Intake) subject() string {
	return in.cfg.SubjectPrefix + ".>"
}

// handle processes one broker message. Every message is acked exactly
// once, poison included: redelivering an envelope that cannot decode
// would wedge the consumer behind it forever.
func (in *Intake) handle(msg *message.Message) {
	defer msg.Ack()

	env, err := events.DecodeEnvelope(msg.Payload)
	if err != nil {
		metrics.RecordIntakeMessage("poison")
		logging.Warn().Err(err).
			Str("message_uuid", msg.UUID).
			Msg("Discarding poison intake message")
		return
	}

	report, err := in.sink.EmitEnvelope(env)
	if err != nil {
		metrics.RecordIntakeMessage("error")
		logging.Warn().Err(err).
			Str("message_uuid", msg.UUID).
			Str("type", env.Type.String()).
			Msg("Intake envelope rejected")
		return
	}

	metrics.RecordIntakeMessage("ok")
	logging.Debug().
		Str("type", env.Type.String()).
		Int("eligible", report.Eligible).
		Int("delivered", report.Delivered).
		Int("dropped", report.Dropped).
		Msg("Intake envelope delivered")
}

// ensureStream creates or updates the envelope stream over a short
// lived connection. The subscriber makes its own connection afterwards.
func (in *Intake) ensureStream(ctx context.Context, url string) error {
	nc, err := natsgo.Connect(url,
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(5),
		natsgo.ReconnectWait(time.Second),
	)
	if err != nil {
		return fmt.Errorf("connect broker: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("jetstream context: %w", err)
	}

	_, err = EnsureStream(ctx, js, StreamOptions{
		Name:     in.cfg.Stream,
		Subjects: []string{in.subject()},
		MaxBytes: in.cfg.MaxStore,
	})
	return err
}

func (in *Intake) shutdownServer(srv *EmbeddedServer) {
	timeout := in.cfg.CloseTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn().Err(err).Msg("Embedded broker shutdown timed out")
		return
	}
	logging.Info().Msg("Embedded broker stopped")
}

// subjectFor forms the publish subject for an event type under a
// prefix, e.g. "commerce.events" + "order.created".
func subjectFor(prefix string, typ models.EventType) string {
	return prefix + "." + string(typ)
}

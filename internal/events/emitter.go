// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

// Package events is the collaborator-facing entry point for publishing
// business events. Order, inventory and payment handlers call the typed
// Emit* wrappers after their own transaction has committed; the wrappers
// construct a validated event and hand it to the broadcaster. Every
// wrapper is fire-and-forget: a broadcast problem is logged and counted
// but never surfaces to the caller, so a checkout can never fail because
// a dashboard was slow.
package events

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/sokolive/soko/internal/gateway"
	"github.com/sokolive/soko/internal/logging"
	"github.com/sokolive/soko/internal/models"
)

// Broadcaster fans a constructed event out to subscribed connections.
// *gateway.Gateway satisfies it; tests substitute a recorder.
type Broadcaster interface {
	Emit(e *models.Event) gateway.DeliveryReport
}

// Emitter builds validated events from typed payload summaries and
// forwards them to the broadcaster.
type Emitter struct {
	sink Broadcaster
}

// New creates an emitter bound to the given broadcaster.
func New(sink Broadcaster) *Emitter {
	return &Emitter{sink: sink}
}

// EmitOrderEvent publishes an order lifecycle event (order.*).
func (e *Emitter) EmitOrderEvent(kind models.EventType, order models.OrderSummary, opts ...models.EventOption) {
	e.emit(kind, models.NamespaceOrders, order, opts)
}

// EmitInventoryEvent publishes a stock level event (inventory.*).
func (e *Emitter) EmitInventoryEvent(kind models.EventType, stock models.StockSummary, opts ...models.EventOption) {
	e.emit(kind, models.NamespaceInventory, stock, opts)
}

// EmitProductEvent publishes a catalog change event (product.*).
func (e *Emitter) EmitProductEvent(kind models.EventType, product models.ProductSummary, opts ...models.EventOption) {
	e.emit(kind, models.NamespaceProducts, product, opts)
}

// EmitPaymentEvent publishes a payment outcome event (payment.*).
func (e *Emitter) EmitPaymentEvent(kind models.EventType, payment models.PaymentSummary, opts ...models.EventOption) {
	e.emit(kind, models.NamespacePayments, payment, opts)
}

// EmitCustomerActivity publishes a customer account event (customer.*).
func (e *Emitter) EmitCustomerActivity(kind models.EventType, activity models.CustomerActivity, opts ...models.EventOption) {
	e.emit(kind, models.NamespaceCustomers, activity, opts)
}

// EmitSystemNotification publishes an operational notice (system.*).
func (e *Emitter) EmitSystemNotification(kind models.EventType, notice models.SystemNotice, opts ...models.EventOption) {
	e.emit(kind, models.NamespaceSystem, notice, opts)
}

// emit is the shared fire-and-forget path. The kind must belong to the
// wrapper's namespace so a payment payload cannot leak into the orders
// stream through a copy-paste slip in a collaborator.
func (e *Emitter) emit(kind models.EventType, want models.Namespace, payload interface{}, opts []models.EventOption) {
	ns, ok := kind.Namespace()
	if !ok {
		logging.Error().
			Str("type", kind.String()).
			Msg("Discarding event of unknown type")
		return
	}
	if ns != want {
		logging.Error().
			Str("type", kind.String()).
			Str("namespace", ns.String()).
			Str("expected", want.String()).
			Msg("Discarding event emitted through the wrong wrapper")
		return
	}

	raw, err := models.MarshalPayload(payload)
	if err != nil {
		logging.Error().Err(err).
			Str("type", kind.String()).
			Msg("Discarding event with unencodable payload")
		return
	}

	ev, err := models.NewEvent(kind, raw, opts...)
	if err != nil {
		logging.Error().Err(err).
			Str("type", kind.String()).
			Msg("Discarding invalid event")
		return
	}

	e.sink.Emit(ev)
}

// Envelope is the transport-neutral form collaborators publish over the
// HTTP ingest route or the broker. The payload stays opaque here; only
// the routing fields are validated.
type Envelope struct {
	Type         models.EventType `json:"type"`
	Payload      json.RawMessage  `json:"payload,omitempty"`
	TargetUserID string           `json:"target_user_id,omitempty"`
	MinRole      models.Role      `json:"min_role,omitempty"`
}

// DecodeEnvelope parses and validates an envelope from its wire form.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if _, ok := env.Type.Namespace(); !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownEventType, env.Type)
	}
	if env.MinRole != "" && !env.MinRole.Valid() {
		return nil, fmt.Errorf("invalid min role %q", env.MinRole)
	}
	return &env, nil
}

// EmitEnvelope constructs an event from a decoded envelope and emits it.
// Unlike the typed wrappers this path reports the delivery outcome: the
// HTTP ingest route returns the report to its caller and the broker
// bridge uses the error to tell poison envelopes from delivered ones.
func (e *Emitter) EmitEnvelope(env *Envelope) (gateway.DeliveryReport, error) {
	if env == nil {
		return gateway.DeliveryReport{}, fmt.Errorf("nil envelope")
	}

	var opts []models.EventOption
	if env.TargetUserID != "" {
		opts = append(opts, models.WithTargetUser(env.TargetUserID))
	}
	if env.MinRole != "" {
		opts = append(opts, models.WithMinRole(env.MinRole))
	}

	ev, err := models.NewEvent(env.Type, env.Payload, opts...)
	if err != nil {
		return gateway.DeliveryReport{}, err
	}

	return e.sink.Emit(ev), nil
}

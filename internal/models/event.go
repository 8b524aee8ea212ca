// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// EventType identifies one kind of business event. The set is closed:
// every type must appear in EventNamespaces or NewEvent rejects it.
type EventType string

// Order lifecycle events.
const (
	EventOrderCreated       EventType = "order.created"
	EventOrderUpdated       EventType = "order.updated"
	EventOrderStatusChanged EventType = "order.status_changed"
	EventOrderCancelled     EventType = "order.cancelled"
	EventOrderFulfilled     EventType = "order.fulfilled"
)

// Inventory events.
const (
	EventInventoryAdjusted   EventType = "inventory.adjusted"
	EventInventoryLowStock   EventType = "inventory.low_stock"
	EventInventoryOutOfStock EventType = "inventory.out_of_stock"
	EventInventoryRestocked  EventType = "inventory.restocked"
)

// Product catalog events.
const (
	EventProductCreated      EventType = "product.created"
	EventProductUpdated      EventType = "product.updated"
	EventProductArchived     EventType = "product.archived"
	EventProductPriceChanged EventType = "product.price_changed"
)

// Payment events.
const (
	EventPaymentReceived EventType = "payment.received"
	EventPaymentFailed   EventType = "payment.failed"
	EventPaymentRefunded EventType = "payment.refunded"
)

// Customer events.
const (
	EventCustomerRegistered EventType = "customer.registered"
	EventCustomerUpdated    EventType = "customer.updated"
	EventCustomerActivity   EventType = "customer.activity"
)

// System events.
const (
	EventSystemNotice       EventType = "system.notice"
	EventSystemMaintenance  EventType = "system.maintenance"
	EventSystemAnnouncement EventType = "system.announcement"
)

// EventNamespaces binds every event type to its namespace. Fan-out uses
// this table to decide which subscribers are candidates for an event;
// a type absent from the table never reaches a connection.
var EventNamespaces = map[EventType]Namespace{
	EventOrderCreated:       NamespaceOrders,
	EventOrderUpdated:       NamespaceOrders,
	EventOrderStatusChanged: NamespaceOrders,
	EventOrderCancelled:     NamespaceOrders,
	EventOrderFulfilled:     NamespaceOrders,

	EventInventoryAdjusted:   NamespaceInventory,
	EventInventoryLowStock:   NamespaceInventory,
	EventInventoryOutOfStock: NamespaceInventory,
	EventInventoryRestocked:  NamespaceInventory,

	EventProductCreated:      NamespaceProducts,
	EventProductUpdated:      NamespaceProducts,
	EventProductArchived:     NamespaceProducts,
	EventProductPriceChanged: NamespaceProducts,

	EventPaymentReceived: NamespacePayments,
	EventPaymentFailed:   NamespacePayments,
	EventPaymentRefunded: NamespacePayments,

	EventCustomerRegistered: NamespaceCustomers,
	EventCustomerUpdated:    NamespaceCustomers,
	EventCustomerActivity:   NamespaceCustomers,

	EventSystemNotice:       NamespaceSystem,
	EventSystemMaintenance:  NamespaceSystem,
	EventSystemAnnouncement: NamespaceSystem,
}

// Validation errors returned by NewEvent.
var (
	// ErrUnknownEventType indicates a type missing from EventNamespaces.
	ErrUnknownEventType = errors.New("unknown event type")

	// ErrInvalidNamespace indicates a namespace outside the known set.
	ErrInvalidNamespace = errors.New("invalid namespace")
)

// Namespace returns the namespace the event type belongs to.
// ok is false for types missing from the taxonomy.
func (t EventType) Namespace() (Namespace, bool) {
	ns, ok := EventNamespaces[t]
	return ns, ok
}

func (t EventType) String() string {
	return string(t)
}

// Event is one broadcastable business event. Events are immutable after
// construction; NewEvent is the only constructor.
type Event struct {
	// ID uniquely identifies the event instance.
	ID uuid.UUID `json:"id"`

	// Type is the event kind, always present in EventNamespaces.
	Type EventType `json:"type"`

	// Namespace is the subscription channel, derived from Type.
	Namespace Namespace `json:"namespace"`

	// Payload is the event body, opaque to the gateway.
	Payload json.RawMessage `json:"payload,omitempty"`

	// TargetUserID restricts delivery to the matching user plus
	// unrestricted roles. Empty means no per-user targeting.
	TargetUserID string `json:"target_user_id,omitempty"`

	// MinRole is an optional privilege floor along the staff chain.
	// Empty means no floor.
	MinRole Role `json:"min_role,omitempty"`

	// CreatedAt is when the event was constructed.
	CreatedAt time.Time `json:"created_at"`
}

// EventOption customizes an event during construction.
type EventOption func(*Event)

// WithTargetUser restricts the event to one user (plus unrestricted roles).
func WithTargetUser(userID string) EventOption {
	return func(e *Event) { e.TargetUserID = userID }
}

// WithMinRole sets a privilege floor for receiving the event.
func WithMinRole(role Role) EventOption {
	return func(e *Event) { e.MinRole = role }
}

// NewEvent constructs a validated event. The namespace is derived from
// the type; unknown types return ErrUnknownEventType.
func NewEvent(eventType EventType, payload json.RawMessage, opts ...EventOption) (*Event, error) {
	ns, ok := eventType.Namespace()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}

	e := &Event{
		ID:        uuid.New(),
		Type:      eventType,
		Namespace: ns,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.MinRole != "" && !e.MinRole.Valid() {
		return nil, fmt.Errorf("invalid min role %q", e.MinRole)
	}

	return e, nil
}

// MarshalPayload encodes v as the payload for an event.
func MarshalPayload(v interface{}) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return data, nil
}

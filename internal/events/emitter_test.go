// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package events

import (
	"io"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/sokolive/soko/internal/gateway"
	"github.com/sokolive/soko/internal/logging"
	"github.com/sokolive/soko/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

// recorder captures emitted events instead of fanning them out.
type recorder struct {
	events []*models.Event
	report gateway.DeliveryReport
}

func (r *recorder) Emit(e *models.Event) gateway.DeliveryReport {
	r.events = append(r.events, e)
	return r.report
}

func (r *recorder) last(t *testing.T) *models.Event {
	t.Helper()
	if len(r.events) == 0 {
		t.Fatal("expected an emitted event, got none")
	}
	return r.events[len(r.events)-1]
}

func TestEmitter_TypedWrappers(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name      string
		emit      func(e *Emitter)
		wantType  models.EventType
		wantNS    models.Namespace
		checkBody func(t *testing.T, payload json.RawMessage)
	}{
		{
			name: "order",
			emit: func(e *Emitter) {
				e.EmitOrderEvent(models.EventOrderCreated, models.OrderSummary{
					OrderID:    "o-1001",
					Status:     "created",
					TotalCents: 1299,
					UpdatedAt:  now,
				})
			},
			wantType: models.EventOrderCreated,
			wantNS:   models.NamespaceOrders,
			checkBody: func(t *testing.T, payload json.RawMessage) {
				var got models.OrderSummary
				if err := json.Unmarshal(payload, &got); err != nil {
					t.Fatalf("unmarshal payload: %v", err)
				}
				if got.OrderID != "o-1001" || got.TotalCents != 1299 {
					t.Errorf("payload = %+v, want order o-1001 / 1299 cents", got)
				}
			},
		},
		{
			name: "inventory",
			emit: func(e *Emitter) {
				e.EmitInventoryEvent(models.EventInventoryLowStock, models.StockSummary{
					ProductID: "p-7",
					Quantity:  3,
					Threshold: 5,
				})
			},
			wantType: models.EventInventoryLowStock,
			wantNS:   models.NamespaceInventory,
		},
		{
			name: "product",
			emit: func(e *Emitter) {
				e.EmitProductEvent(models.EventProductPriceChanged, models.ProductSummary{
					ProductID:  "p-7",
					PriceCents: 4999,
				})
			},
			wantType: models.EventProductPriceChanged,
			wantNS:   models.NamespaceProducts,
		},
		{
			name: "payment",
			emit: func(e *Emitter) {
				e.EmitPaymentEvent(models.EventPaymentReceived, models.PaymentSummary{
					PaymentID:   "pay-1",
					OrderID:     "o-1001",
					Status:      "captured",
					AmountCents: 1299,
				})
			},
			wantType: models.EventPaymentReceived,
			wantNS:   models.NamespacePayments,
		},
		{
			name: "customer",
			emit: func(e *Emitter) {
				e.EmitCustomerActivity(models.EventCustomerActivity, models.CustomerActivity{
					CustomerID: "u-42",
					Action:     "cart_updated",
					OccurredAt: now,
				})
			},
			wantType: models.EventCustomerActivity,
			wantNS:   models.NamespaceCustomers,
		},
		{
			name: "system",
			emit: func(e *Emitter) {
				e.EmitSystemNotification(models.EventSystemMaintenance, models.SystemNotice{
					Title:    "maintenance window",
					Severity: "warning",
				})
			},
			wantType: models.EventSystemMaintenance,
			wantNS:   models.NamespaceSystem,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			tt.emit(New(rec))

			ev := rec.last(t)
			if ev.Type != tt.wantType {
				t.Errorf("event type = %q, want %q", ev.Type, tt.wantType)
			}
			if ev.Namespace != tt.wantNS {
				t.Errorf("event namespace = %q, want %q", ev.Namespace, tt.wantNS)
			}
			if ev.ID == uuid.Nil {
				t.Error("event ID not set")
			}
			if ev.CreatedAt.IsZero() {
				t.Error("event CreatedAt not set")
			}
			if tt.checkBody != nil {
				tt.checkBody(t, ev.Payload)
			}
		})
	}
}

func TestEmitter_Options(t *testing.T) {
	rec := &recorder{}
	e := New(rec)

	e.EmitOrderEvent(models.EventOrderStatusChanged,
		models.OrderSummary{OrderID: "o-1", Status: "shipped"},
		models.WithTargetUser("u-1"),
		models.WithMinRole(models.RoleStaff),
	)

	ev := rec.last(t)
	if ev.TargetUserID != "u-1" {
		t.Errorf("target user = %q, want u-1", ev.TargetUserID)
	}
	if ev.MinRole != models.RoleStaff {
		t.Errorf("min role = %q, want staff", ev.MinRole)
	}
}

func TestEmitter_WrongWrapperDiscarded(t *testing.T) {
	rec := &recorder{}
	e := New(rec)

	// A payment kind routed through the order wrapper must not reach
	// the broadcaster at all.
	e.EmitOrderEvent(models.EventPaymentReceived, models.OrderSummary{OrderID: "o-1"})
	if len(rec.events) != 0 {
		t.Fatalf("mismatched wrapper emitted %d events, want 0", len(rec.events))
	}

	e.EmitOrderEvent(models.EventType("order.exploded"), models.OrderSummary{OrderID: "o-1"})
	if len(rec.events) != 0 {
		t.Fatalf("unknown type emitted %d events, want 0", len(rec.events))
	}
}

func TestEmitter_InvalidOptionDiscarded(t *testing.T) {
	rec := &recorder{}
	e := New(rec)

	e.EmitSystemNotification(models.EventSystemNotice,
		models.SystemNotice{Title: "hello"},
		models.WithMinRole(models.Role("root")),
	)
	if len(rec.events) != 0 {
		t.Fatalf("invalid min role emitted %d events, want 0", len(rec.events))
	}
}

func TestDecodeEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{
			name: "valid",
			raw:  `{"type":"order.created","payload":{"order_id":"o-1"},"target_user_id":"u-1"}`,
		},
		{
			name: "valid with min role",
			raw:  `{"type":"payment.received","min_role":"manager"}`,
		},
		{
			name:    "unknown type",
			raw:     `{"type":"order.teleported"}`,
			wantErr: true,
		},
		{
			name:    "invalid min role",
			raw:     `{"type":"order.created","min_role":"root"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			raw:     `{"type":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := DecodeEnvelope([]byte(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeEnvelope: %v", err)
			}
			if env.Type == "" {
				t.Error("decoded envelope missing type")
			}
		})
	}
}

func TestEmitter_EmitEnvelope(t *testing.T) {
	rec := &recorder{report: gateway.DeliveryReport{Eligible: 2, Delivered: 2}}
	e := New(rec)

	env := &Envelope{
		Type:         models.EventOrderFulfilled,
		Payload:      json.RawMessage(`{"order_id":"o-9"}`),
		TargetUserID: "u-9",
		MinRole:      models.RoleCustomer,
	}

	report, err := e.EmitEnvelope(env)
	if err != nil {
		t.Fatalf("EmitEnvelope: %v", err)
	}
	if report.Delivered != 2 {
		t.Errorf("report delivered = %d, want 2", report.Delivered)
	}

	ev := rec.last(t)
	if ev.Type != models.EventOrderFulfilled {
		t.Errorf("event type = %q, want %q", ev.Type, models.EventOrderFulfilled)
	}
	if ev.TargetUserID != "u-9" || ev.MinRole != models.RoleCustomer {
		t.Errorf("routing fields = (%q, %q), want (u-9, customer)", ev.TargetUserID, ev.MinRole)
	}

	if _, err := e.EmitEnvelope(nil); err == nil {
		t.Error("nil envelope should error")
	}
	if _, err := e.EmitEnvelope(&Envelope{Type: "order.teleported"}); err == nil {
		t.Error("unknown type should error")
	}
	if len(rec.events) != 1 {
		t.Errorf("rejected envelopes emitted events, recorder has %d", len(rec.events))
	}
}

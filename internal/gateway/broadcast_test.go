// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package gateway

import (
	"testing"

	"github.com/sokolive/soko/internal/models"
	"github.com/sokolive/soko/internal/visibility"
)

func newTestBroadcaster(t *testing.T, r *Registry) *Broadcaster {
	t.Helper()
	mx, err := visibility.New(nil)
	if err != nil {
		t.Fatalf("visibility.New failed: %v", err)
	}
	return NewBroadcaster(r, mx)
}

func mustEvent(t *testing.T, typ models.EventType, opts ...models.EventOption) *models.Event {
	t.Helper()
	e, err := models.NewEvent(typ, []byte(`{"n":1}`), opts...)
	if err != nil {
		t.Fatalf("NewEvent failed: %v", err)
	}
	return e
}

func subscribeAll(t *testing.T, r *Registry, ns models.Namespace, conns ...*Conn) {
	t.Helper()
	for _, c := range conns {
		if err := r.Admit(c); err != nil {
			t.Fatalf("Admit %s failed: %v", c.ID, err)
		}
		if err := r.Subscribe(c.ID, ns); err != nil {
			t.Fatalf("Subscribe %s failed: %v", c.ID, err)
		}
	}
}

func drainEvents(c *Conn) []*models.ServerFrame {
	var out []*models.ServerFrame
	for {
		select {
		case f := <-c.send:
			out = append(out, f)
		default:
			return out
		}
	}
}

func TestBroadcaster_TargetedDelivery(t *testing.T) {
	r := NewRegistry(10)
	b := newTestBroadcaster(t, r)

	admin := newFakeConn("a1", models.RoleAdmin, "boss")
	owner := newFakeConn("c1", models.RoleCustomer, "u1")
	other := newFakeConn("c2", models.RoleCustomer, "u2")
	subscribeAll(t, r, models.NamespaceOrders, admin, owner, other)

	// Targeted at u2: the owner connection for u1 must not see it.
	report := b.Emit(mustEvent(t, models.EventOrderCreated, models.WithTargetUser("u2")))
	if report.Eligible != 2 || report.Delivered != 2 {
		t.Fatalf("Expected eligible=2 delivered=2, got %+v", report)
	}
	if got := drainEvents(owner); len(got) != 0 {
		t.Errorf("u1 connection received an event targeted at u2")
	}
	if got := drainEvents(other); len(got) != 1 {
		t.Errorf("u2 connection expected 1 event, got %d", len(got))
	}
	if got := drainEvents(admin); len(got) != 1 {
		t.Errorf("Unrestricted admin expected 1 event, got %d", len(got))
	}

	// Same event targeted at u1: now u1 receives it.
	report = b.Emit(mustEvent(t, models.EventOrderCreated, models.WithTargetUser("u1")))
	if report.Delivered != 2 {
		t.Fatalf("Expected delivered=2, got %+v", report)
	}
	if got := drainEvents(owner); len(got) != 1 {
		t.Errorf("u1 connection expected 1 event, got %d", len(got))
	}
}

func TestBroadcaster_RoleEntitlement(t *testing.T) {
	r := NewRegistry(10)
	b := newTestBroadcaster(t, r)

	admin := newFakeConn("a1", models.RoleAdmin, "boss")
	guest := newFakeConn("g1", models.RoleGuest, "anon")
	subscribeAll(t, r, models.NamespacePayments, admin, guest)

	report := b.Emit(mustEvent(t, models.EventPaymentReceived))
	if report.Eligible != 1 || report.Delivered != 1 {
		t.Fatalf("Expected only the admin eligible, got %+v", report)
	}
	if got := drainEvents(guest); len(got) != 0 {
		t.Errorf("Guest received a payments event despite the matrix")
	}
	if got := drainEvents(admin); len(got) != 1 {
		t.Errorf("Admin expected 1 event, got %d", len(got))
	}
}

func TestBroadcaster_MinRoleFloor(t *testing.T) {
	r := NewRegistry(10)
	b := newTestBroadcaster(t, r)

	manager := newFakeConn("m1", models.RoleManager, "m")
	staff := newFakeConn("s1", models.RoleStaff, "s")
	subscribeAll(t, r, models.NamespaceOrders, manager, staff)

	report := b.Emit(mustEvent(t, models.EventOrderCancelled, models.WithMinRole(models.RoleManager)))
	if report.Eligible != 1 {
		t.Fatalf("Expected eligible=1 with a manager floor, got %+v", report)
	}
	if got := drainEvents(staff); len(got) != 0 {
		t.Errorf("Staff received an event floored at manager")
	}
}

func TestBroadcaster_SlowConsumerDropsOldest(t *testing.T) {
	r := NewRegistry(10)
	b := newTestBroadcaster(t, r)

	slow := newFakeConnQueue("s1", models.RoleStaff, "u1", 1)
	subscribeAll(t, r, models.NamespaceInventory, slow)

	first := b.Emit(mustEvent(t, models.EventInventoryAdjusted))
	if first.Delivered != 1 || first.Dropped != 0 {
		t.Fatalf("First emit: %+v", first)
	}

	// Queue full: the oldest frame is displaced, the new one lands.
	second := b.Emit(mustEvent(t, models.EventInventoryLowStock))
	if second.Delivered != 1 || second.Dropped != 1 {
		t.Fatalf("Second emit expected delivered=1 dropped=1, got %+v", second)
	}

	got := drainEvents(slow)
	if len(got) != 1 {
		t.Fatalf("Expected 1 queued frame, got %d", len(got))
	}
	if got[0].Event != models.EventInventoryLowStock {
		t.Errorf("Expected the newest event queued, got %s", got[0].Event)
	}

	stats := r.Stats()
	if stats.EventsDelivered != 2 || stats.EventsDropped != 1 {
		t.Errorf("Registry totals delivered=%d dropped=%d", stats.EventsDelivered, stats.EventsDropped)
	}
}

func TestBroadcaster_SlowConsumerIsolation(t *testing.T) {
	r := NewRegistry(10)
	b := newTestBroadcaster(t, r)

	slow := newFakeConnQueue("a-slow", models.RoleStaff, "u1", 1)
	healthy := newFakeConnQueue("b-healthy", models.RoleStaff, "u2", 16)
	subscribeAll(t, r, models.NamespaceProducts, slow, healthy)

	for i := 0; i < 5; i++ {
		b.Emit(mustEvent(t, models.EventProductUpdated))
	}

	if got := drainEvents(healthy); len(got) != 5 {
		t.Errorf("Healthy consumer expected all 5 events, got %d", len(got))
	}
	if got := drainEvents(slow); len(got) != 1 {
		t.Errorf("Slow consumer expected exactly its queue depth, got %d", len(got))
	}
}

func TestBroadcaster_ClosedConnectionSkippedSilently(t *testing.T) {
	r := NewRegistry(10)
	b := newTestBroadcaster(t, r)

	c := newFakeConn("c1", models.RoleStaff, "u1")
	subscribeAll(t, r, models.NamespaceOrders, c)
	c.close(1000, "going away")

	report := b.Emit(mustEvent(t, models.EventOrderUpdated))
	if report.Eligible != 1 || report.Delivered != 0 || report.Dropped != 0 {
		t.Errorf("Closed connection should be skipped silently, got %+v", report)
	}
}

func TestBroadcaster_DiscardsMalformedEvents(t *testing.T) {
	r := NewRegistry(10)
	b := newTestBroadcaster(t, r)

	c := newFakeConn("c1", models.RoleAdmin, "u1")
	subscribeAll(t, r, models.NamespaceOrders, c)

	cases := []struct {
		name  string
		event *models.Event
	}{
		{"nil event", nil},
		{"unknown type", &models.Event{Type: "order.exploded", Namespace: models.NamespaceOrders}},
		{"invalid namespace", &models.Event{Type: models.EventOrderCreated, Namespace: "bogus"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			report := b.Emit(tc.event)
			if report != (DeliveryReport{}) {
				t.Errorf("Expected zero report, got %+v", report)
			}
		})
	}
	if got := drainEvents(c); len(got) != 0 {
		t.Errorf("Malformed events reached a connection: %d frames", len(got))
	}
}

func TestBroadcaster_PerConnectionFIFO(t *testing.T) {
	r := NewRegistry(10)
	b := newTestBroadcaster(t, r)

	c := newFakeConnQueue("c1", models.RoleStaff, "u1", 16)
	subscribeAll(t, r, models.NamespaceOrders, c)

	emitted := []*models.Event{
		mustEvent(t, models.EventOrderCreated),
		mustEvent(t, models.EventOrderUpdated),
		mustEvent(t, models.EventOrderFulfilled),
	}
	for _, e := range emitted {
		b.Emit(e)
	}

	got := drainEvents(c)
	if len(got) != 3 {
		t.Fatalf("Expected 3 frames, got %d", len(got))
	}
	for i, f := range got {
		if f.EventID != emitted[i].ID.String() {
			t.Errorf("Frame %d out of order: got event %s", i, f.EventID)
		}
	}
}

// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package visibility

import (
	"testing"

	"github.com/sokolive/soko/internal/models"
)

func newTestMatrix(t *testing.T) *Matrix {
	t.Helper()
	mx, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return mx
}

func TestVisibleMatrix(t *testing.T) {
	mx := newTestMatrix(t)

	// Full truth table for the role-visibility matrix.
	expected := map[models.Role]map[models.Namespace]bool{
		models.RoleAdmin: {
			models.NamespaceOrders:    true,
			models.NamespaceInventory: true,
			models.NamespaceProducts:  true,
			models.NamespacePayments:  true,
			models.NamespaceCustomers: true,
			models.NamespaceSystem:    true,
		},
		models.RoleManager: {
			models.NamespaceOrders:    true,
			models.NamespaceInventory: true,
			models.NamespaceProducts:  true,
			models.NamespacePayments:  true,
			models.NamespaceCustomers: true,
			models.NamespaceSystem:    true,
		},
		models.RoleStaff: {
			models.NamespaceOrders:    true,
			models.NamespaceInventory: true,
			models.NamespaceProducts:  true,
			models.NamespacePayments:  false,
			models.NamespaceCustomers: false,
			models.NamespaceSystem:    true,
		},
		models.RoleCustomer: {
			models.NamespaceOrders:    true,
			models.NamespaceInventory: false,
			models.NamespaceProducts:  false,
			models.NamespacePayments:  true,
			models.NamespaceCustomers: false,
			models.NamespaceSystem:    true,
		},
		models.RoleGuest: {
			models.NamespaceOrders:    false,
			models.NamespaceInventory: false,
			models.NamespaceProducts:  false,
			models.NamespacePayments:  false,
			models.NamespaceCustomers: false,
			models.NamespaceSystem:    true,
		},
	}

	for role, row := range expected {
		for ns, want := range row {
			if got := mx.Visible(role, ns); got != want {
				t.Errorf("Visible(%s, %s) = %v, want %v", role, ns, got, want)
			}
		}
	}
}

func TestVisibleDeniesUnknown(t *testing.T) {
	mx := newTestMatrix(t)

	if mx.Visible(models.Role("superuser"), models.NamespaceOrders) {
		t.Error("unknown role must be denied")
	}
	if mx.Visible(models.RoleAdmin, models.Namespace("billing")) {
		t.Error("unknown namespace must be denied")
	}
}

func TestVisibleCached(t *testing.T) {
	mx := newTestMatrix(t)

	// Two identical queries must agree; the second is served from cache.
	first := mx.Visible(models.RoleStaff, models.NamespaceOrders)
	second := mx.Visible(models.RoleStaff, models.NamespaceOrders)
	if first != second {
		t.Errorf("cached decision diverged: %v then %v", first, second)
	}

	mx.mu.RLock()
	_, cached := mx.cache[cacheKey{role: models.RoleStaff, ns: models.NamespaceOrders}]
	mx.mu.RUnlock()
	if !cached {
		t.Error("expected decision to be cached")
	}

	// Unknown roles must never grow the cache.
	mx.Visible(models.Role("nobody"), models.NamespaceOrders)
	mx.mu.RLock()
	_, cachedUnknown := mx.cache[cacheKey{role: models.Role("nobody"), ns: models.NamespaceOrders}]
	mx.mu.RUnlock()
	if cachedUnknown {
		t.Error("unknown role must not be cached")
	}
}

func TestEventVisibleTargetUser(t *testing.T) {
	mx := newTestMatrix(t)

	targeted, err := models.NewEvent(models.EventOrderStatusChanged,
		nil, models.WithTargetUser("u-1"))
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}

	tests := []struct {
		name   string
		role   models.Role
		userID string
		want   bool
	}{
		{"target customer receives own event", models.RoleCustomer, "u-1", true},
		{"other customer does not", models.RoleCustomer, "u-2", false},
		{"staff is restricted despite namespace access", models.RoleStaff, "u-9", false},
		{"manager sees any target", models.RoleManager, "u-9", true},
		{"admin sees any target", models.RoleAdmin, "u-9", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mx.EventVisible(tt.role, tt.userID, targeted); got != tt.want {
				t.Errorf("EventVisible(%s, %s) = %v, want %v", tt.role, tt.userID, got, tt.want)
			}
		})
	}
}

func TestEventVisibleUntargeted(t *testing.T) {
	mx := newTestMatrix(t)

	e, err := models.NewEvent(models.EventPaymentReceived, nil)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}

	if mx.EventVisible(models.RoleGuest, "u-1", e) {
		t.Error("guest must not see payment events")
	}
	if !mx.EventVisible(models.RoleAdmin, "", e) {
		t.Error("admin must see payment events")
	}
	if !mx.EventVisible(models.RoleCustomer, "u-1", e) {
		t.Error("customer must see untargeted payment events")
	}
}

func TestEventVisibleMinRole(t *testing.T) {
	mx := newTestMatrix(t)

	e, err := models.NewEvent(models.EventSystemNotice, nil,
		models.WithMinRole(models.RoleManager))
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}

	if mx.EventVisible(models.RoleStaff, "", e) {
		t.Error("staff is below the manager floor")
	}
	if !mx.EventVisible(models.RoleManager, "", e) {
		t.Error("manager meets the floor")
	}
	if !mx.EventVisible(models.RoleAdmin, "", e) {
		t.Error("admin exceeds the floor")
	}
	if mx.EventVisible(models.RoleCustomer, "", e) {
		t.Error("customer sits outside the staff chain")
	}
}

func TestEventVisibleNil(t *testing.T) {
	mx := newTestMatrix(t)

	if mx.EventVisible(models.RoleAdmin, "", nil) {
		t.Error("nil event must be denied")
	}
}

func TestVisibleNamespaces(t *testing.T) {
	mx := newTestMatrix(t)

	staff := mx.VisibleNamespaces(models.RoleStaff)
	want := []models.Namespace{
		models.NamespaceOrders,
		models.NamespaceInventory,
		models.NamespaceProducts,
		models.NamespaceSystem,
	}
	if len(staff) != len(want) {
		t.Fatalf("VisibleNamespaces(staff) = %v, want %v", staff, want)
	}
	for i := range want {
		if staff[i] != want[i] {
			t.Errorf("VisibleNamespaces(staff)[%d] = %s, want %s", i, staff[i], want[i])
		}
	}

	if got := mx.VisibleNamespaces(models.RoleGuest); len(got) != 1 || got[0] != models.NamespaceSystem {
		t.Errorf("VisibleNamespaces(guest) = %v, want [system]", got)
	}
}

func TestPolicyCounts(t *testing.T) {
	mx := newTestMatrix(t)

	policies, groupings := mx.PolicyCounts()
	if policies != 10 {
		t.Errorf("policies = %d, want 10", policies)
	}
	if groupings != 2 {
		t.Errorf("groupings = %d, want 2", groupings)
	}
}

func BenchmarkVisible(b *testing.B) {
	mx, err := New(nil)
	if err != nil {
		b.Fatalf("New: %v", err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mx.Visible(models.RoleStaff, models.NamespaceOrders)
	}
}

// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package models

import "fmt"

// Role is the authorization role attached to a connection's identity.
// Roles align with the Casbin policy definitions in internal/visibility.
type Role string

const (
	// RoleAdmin has full access including the stats endpoint and inherits manager.
	RoleAdmin Role = "admin"

	// RoleManager sees payment and customer events and inherits staff.
	RoleManager Role = "manager"

	// RoleStaff is the back-office default: orders, inventory, products, system.
	RoleStaff Role = "staff"

	// RoleCustomer is a storefront shopper: own orders, own payments, system.
	RoleCustomer Role = "customer"

	// RoleGuest is an unauthenticated-tier identity: system notices only.
	RoleGuest Role = "guest"
)

// roles lists all valid roles in privilege order.
var roles = []Role{RoleAdmin, RoleManager, RoleStaff, RoleCustomer, RoleGuest}

// Roles returns all valid roles in a stable order.
func Roles() []Role {
	out := make([]Role, len(roles))
	copy(out, roles)
	return out
}

// ParseRole converts a string to a Role, rejecting unknown values.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Valid reports whether the role is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleStaff, RoleCustomer, RoleGuest:
		return true
	default:
		return false
	}
}

// Unrestricted reports whether the role receives user-targeted events
// regardless of the target user. Only admin and manager qualify; a
// staff connection never sees another user's targeted traffic.
func (r Role) Unrestricted() bool {
	return r == RoleAdmin || r == RoleManager
}

// AtLeast reports whether r carries at least the privilege of min along
// the admin > manager > staff chain. customer and guest sit outside the
// chain and only satisfy themselves.
func (r Role) AtLeast(min Role) bool {
	if r == min {
		return true
	}
	switch min {
	case RoleStaff:
		return r == RoleAdmin || r == RoleManager
	case RoleManager:
		return r == RoleAdmin
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}

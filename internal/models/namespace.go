// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package models

import "fmt"

// Namespace is a subscription channel grouping related event types.
// A connection subscribes to namespaces, never to individual event types.
type Namespace string

const (
	// NamespaceOrders carries order lifecycle events.
	NamespaceOrders Namespace = "orders"

	// NamespaceInventory carries stock level events.
	NamespaceInventory Namespace = "inventory"

	// NamespaceProducts carries catalog change events.
	NamespaceProducts Namespace = "products"

	// NamespacePayments carries payment outcome events.
	NamespacePayments Namespace = "payments"

	// NamespaceCustomers carries customer account events.
	NamespaceCustomers Namespace = "customers"

	// NamespaceSystem carries operator notices and maintenance windows.
	NamespaceSystem Namespace = "system"
)

// namespaces lists all valid namespaces in display order.
var namespaces = []Namespace{
	NamespaceOrders,
	NamespaceInventory,
	NamespaceProducts,
	NamespacePayments,
	NamespaceCustomers,
	NamespaceSystem,
}

// Namespaces returns all valid namespaces in a stable order.
func Namespaces() []Namespace {
	out := make([]Namespace, len(namespaces))
	copy(out, namespaces)
	return out
}

// ParseNamespace converts a string to a Namespace, rejecting unknown values.
func ParseNamespace(s string) (Namespace, error) {
	ns := Namespace(s)
	if !ns.Valid() {
		return "", fmt.Errorf("unknown namespace %q", s)
	}
	return ns, nil
}

// Valid reports whether the namespace is a known namespace.
func (ns Namespace) Valid() bool {
	switch ns {
	case NamespaceOrders, NamespaceInventory, NamespaceProducts,
		NamespacePayments, NamespaceCustomers, NamespaceSystem:
		return true
	default:
		return false
	}
}

func (ns Namespace) String() string {
	return string(ns)
}

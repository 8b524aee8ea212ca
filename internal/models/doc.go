// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

// Package models defines the domain model shared by every Soko component:
// roles, event namespaces, the closed event-type taxonomy, broadcast events,
// and the wire protocol frames exchanged over a gateway connection.
//
// The model depends on nothing beyond JSON encoding and UUID generation,
// so both the server (internal/gateway) and the consumer client
// (pkg/wsclient) can import it.
//
// # Roles
//
// Five roles exist, ordered here from most to least privileged:
//
//	admin > manager > staff
//	customer
//	guest
//
// admin and manager are unrestricted: they receive user-targeted events
// regardless of the target. staff, customer and guest only receive a
// targeted event when it targets their own user id.
//
// # Namespaces and Event Types
//
// Every event type belongs to exactly one namespace (orders, inventory,
// products, payments, customers, system). The binding is a static table
// (EventNamespaces); NewEvent refuses types missing from it, which keeps
// the taxonomy closed.
package models

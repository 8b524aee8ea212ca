// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package models

import "time"

// Typed payload summaries used by the collaborator-facing emitters in
// internal/events. These are summaries, not full records: the commerce
// app keeps the canonical rows, the gateway only fans out what a UI
// needs to update itself.

// OrderSummary is the payload for order.* events.
type OrderSummary struct {
	OrderID    string    `json:"order_id"`
	CustomerID string    `json:"customer_id,omitempty"`
	Status     string    `json:"status"`
	TotalCents int64     `json:"total_cents"`
	Currency   string    `json:"currency,omitempty"`
	ItemCount  int       `json:"item_count,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// StockSummary is the payload for inventory.* events.
type StockSummary struct {
	ProductID string `json:"product_id"`
	SKU       string `json:"sku,omitempty"`
	Location  string `json:"location,omitempty"`
	Quantity  int    `json:"quantity"`
	Threshold int    `json:"threshold,omitempty"`
	Delta     int    `json:"delta,omitempty"`
}

// ProductSummary is the payload for product.* events.
type ProductSummary struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name,omitempty"`
	PriceCents int64  `json:"price_cents,omitempty"`
	Currency   string `json:"currency,omitempty"`
	Archived   bool   `json:"archived,omitempty"`
}

// PaymentSummary is the payload for payment.* events.
type PaymentSummary struct {
	PaymentID   string `json:"payment_id"`
	OrderID     string `json:"order_id"`
	CustomerID  string `json:"customer_id,omitempty"`
	Status      string `json:"status"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// CustomerActivity is the payload for customer.* events.
type CustomerActivity struct {
	CustomerID string    `json:"customer_id"`
	Action     string    `json:"action"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// SystemNotice is the payload for system.* events.
type SystemNotice struct {
	Title    string     `json:"title"`
	Body     string     `json:"body,omitempty"`
	Severity string     `json:"severity,omitempty"`
	StartsAt *time.Time `json:"starts_at,omitempty"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`
}

// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package api

import "time"

// Request bodies with their validation tags, checked through
// internal/validation before any domain code runs.

// CreateSessionRequest is the body of POST /api/v1/sessions. The ID is
// the opaque credential the commerce app minted at login; the gateway
// only bounds its length.
type CreateSessionRequest struct {
	ID        string    `json:"id"         validate:"required,min=16,max=128"`
	UserID    string    `json:"user_id"    validate:"required,max=128"`
	Role      string    `json:"role"       validate:"required,oneof=admin manager staff customer guest"`
	ExpiresAt time.Time `json:"expires_at" validate:"required"`
}

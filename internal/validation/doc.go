// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

// Package validation provides struct validation using go-playground/validator v10.
//
// This package wraps the go-playground/validator library in a thread-safe
// singleton with human-readable error translation. The API layer runs every
// decoded request body through it before touching domain code, so handlers
// only ever see structurally sound input.
//
// # Quick Start
//
//	type CreateSessionRequest struct {
//	    ID        string    `validate:"required,min=16,max=128"`
//	    UserID    string    `validate:"required,max=128"`
//	    Role      string    `validate:"required,oneof=admin manager staff customer guest"`
//	    ExpiresAt time.Time `validate:"required"`
//	}
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    apiErr := verr.ToAPIError()
//	    respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message)
//	    return
//	}
//
// # Error Translation
//
// Field errors are translated into messages suitable for API responses:
//
//	required   -> "ID is required"
//	min=16     -> "ID must be at least 16 characters"
//	max=128    -> "UserID must be at most 128 characters"
//	oneof=a b  -> "Role must be one of: a b"
//
// ToAPIError aggregates them under the stable code "validation_failed",
// matching the snake_case error taxonomy used on the wire protocol and the
// REST envelope.
//
// # Thread Safety
//
// The singleton validator caches struct reflection info and is safe for
// concurrent use from any number of request goroutines.
package validation

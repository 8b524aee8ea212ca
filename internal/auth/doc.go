// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

// Package auth verifies the identity a client claims during the
// gateway handshake.
//
// Three modes are supported, selected by security.auth_mode:
//
//   - session: the presented session ID is verified against the
//     session store. The store sits behind a circuit breaker and a
//     short-lived verdict cache so a slow or failing store degrades
//     admission instead of stalling it.
//   - token: the presented JWT is verified locally with an HMAC
//     secret. No store round-trip, no revocation before expiry.
//   - insecure: the claimed identity is accepted as-is. Development
//     only; startup validation rejects it in production.
//
// All modes return the same Identity, and all failures map onto a
// small set of sentinel errors that the gateway translates into wire
// error codes.
package auth

// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

/*
frames.go - Wire Protocol

Every message on a gateway connection is a single JSON text frame with a
"type" discriminator. Clients send auth, subscribe, unsubscribe, ping and
pong; the server sends connected, subscribed, unsubscribed, event, ping,
pong and error.

Protocol revision: 1. Additive changes (new frame types, new fields) do
not bump the revision; changing the meaning of an existing field does.
*/

package models

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// ProtocolRevision is the wire protocol revision reported by /info and
// the connected frame.
const ProtocolRevision = 1

// FrameType discriminates wire frames in both directions.
type FrameType string

// Client-to-server frame types.
const (
	FrameAuth        FrameType = "auth"
	FrameSubscribe   FrameType = "subscribe"
	FrameUnsubscribe FrameType = "unsubscribe"
	FramePing        FrameType = "ping"
	FramePong        FrameType = "pong"
)

// Server-to-client frame types (ping and pong flow both ways).
const (
	FrameConnected    FrameType = "connected"
	FrameSubscribed   FrameType = "subscribed"
	FrameUnsubscribed FrameType = "unsubscribed"
	FrameEvent        FrameType = "event"
	FrameError        FrameType = "error"
)

// ErrorCode is a stable machine-readable code carried on error frames.
// Codes are part of the protocol contract: clients branch on them to
// decide between retrying and giving up.
type ErrorCode string

const (
	CodeUnauthenticated  ErrorCode = "unauthenticated"
	CodeAdmissionDenied  ErrorCode = "admission_rejected"
	CodeCapacityExceeded ErrorCode = "capacity_exceeded"
	CodeOriginNotAllowed ErrorCode = "origin_not_allowed"
	CodeRateLimited      ErrorCode = "rate_limited"
	CodeInvalidNamespace ErrorCode = "invalid_namespace"
	CodePayloadTooLarge  ErrorCode = "payload_too_large"
	CodeMalformedFrame   ErrorCode = "malformed_frame"
	CodeSessionExpired   ErrorCode = "session_expired"
	CodeServerShutdown   ErrorCode = "server_shutdown"
)

// Terminal reports whether the code indicates a condition reconnecting
// will not fix. Clients stop retrying on terminal codes.
func (c ErrorCode) Terminal() bool {
	switch c {
	case CodeUnauthenticated, CodeOriginNotAllowed, CodeSessionExpired:
		return true
	default:
		return false
	}
}

// WebSocket close codes in the application range. 4xxx codes mirror the
// error taxonomy so a client that only sees the close frame can still
// classify the disconnect.
const (
	CloseUnauthenticated   = 4001
	CloseCapacityExceeded  = 4002
	CloseOriginNotAllowed  = 4003
	CloseProtocolViolation = 4008
	CloseHeartbeatTimeout  = 4009
)

// ClientFrame is a frame sent by the client. Data is decoded lazily
// according to Type.
type ClientFrame struct {
	Type FrameType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// AuthData is the payload of an auth frame: the session credential
// minted by the commerce app at login.
type AuthData struct {
	SessionID string    `json:"session_id,omitempty"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Token     string    `json:"token,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// SubscribeData is the payload of subscribe and unsubscribe frames.
type SubscribeData struct {
	Namespace string `json:"namespace"`
}

// DecodeAuth decodes the frame payload as AuthData.
func (f *ClientFrame) DecodeAuth() (*AuthData, error) {
	if f.Type != FrameAuth {
		return nil, fmt.Errorf("frame type %q is not auth", f.Type)
	}
	var d AuthData
	if err := json.Unmarshal(f.Data, &d); err != nil {
		return nil, fmt.Errorf("decode auth data: %w", err)
	}
	return &d, nil
}

// DecodeSubscribe decodes the frame payload as SubscribeData.
func (f *ClientFrame) DecodeSubscribe() (*SubscribeData, error) {
	if f.Type != FrameSubscribe && f.Type != FrameUnsubscribe {
		return nil, fmt.Errorf("frame type %q is not subscribe/unsubscribe", f.Type)
	}
	var d SubscribeData
	if err := json.Unmarshal(f.Data, &d); err != nil {
		return nil, fmt.Errorf("decode subscribe data: %w", err)
	}
	return &d, nil
}

// ServerFrame is a frame sent by the server. Exactly one of the optional
// field groups is populated depending on Type.
type ServerFrame struct {
	Type FrameType `json:"type"`

	// Event delivery fields (Type == FrameEvent).
	EventID   string          `json:"event_id,omitempty"`
	Event     EventType       `json:"event,omitempty"`
	Namespace Namespace       `json:"namespace,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp *time.Time      `json:"ts,omitempty"`

	// Control fields (connected, subscribed, unsubscribed).
	ConnectionID string `json:"connection_id,omitempty"`
	Protocol     int    `json:"protocol,omitempty"`
	Channel      string `json:"channel,omitempty"`

	// Error fields (Type == FrameError).
	Code    ErrorCode `json:"code,omitempty"`
	Message string    `json:"message,omitempty"`
}

// NewEventFrame wraps a broadcast event for delivery.
func NewEventFrame(e *Event) *ServerFrame {
	ts := e.CreatedAt
	return &ServerFrame{
		Type:      FrameEvent,
		EventID:   e.ID.String(),
		Event:     e.Type,
		Namespace: e.Namespace,
		Payload:   e.Payload,
		Timestamp: &ts,
	}
}

// NewConnectedFrame acknowledges a successful admission.
func NewConnectedFrame(connectionID string) *ServerFrame {
	return &ServerFrame{
		Type:         FrameConnected,
		ConnectionID: connectionID,
		Protocol:     ProtocolRevision,
	}
}

// NewSubscribedFrame acknowledges a subscription.
func NewSubscribedFrame(ns Namespace) *ServerFrame {
	return &ServerFrame{Type: FrameSubscribed, Channel: ns.String()}
}

// NewUnsubscribedFrame acknowledges an unsubscription.
func NewUnsubscribedFrame(ns Namespace) *ServerFrame {
	return &ServerFrame{Type: FrameUnsubscribed, Channel: ns.String()}
}

// NewErrorFrame reports a protocol or admission error to the client.
func NewErrorFrame(code ErrorCode, message string) *ServerFrame {
	return &ServerFrame{Type: FrameError, Code: code, Message: message}
}

// NewPingFrame builds a server-initiated application ping.
func NewPingFrame() *ServerFrame {
	return &ServerFrame{Type: FramePing}
}

// NewPongFrame answers a client application ping.
func NewPongFrame() *ServerFrame {
	return &ServerFrame{Type: FramePong}
}

// Encode marshals the frame for the wire.
func (f *ServerFrame) Encode() ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.Type, err)
	}
	return data, nil
}

// DecodeClientFrame parses a raw inbound frame.
func DecodeClientFrame(data []byte) (*ClientFrame, error) {
	var f ClientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode client frame: %w", err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("client frame missing type")
	}
	return &f, nil
}

// DecodeServerFrame parses a raw outbound frame; used by pkg/wsclient.
func DecodeServerFrame(data []byte) (*ServerFrame, error) {
	var f ServerFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode server frame: %w", err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("server frame missing type")
	}
	return &f, nil
}

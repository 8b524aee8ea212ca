// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

/*
Package wsclient is a reconnecting Go consumer for the gateway's
websocket event stream.

The client owns the full connection lifecycle so applications only
deal with events: it dials, authenticates, subscribes, answers
heartbeats, and when the connection drops it backs off, redials and
replays every subscription before reporting itself connected again.

Lifecycle:

	Disconnected ──► Connecting ──► Authenticating ──► Subscribed
	                     ▲                                  │
	                     └───────── backoff ◄───────────────┘
	                     │
	                     ▼
	                  Offline (terminal)

A session counts as established only once every wanted namespace has
its subscribed acknowledgement, so OnStateChange(StateSubscribed)
guarantees there is no namespace gap after a reconnect. Events that
occurred during the outage are not replayed; delivery is at-most-once.

Reconnect policy:

  - Delays double from BackoffMin (500ms) to BackoffMax (30s) with
    jitter, and reset after each established session.
  - MaxAttempts (5) consecutive failed attempts move the client to
    StateOffline permanently.
  - Rejections that reconnecting cannot fix, such as a bad credential
    or a disallowed origin, skip the retry loop entirely. Check with
    ServerError.Terminal.

Keepalive: the client sends an application-level ping every KeepAlive
(25s). MissedPongs (2) unanswered pings in a row declare the link dead
and trigger a reconnect without waiting for TCP to notice. Server
pings are answered automatically.

Usage:

	client, err := wsclient.New(wsclient.Config{
	    URL:         "wss://gateway.example.com/ws",
	    Origin:      "https://app.example.com",
	    Credentials: wsclient.Credentials{SessionID: sessionID},
	    Namespaces:  []string{"orders", "inventory"},
	    OnEvent: func(ev wsclient.Event) {
	        log.Printf("%s on %s: %s", ev.Type, ev.Namespace, ev.Payload)
	    },
	    OnStateChange: func(s wsclient.State) {
	        log.Printf("gateway connection is %s", s)
	    },
	})
	if err != nil {
	    return err
	}
	if err := client.Connect(ctx); err != nil {
	    return err
	}
	defer client.Close()

All three callbacks run on one dispatch goroutine in delivery order.
A slow callback delays later deliveries but never drops or reorders
them; heavy work belongs on the application's own goroutines.
*/
package wsclient

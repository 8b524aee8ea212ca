// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package intake

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

const (
	// serverReadyTimeout bounds embedded broker startup. JetStream
	// replays its store on boot, so cold starts with a large store
	// directory can take a while.
	serverReadyTimeout = 30 * time.Second

	// serverMaxPayload caps a single broker message. Envelopes carry
	// summaries, not full records; anything near this size is a bug in
	// a collaborator.
	serverMaxPayload = 1 << 20 // 1MB
)

// EmbeddedServer wraps an in-process NATS JetStream broker with
// lifecycle management. It lets a single-node deployment run without an
// external broker while keeping the same wire contract as one.
type EmbeddedServer struct {
	server    *server.Server
	clientURL string
}

// ServerOptions holds embedded broker settings.
type ServerOptions struct {
	// Host and Port form the listen address. Port -1 picks a random
	// free port, which tests rely on.
	Host string
	Port int

	// StoreDir is the JetStream storage directory.
	StoreDir string

	// MaxMemory and MaxStore bound JetStream memory and disk usage.
	MaxMemory int64
	MaxStore  int64
}

// NewEmbeddedServer starts an embedded NATS server and waits for it to
// accept connections.
func NewEmbeddedServer(opts ServerOptions) (*EmbeddedServer, error) {
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}

	ns, err := server.NewServer(&server.Options{
		ServerName:         "soko-intake",
		Host:               opts.Host,
		Port:               opts.Port,
		JetStream:          true,
		StoreDir:           opts.StoreDir,
		JetStreamMaxMemory: opts.MaxMemory,
		JetStreamMaxStore:  opts.MaxStore,
		MaxPayload:         serverMaxPayload,
	})
	if err != nil {
		return nil, fmt.Errorf("create nats server: %w", err)
	}

	ns.SetLogger(natsLogger{}, false, false)

	go ns.Start()

	if !ns.ReadyForConnections(serverReadyTimeout) {
		ns.Shutdown()
		return nil, fmt.Errorf("nats server not ready within %s", serverReadyTimeout)
	}

	return &EmbeddedServer{
		server:    ns,
		clientURL: ns.ClientURL(),
	}, nil
}

// ClientURL returns the connection URL for clients.
func (s *EmbeddedServer) ClientURL() string {
	return s.clientURL
}

// Running reports whether the broker is accepting connections.
func (s *EmbeddedServer) Running() bool {
	return s.server.Running()
}

// JetStreamEnabled reports whether JetStream came up with the broker.
func (s *EmbeddedServer) JetStreamEnabled() bool {
	return s.server.JetStreamEnabled()
}

// Shutdown stops the broker and waits for it to wind down or the
// context to expire.
func (s *EmbeddedServer) Shutdown(ctx context.Context) error {
	s.server.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.WaitForShutdown()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// listenAddress extracts the host and port the embedded broker should
// listen on from the configured client URL, so NATS_URL stays the only
// address knob whether the broker is embedded or external.
func listenAddress(rawURL string) (host string, port int) {
	host, port = "127.0.0.1", 4222

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return host, port
	}

	h, p, err := net.SplitHostPort(u.Host)
	if err != nil {
		return u.Host, port
	}
	if h != "" {
		host = h
	}
	if n, err := strconv.Atoi(p); err == nil {
		port = n
	}
	return host, port
}

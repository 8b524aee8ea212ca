// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package gateway

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sokolive/soko/internal/auth"
	"github.com/sokolive/soko/internal/logging"
	"github.com/sokolive/soko/internal/metrics"
	"github.com/sokolive/soko/internal/models"
	"github.com/sokolive/soko/internal/ratelimit"
)

// writeWait bounds every socket write, including the close frame.
const writeWait = 10 * time.Second

// Conn is one admitted client connection. Identity fields are bound at
// admission and immutable afterwards; only liveness, rate-limit and
// subscription state mutate. The read pump is the sole owner of the
// limiter and the violation counter; heartbeat fields are atomics
// because the monitor and the read pump touch them concurrently.
type Conn struct {
	// ID is the opaque connection id assigned at admission.
	ID string

	// Identity is the verified client identity, never client claims.
	Identity auth.Identity

	gw   *Gateway
	ws   *websocket.Conn
	send chan *models.ServerFrame

	limiter    *ratelimit.Counter
	violations int

	openedAt     time.Time
	lastPong     atomic.Int64
	pongDeadline atomic.Int64

	closeOnce sync.Once
	closeCode int
	closeText string
	done      chan struct{}
}

func newConn(gw *Gateway, ws *websocket.Conn, identity auth.Identity) *Conn {
	c := &Conn{
		ID:       uuid.NewString(),
		Identity: identity,
		gw:       gw,
		ws:       ws,
		send:     make(chan *models.ServerFrame, gw.cfg.SendQueueSize),
		limiter: ratelimit.NewCounter(ratelimit.Window{
			Limit:  gw.cfg.RateLimitEvents,
			Length: gw.cfg.RateLimitWindow,
		}),
		openedAt: time.Now(),
		done:     make(chan struct{}),
	}
	c.lastPong.Store(c.openedAt.UnixNano())
	return c
}

// start launches the read and write pumps. Called once, after the
// connection is registered and the connected frame is queued.
func (c *Conn) start() {
	go c.writePump()
	go c.readPump()
}

// enqueue appends f to the outbound queue without ever blocking the
// caller. When the queue is full the oldest pending frame is evicted
// to make room, so a slow consumer loses the head of its backlog
// rather than stalling fan-out. Returns the number of evicted frames.
func (c *Conn) enqueue(f *models.ServerFrame) (evicted int, err error) {
	select {
	case <-c.done:
		return 0, ErrConnectionClosed
	default:
	}

	select {
	case c.send <- f:
		return 0, nil
	default:
	}

	// Queue full: evict the head and retry once. A concurrent producer
	// can win the freed slot, in which case f itself is the casualty.
	select {
	case <-c.send:
		evicted = 1
	default:
	}

	select {
	case c.send <- f:
		return evicted, nil
	case <-c.done:
		return evicted, ErrConnectionClosed
	default:
		return evicted, ErrQueueFull
	}
}

// close requests teardown with the given close code. Idempotent. The
// write pump flushes pending frames, sends the close frame and closes
// the socket; the read pump then unblocks and deregisters the
// connection.
func (c *Conn) close(code int, text string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeText = text
		close(c.done)
	})
}

// markPong records a pong: the connection returns to Alive and its
// last-seen timestamp refreshes.
func (c *Conn) markPong(now time.Time) {
	c.pongDeadline.Store(0)
	c.lastPong.Store(now.UnixNano())
}

// armPing records an outstanding ping. Monitor goroutine only.
func (c *Conn) armPing(deadline time.Time) {
	c.pongDeadline.Store(deadline.UnixNano())
}

// awaitingPong reports whether a ping is outstanding.
func (c *Conn) awaitingPong() bool {
	return c.pongDeadline.Load() != 0
}

// pingOverdue reports whether an outstanding ping has passed its
// deadline without a pong.
func (c *Conn) pingOverdue(now time.Time) bool {
	d := c.pongDeadline.Load()
	return d != 0 && now.UnixNano() > d
}

// LastPong returns the last time the client proved liveness.
func (c *Conn) LastPong() time.Time {
	return time.Unix(0, c.lastPong.Load())
}

// readPump consumes inbound frames until the socket dies or the
// connection is torn down. Runs as its own goroutine; per-connection
// failures stay on this connection.
func (c *Conn) readPump() {
	defer func() {
		c.gw.registry.Remove(c.ID)
		c.close(websocket.CloseNormalClosure, "")
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Debug().Err(err).
					Str("connection_id", c.ID).
					Msg("Connection read failed")
			}
			return
		}
		metrics.MessagesReceived.Inc()

		// Frames above the policy ceiling but below the transport hard
		// cap land here and are rejected individually.
		if int64(len(data)) > c.gw.cfg.MaxPayloadBytes {
			if c.violation("oversized", models.CodePayloadTooLarge, "frame exceeds payload ceiling") {
				return
			}
			continue
		}

		frame, err := models.DecodeClientFrame(data)
		if err != nil {
			if c.violation("malformed", models.CodeMalformedFrame, "frame is not valid") {
				return
			}
			continue
		}

		now := time.Now()

		// Pongs answer our own pings and are exempt from rate limiting.
		if frame.Type == models.FramePong {
			c.markPong(now)
			continue
		}

		if !c.limiter.Allow(now) {
			metrics.RateLimitedFrames.Inc()
			c.sendError(models.CodeRateLimited, "rate limit exceeded")
			continue
		}

		if c.handleFrame(frame) {
			return
		}
	}
}

// handleFrame dispatches one rate-limited inbound frame. Returns true
// when the connection must tear down.
func (c *Conn) handleFrame(frame *models.ClientFrame) (teardown bool) {
	switch frame.Type {
	case models.FramePing:
		_, _ = c.enqueue(models.NewPongFrame())
		return false
	case models.FrameSubscribe, models.FrameUnsubscribe:
		return c.handleSubscribe(frame)
	default:
		// Anything else, including a second auth frame, is out of
		// protocol once the connection is admitted.
		return c.violation("unexpected_type", models.CodeMalformedFrame,
			fmt.Sprintf("unexpected frame type %q", frame.Type))
	}
}

func (c *Conn) handleSubscribe(frame *models.ClientFrame) (teardown bool) {
	d, err := frame.DecodeSubscribe()
	if err != nil {
		return c.violation("malformed", models.CodeMalformedFrame, "bad subscribe payload")
	}

	ns, err := models.ParseNamespace(d.Namespace)
	if err != nil {
		c.sendError(models.CodeInvalidNamespace, fmt.Sprintf("unknown namespace %q", d.Namespace))
		return false
	}

	if frame.Type == models.FrameSubscribe {
		if err := c.gw.registry.Subscribe(c.ID, ns); err != nil {
			// Lost a race with Remove; the pumps are on their way out.
			return false
		}
		_, _ = c.enqueue(models.NewSubscribedFrame(ns))
		logging.Debug().
			Str("connection_id", c.ID).
			Str("namespace", ns.String()).
			Msg("Subscribed")
		return false
	}

	if err := c.gw.registry.Unsubscribe(c.ID, ns); err != nil {
		return false
	}
	_, _ = c.enqueue(models.NewUnsubscribedFrame(ns))
	logging.Debug().
		Str("connection_id", c.ID).
		Str("namespace", ns.String()).
		Msg("Unsubscribed")
	return false
}

// violation counts one protocol violation, reports it to the client
// and decides teardown. Crossing the configured limit closes the
// connection with CloseProtocolViolation.
func (c *Conn) violation(kind string, code models.ErrorCode, msg string) (teardown bool) {
	metrics.ProtocolViolations.WithLabelValues(kind).Inc()
	c.violations++
	c.sendError(code, msg)

	limit := c.gw.cfg.ViolationLimit
	if limit > 0 && c.violations >= limit {
		logging.Warn().
			Str("connection_id", c.ID).
			Str("kind", kind).
			Int("violations", c.violations).
			Msg("Violation limit reached, closing connection")
		c.close(models.CloseProtocolViolation, "too many protocol violations")
		return true
	}
	return false
}

func (c *Conn) sendError(code models.ErrorCode, msg string) {
	_, _ = c.enqueue(models.NewErrorFrame(code, msg))
}

// writePump is the sole writer on the socket. It drains the outbound
// queue until teardown is requested, then flushes what is already
// queued, sends the close frame and closes the socket, which in turn
// unblocks the read pump.
func (c *Conn) writePump() {
	defer func() {
		_ = c.ws.Close()
	}()

	for {
		select {
		case f := <-c.send:
			if !c.writeFrame(f) {
				c.close(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-c.done:
			c.flushPending()
			msg := websocket.FormatCloseMessage(c.closeCode, c.closeText)
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, msg)
			return
		}
	}
}

// flushPending writes frames already queued at teardown so an error
// frame explaining the close still reaches the client.
func (c *Conn) flushPending() {
	for {
		select {
		case f := <-c.send:
			if !c.writeFrame(f) {
				return
			}
		default:
			return
		}
	}
}

// writeFrame writes one frame with a deadline. Returns false when the
// socket is no longer usable.
func (c *Conn) writeFrame(f *models.ServerFrame) bool {
	data, err := f.Encode()
	if err != nil {
		// An unencodable frame is that frame's problem, not the
		// socket's.
		logging.Error().Err(err).
			Str("connection_id", c.ID).
			Str("frame_type", string(f.Type)).
			Msg("Frame encode failed")
		return true
	}

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		logging.Debug().Err(err).
			Str("connection_id", c.ID).
			Msg("Connection write failed")
		return false
	}
	metrics.MessagesSent.Inc()
	return true
}

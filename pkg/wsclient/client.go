// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package wsclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sokolive/soko/internal/models"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultBackoffMin       = 500 * time.Millisecond
	DefaultBackoffMax       = 30 * time.Second
	DefaultJitter           = 0.2
	DefaultMaxAttempts      = 5
	DefaultKeepAlive        = 25 * time.Second
	DefaultMissedPongs      = 2
	DefaultHandshakeTimeout = 10 * time.Second
)

const writeWait = 10 * time.Second

// ErrClosed is returned by operations on a client stopped with Close.
var ErrClosed = errors.New("wsclient: client closed")

var errPongsMissed = errors.New("wsclient: server stopped answering pings")

// State is the client lifecycle phase reported through OnStateChange.
type State int32

const (
	// StateDisconnected means the client is not running: either never
	// started or stopped by Close.
	StateDisconnected State = iota
	// StateConnecting means a dial or a backoff wait is in progress.
	StateConnecting
	// StateAuthenticating means the socket is up and the auth exchange
	// plus the subscription replay are in flight.
	StateAuthenticating
	// StateSubscribed means the session is established and every
	// wanted namespace has been acknowledged.
	StateSubscribed
	// StateOffline is terminal: retries are exhausted or the gateway
	// rejected the client for a reason reconnecting cannot fix.
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateSubscribed:
		return "subscribed"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Credentials fill the auth frame. Set SessionID for a gateway in
// session mode, Token for token mode, UserID and Role when the gateway
// runs with authentication disabled.
type Credentials struct {
	SessionID string
	Token     string
	UserID    string
	Role      string
}

// Event is one broadcast delivery.
type Event struct {
	ID        string
	Type      string
	Namespace string
	Payload   json.RawMessage
	Timestamp time.Time
}

// ServerError is an error the gateway reported explicitly, either as
// an error frame or as an application close code.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("gateway: %s", e.Message)
	}
	return fmt.Sprintf("gateway: %s: %s", e.Code, e.Message)
}

// Terminal reports whether reconnecting cannot fix the condition.
func (e *ServerError) Terminal() bool {
	return models.ErrorCode(e.Code).Terminal()
}

// Config parameterizes a Client. URL is required; every zero tuning
// field falls back to the package defaults.
type Config struct {
	// URL is the gateway websocket endpoint, e.g. wss://host:8443/ws.
	URL string
	// Origin is sent as the Origin header. Leave empty for non-browser
	// clients talking to a wildcard gateway.
	Origin string
	// Credentials authenticate the connection.
	Credentials Credentials
	// Namespaces to subscribe on connect. More can be added later with
	// Subscribe.
	Namespaces []string

	// BackoffMin is the first reconnect delay; it doubles per failed
	// attempt up to BackoffMax.
	BackoffMin time.Duration
	BackoffMax time.Duration
	// Jitter widens each delay by a random factor in [-Jitter, +Jitter].
	// Zero means the default; negative disables jitter.
	Jitter float64
	// MaxAttempts is how many consecutive attempts may fail before the
	// client goes Offline. Negative means retry forever.
	MaxAttempts int

	// KeepAlive is the application ping interval. MissedPongs unanswered
	// pings in a row trigger a proactive reconnect.
	KeepAlive   time.Duration
	MissedPongs int

	// HandshakeTimeout caps the dial, the wait for the connected frame
	// and each subscription ack during replay.
	HandshakeTimeout time.Duration

	// Logger receives client diagnostics. Nil disables logging.
	Logger *zerolog.Logger

	// OnEvent, OnStateChange and OnError are invoked sequentially from
	// a single dispatch goroutine. A slow callback delays subsequent
	// deliveries but never reorders or drops them.
	OnEvent       func(Event)
	OnStateChange func(State)
	OnError       func(error)
}

// Client is a reconnecting consumer of gateway event streams. It keeps
// the wanted namespace set across reconnects and replays it before
// reporting a session as established, so a consumer never observes a
// connected state with a partial subscription.
type Client struct {
	cfg Config
	log zerolog.Logger

	state atomic.Int32

	mu         sync.Mutex
	started    bool
	closed     bool
	namespaces map[string]struct{}
	sess       *session
	connID     string

	ctx    context.Context
	cancel context.CancelFunc

	backoff   *backoff
	missed    atomic.Int32
	callbacks chan func()
	ready     chan error
	readyOnce sync.Once
	done      chan struct{}
}

// session is one websocket connection. The reader runs in the run loop
// goroutine; the writer and the close watchdog are children joined
// before the session is torn down.
type session struct {
	conn   *websocket.Conn
	sendCh chan []byte
	stopCh chan struct{}
	wg     sync.WaitGroup

	failMu sync.Mutex
	cause  error
}

// fail records the first teardown cause and closes the socket, which
// unblocks the reader.
func (s *session) fail(err error) {
	s.failMu.Lock()
	if s.cause == nil {
		s.cause = err
	}
	s.failMu.Unlock()
	_ = s.conn.Close()
}

func (s *session) failure() error {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	return s.cause
}

// write sends one frame under a deadline. Only the handshake and the
// write loop call it, and those never run concurrently.
func (s *session) write(frame []byte, timeout time.Duration) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(timeout))
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

var (
	pingFrame = []byte(`{"type":"ping"}`)
	pongFrame = []byte(`{"type":"pong"}`)
)

// New validates cfg, applies defaults and returns a client ready for
// Connect.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("wsclient: URL is required")
	}
	if !strings.HasPrefix(cfg.URL, "ws://") && !strings.HasPrefix(cfg.URL, "wss://") {
		return nil, fmt.Errorf("wsclient: URL scheme must be ws or wss, got %q", cfg.URL)
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = DefaultBackoffMin
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = DefaultBackoffMax
	}
	if cfg.BackoffMax < cfg.BackoffMin {
		cfg.BackoffMax = cfg.BackoffMin
	}
	jitter := cfg.Jitter
	switch {
	case jitter == 0:
		jitter = DefaultJitter
	case jitter < 0:
		jitter = 0
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}
	if cfg.MissedPongs <= 0 {
		cfg.MissedPongs = DefaultMissedPongs
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}

	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}

	c := &Client{
		cfg:        cfg,
		log:        log.With().Str("component", "wsclient").Logger(),
		namespaces: make(map[string]struct{}, len(cfg.Namespaces)),
		backoff:    newBackoff(cfg.BackoffMin, cfg.BackoffMax, jitter, time.Now().UnixNano()),
		callbacks:  make(chan func(), 64),
		ready:      make(chan error, 1),
		done:       make(chan struct{}),
	}
	for _, ns := range cfg.Namespaces {
		if ns = strings.TrimSpace(ns); ns != "" {
			c.namespaces[ns] = struct{}{}
		}
	}
	return c, nil
}

// Connect starts the client and blocks until the first session is
// established, the client gives up, or ctx is canceled. The context
// bounds the whole client lifetime: canceling it is equivalent to
// Close. After Connect returns nil the client maintains the connection
// in the background, reconnecting as needed.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return errors.New("wsclient: Connect called twice")
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	go c.dispatcher()
	go c.run()

	select {
	case err := <-c.ready:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the client and waits until all pending callbacks have
// been delivered. Safe to call multiple times, but never from inside
// a callback: Close waits for the dispatch goroutine to drain.
func (c *Client) Close() error {
	c.mu.Lock()
	wasStarted := c.started
	alreadyClosed := c.closed
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	if !wasStarted {
		if !alreadyClosed {
			close(c.done)
		}
		return nil
	}
	cancel()
	<-c.done
	return nil
}

// Done is closed once the client has fully stopped and the last
// callback has returned.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// State returns the current lifecycle phase.
func (c *Client) State() State {
	return State(c.state.Load())
}

// ConnectionID returns the gateway-assigned id of the current session,
// or empty while disconnected.
func (c *Client) ConnectionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connID
}

// Subscriptions returns the wanted namespace set, sorted.
func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.namespaces))
	for ns := range c.namespaces {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// Subscribe adds a namespace to the wanted set and, when connected,
// asks the gateway for it. Subscribing while disconnected is not an
// error: the namespace is included in the next replay.
func (c *Client) Subscribe(namespace string) error {
	return c.changeSubscription(models.FrameSubscribe, namespace)
}

// Unsubscribe removes a namespace from the wanted set and, when
// connected, stops deliveries for it.
func (c *Client) Unsubscribe(namespace string) error {
	return c.changeSubscription(models.FrameUnsubscribe, namespace)
}

func (c *Client) changeSubscription(op models.FrameType, namespace string) error {
	ns := strings.TrimSpace(namespace)
	if ns == "" {
		return errors.New("wsclient: namespace is empty")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if op == models.FrameSubscribe {
		c.namespaces[ns] = struct{}{}
	} else {
		delete(c.namespaces, ns)
	}
	s := c.sess
	c.mu.Unlock()

	if s == nil {
		return nil
	}
	frame, err := encodeSubscription(op, ns)
	if err != nil {
		return err
	}
	select {
	case s.sendCh <- frame:
		return nil
	case <-s.stopCh:
		// Session is going down; the wanted set replays on reconnect.
		return nil
	case <-c.ctx.Done():
		return ErrClosed
	}
}

// run owns the reconnect loop: attempt, classify, back off, repeat.
// Consecutive failed attempts are bounded by MaxAttempts; a session
// that reaches Subscribed resets both the count and the backoff
// schedule.
func (c *Client) run() {
	defer close(c.callbacks)

	failures := 0
	for {
		if c.ctx.Err() != nil {
			c.setState(StateDisconnected)
			c.signalReady(ErrClosed)
			return
		}

		c.setState(StateConnecting)
		established, err := c.runSession()

		if c.ctx.Err() != nil {
			c.setState(StateDisconnected)
			c.signalReady(ErrClosed)
			return
		}

		if err != nil {
			c.dispatchError(err)
			var serr *ServerError
			if errors.As(err, &serr) && serr.Terminal() {
				c.log.Error().Str("code", serr.Code).Msg("Gateway rejected the client, not retrying")
				c.setState(StateOffline)
				c.signalReady(err)
				return
			}
		}

		if established {
			failures = 0
		} else {
			failures++
			if c.cfg.MaxAttempts > 0 && failures >= c.cfg.MaxAttempts {
				c.log.Error().Int("attempts", failures).Msg("Connection attempts exhausted")
				c.setState(StateOffline)
				c.signalReady(fmt.Errorf("wsclient: %d consecutive connection failures, last: %w", failures, err))
				return
			}
		}

		wait := c.backoff.next()
		c.log.Debug().Dur("backoff", wait).Int("failures", failures).Msg("Reconnecting")
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-c.ctx.Done():
			timer.Stop()
			c.setState(StateDisconnected)
			c.signalReady(ErrClosed)
			return
		}
	}
}

// runSession performs one full connection attempt: dial, authenticate,
// replay subscriptions, then pump frames until the connection dies.
// established reports whether the session reached Subscribed.
func (c *Client) runSession() (established bool, err error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	header := http.Header{}
	if c.cfg.Origin != "" {
		header.Set("Origin", c.cfg.Origin)
	}

	conn, resp, err := dialer.DialContext(c.ctx, c.cfg.URL, header)
	if err != nil {
		return false, classifyDialError(err, resp)
	}

	s := &session{
		conn:   conn,
		sendCh: make(chan []byte, 64),
		stopCh: make(chan struct{}),
	}
	defer c.teardown(s)

	c.setState(StateAuthenticating)
	connID, err := c.handshake(s)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	c.sess = s
	c.connID = connID
	c.mu.Unlock()

	c.backoff.reset()
	c.missed.Store(0)

	s.wg.Add(2)
	go c.writeLoop(s)
	go c.watchClose(s)

	c.setState(StateSubscribed)
	c.signalReady(nil)
	c.log.Info().Str("connection_id", connID).Msg("Session established")

	return true, c.readLoop(s)
}

// teardown closes one session and joins its goroutines. The wanted
// namespace set survives for the next replay.
func (c *Client) teardown(s *session) {
	close(s.stopCh)
	_ = s.conn.Close()
	s.wg.Wait()

	c.mu.Lock()
	if c.sess == s {
		c.sess = nil
		c.connID = ""
	}
	c.mu.Unlock()
}

// handshake sends the auth frame, waits for connected, then replays
// the wanted namespaces one by one, each awaited to its subscribed
// ack. Events interleaved with the acks are dispatched immediately.
func (c *Client) handshake(s *session) (string, error) {
	frame, err := c.authFrame()
	if err != nil {
		return "", err
	}
	if err := s.write(frame, writeWait); err != nil {
		return "", fmt.Errorf("send auth: %w", err)
	}

	f, err := c.readHandshakeFrame(s)
	if err != nil {
		return "", fmt.Errorf("await connected: %w", err)
	}
	switch f.Type {
	case models.FrameConnected:
		if f.Protocol != models.ProtocolRevision {
			c.log.Warn().
				Int("server", f.Protocol).
				Int("client", models.ProtocolRevision).
				Msg("Protocol revision mismatch")
		}
	case models.FrameError:
		return "", &ServerError{Code: string(f.Code), Message: f.Message}
	default:
		return "", fmt.Errorf("expected connected frame, got %q", f.Type)
	}
	connID := f.ConnectionID

	for _, ns := range c.Subscriptions() {
		if err := c.replayNamespace(s, ns); err != nil {
			return "", err
		}
	}

	_ = s.conn.SetReadDeadline(time.Time{})
	return connID, nil
}

// replayNamespace sends one subscribe and consumes frames until its
// ack arrives. An invalid_namespace answer drops the namespace from
// the wanted set instead of failing the session.
func (c *Client) replayNamespace(s *session, ns string) error {
	frame, err := encodeSubscription(models.FrameSubscribe, ns)
	if err != nil {
		return err
	}
	if err := s.write(frame, writeWait); err != nil {
		return fmt.Errorf("send subscribe %s: %w", ns, err)
	}

	for {
		f, err := c.readHandshakeFrame(s)
		if err != nil {
			return fmt.Errorf("await subscribed %s: %w", ns, err)
		}
		switch f.Type {
		case models.FrameSubscribed:
			if f.Channel == ns {
				return nil
			}
		case models.FrameEvent:
			c.dispatchEvent(f)
		case models.FramePing:
			_ = s.write(pongFrame, writeWait)
		case models.FramePong:
			c.missed.Store(0)
		case models.FrameError:
			serr := &ServerError{Code: string(f.Code), Message: f.Message}
			if serr.Terminal() {
				return serr
			}
			if f.Code == models.CodeInvalidNamespace {
				c.log.Warn().Str("namespace", ns).Msg("Gateway rejected namespace, dropping it")
				c.mu.Lock()
				delete(c.namespaces, ns)
				c.mu.Unlock()
			}
			c.dispatchError(serr)
			return nil
		}
	}
}

// readHandshakeFrame reads one frame under the handshake deadline.
func (c *Client) readHandshakeFrame(s *session) (*models.ServerFrame, error) {
	_ = s.conn.SetReadDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return nil, classifyReadError(err)
	}
	return models.DecodeServerFrame(data)
}

// readLoop dispatches inbound frames until the connection dies and
// returns the teardown cause.
func (c *Client) readLoop(s *session) error {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if cause := s.failure(); cause != nil {
				return cause
			}
			return classifyReadError(err)
		}

		f, err := models.DecodeServerFrame(data)
		if err != nil {
			c.log.Debug().Err(err).Msg("Dropping undecodable frame")
			continue
		}

		switch f.Type {
		case models.FrameEvent:
			c.dispatchEvent(f)
		case models.FramePing:
			select {
			case s.sendCh <- pongFrame:
			default:
			}
		case models.FramePong:
			c.missed.Store(0)
		case models.FrameSubscribed, models.FrameUnsubscribed:
			c.log.Debug().
				Str("channel", f.Channel).
				Str("type", string(f.Type)).
				Msg("Subscription change acknowledged")
		case models.FrameError:
			serr := &ServerError{Code: string(f.Code), Message: f.Message}
			if serr.Terminal() {
				return serr
			}
			c.dispatchError(serr)
		}
	}
}

// writeLoop is the sole writer after the handshake. It drains queued
// frames, emits keepalive pings and declares the link dead when too
// many pings go unanswered.
func (c *Client) writeLoop(s *session) {
	defer s.wg.Done()
	ticker := time.NewTicker(c.cfg.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case frame := <-s.sendCh:
			if err := s.write(frame, writeWait); err != nil {
				s.fail(fmt.Errorf("write frame: %w", err))
				return
			}
		case <-ticker.C:
			if int(c.missed.Load()) >= c.cfg.MissedPongs {
				s.fail(errPongsMissed)
				return
			}
			c.missed.Add(1)
			if err := s.write(pingFrame, writeWait); err != nil {
				s.fail(fmt.Errorf("write ping: %w", err))
				return
			}
		case <-s.stopCh:
			return
		}
	}
}

// watchClose forces the socket shut when the client stops, unblocking
// a reader that has no deadline. WriteControl is safe alongside the
// write loop, so a departing client can still say goodbye.
func (c *Client) watchClose(s *session) {
	defer s.wg.Done()
	select {
	case <-c.ctx.Done():
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closing")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		s.fail(ErrClosed)
	case <-s.stopCh:
	}
}

// dispatcher serializes all user callbacks. It exits when run closes
// the queue, then marks the client fully stopped.
func (c *Client) dispatcher() {
	for fn := range c.callbacks {
		fn()
	}
	close(c.done)
}

func (c *Client) dispatch(fn func()) {
	c.callbacks <- fn
}

func (c *Client) dispatchError(err error) {
	if c.cfg.OnError == nil {
		return
	}
	c.dispatch(func() { c.cfg.OnError(err) })
}

func (c *Client) dispatchEvent(f *models.ServerFrame) {
	if c.cfg.OnEvent == nil {
		return
	}
	ev := Event{
		ID:        f.EventID,
		Type:      string(f.Event),
		Namespace: string(f.Namespace),
		Payload:   f.Payload,
	}
	if f.Timestamp != nil {
		ev.Timestamp = *f.Timestamp
	}
	c.dispatch(func() { c.cfg.OnEvent(ev) })
}

func (c *Client) setState(s State) {
	prev := State(c.state.Swap(int32(s)))
	if prev == s {
		return
	}
	c.log.Debug().Str("from", prev.String()).Str("to", s.String()).Msg("State changed")
	if c.cfg.OnStateChange != nil {
		c.dispatch(func() { c.cfg.OnStateChange(s) })
	}
}

func (c *Client) signalReady(err error) {
	c.readyOnce.Do(func() { c.ready <- err })
}

func (c *Client) authFrame() ([]byte, error) {
	data, err := json.Marshal(models.AuthData{
		SessionID: c.cfg.Credentials.SessionID,
		Token:     c.cfg.Credentials.Token,
		UserID:    c.cfg.Credentials.UserID,
		Role:      c.cfg.Credentials.Role,
	})
	if err != nil {
		return nil, fmt.Errorf("encode credentials: %w", err)
	}
	return json.Marshal(&models.ClientFrame{Type: models.FrameAuth, Data: data})
}

func encodeSubscription(op models.FrameType, ns string) ([]byte, error) {
	data, err := json.Marshal(models.SubscribeData{Namespace: ns})
	if err != nil {
		return nil, fmt.Errorf("encode subscription: %w", err)
	}
	return json.Marshal(&models.ClientFrame{Type: op, Data: data})
}

// classifyDialError maps HTTP-layer admission rejections onto the
// shared error taxonomy. The gateway rejects origin, capacity and
// upgrade-rate problems before switching protocols.
func classifyDialError(err error, resp *http.Response) error {
	if errors.Is(err, websocket.ErrBadHandshake) && resp != nil {
		switch resp.StatusCode {
		case http.StatusForbidden:
			return &ServerError{Code: string(models.CodeOriginNotAllowed), Message: "origin not allowed"}
		case http.StatusTooManyRequests:
			return &ServerError{Code: string(models.CodeRateLimited), Message: "upgrade rate limit exceeded"}
		case http.StatusServiceUnavailable:
			return &ServerError{Code: string(models.CodeCapacityExceeded), Message: "connection capacity exceeded"}
		}
	}
	return fmt.Errorf("dial: %w", err)
}

// classifyReadError maps application close codes onto the taxonomy so
// a client cut off without an error frame still classifies correctly.
func classifyReadError(err error) error {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return fmt.Errorf("read frame: %w", err)
	}
	switch ce.Code {
	case models.CloseUnauthenticated:
		return &ServerError{Code: string(models.CodeUnauthenticated), Message: ce.Text}
	case models.CloseOriginNotAllowed:
		return &ServerError{Code: string(models.CodeOriginNotAllowed), Message: ce.Text}
	case models.CloseCapacityExceeded:
		return &ServerError{Code: string(models.CodeCapacityExceeded), Message: ce.Text}
	default:
		return fmt.Errorf("connection closed: %w", err)
	}
}

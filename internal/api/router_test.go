// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/sokolive/soko/internal/auth"
	"github.com/sokolive/soko/internal/config"
	"github.com/sokolive/soko/internal/events"
	"github.com/sokolive/soko/internal/gateway"
	"github.com/sokolive/soko/internal/logging"
	"github.com/sokolive/soko/internal/models"
	"github.com/sokolive/soko/internal/session"
	"github.com/sokolive/soko/internal/visibility"
)

func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

func testAPIConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:        0,
			Host:        "127.0.0.1",
			Timeout:     5 * time.Second,
			Environment: "development",
		},
		Gateway: config.GatewayConfig{
			MaxConnections:  8,
			PingInterval:    time.Minute,
			PongTimeout:     10 * time.Second,
			SendQueueSize:   16,
			RateLimitEvents: 100,
			RateLimitWindow: time.Minute,
			MaxPayloadBytes: 1 << 20,
			ViolationLimit:  5,
		},
		Security: config.SecurityConfig{
			AuthMode:          config.AuthModeInsecure,
			AuthTimeout:       2 * time.Second,
			AllowedOrigins:    []string{"*"},
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: true,
		},
	}
}

// startTestAPI brings the full router up behind an httptest server.
// The store may be nil for insecure mode.
func startTestAPI(t *testing.T, mutate func(*config.Config), store session.Store) *httptest.Server {
	t.Helper()
	cfg := testAPIConfig()
	if mutate != nil {
		mutate(cfg)
	}
	authenticator, err := auth.New(&cfg.Security, store)
	if err != nil {
		t.Fatalf("auth.New failed: %v", err)
	}
	mx, err := visibility.New(nil)
	if err != nil {
		t.Fatalf("visibility.New failed: %v", err)
	}
	g := gateway.New(cfg, authenticator, mx)
	emitter := events.New(g)

	srv := httptest.NewServer(NewRouter(cfg, g, emitter, authenticator, store).Handler())
	t.Cleanup(srv.Close)
	return srv
}

// newDirectHandler builds a Handler without the router, for tests
// that exercise one handler method in isolation.
func newDirectHandler(t *testing.T, mutate func(*config.Config), store session.Store) *Handler {
	t.Helper()
	cfg := testAPIConfig()
	if mutate != nil {
		mutate(cfg)
	}
	authenticator, err := auth.New(&cfg.Security, store)
	if err != nil {
		t.Fatalf("auth.New failed: %v", err)
	}
	mx, err := visibility.New(nil)
	if err != nil {
		t.Fatalf("visibility.New failed: %v", err)
	}
	g := gateway.New(cfg, authenticator, mx)
	return NewHandler(cfg, g, events.New(g), store)
}

func doRequest(t *testing.T, method, url, bearer string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(resp *http.Response, v any) error {
	return json.NewDecoder(resp.Body).Decode(v)
}

// decodeErrorEnvelope asserts the body is the standard envelope and
// returns its code.
func decodeErrorEnvelope(t *testing.T, resp *http.Response) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := decodeBody(resp, &envelope); err != nil {
		t.Fatalf("Decode error envelope failed: %v", err)
	}
	if envelope.Error.Code == "" {
		t.Fatal("Error envelope missing code")
	}
	if envelope.Error.Message == "" {
		t.Fatal("Error envelope missing message")
	}
	return envelope.Error.Code
}

func TestRouter_NotFound(t *testing.T) {
	srv := startTestAPI(t, nil, nil)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/nope", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", resp.StatusCode)
	}
	if code := decodeErrorEnvelope(t, resp); code != CodeNotFound {
		t.Fatalf("Expected code %q, got %q", CodeNotFound, code)
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	srv := startTestAPI(t, nil, nil)

	resp := doRequest(t, http.MethodDelete, srv.URL+"/api/v1/info", "", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("Expected 405, got %d", resp.StatusCode)
	}
	if code := decodeErrorEnvelope(t, resp); code != CodeBadRequest {
		t.Fatalf("Expected code %q, got %q", CodeBadRequest, code)
	}
}

func TestRouter_MetricsExposed(t *testing.T) {
	srv := startTestAPI(t, nil, nil)

	resp := doRequest(t, http.MethodGet, srv.URL+"/metrics", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Read metrics body failed: %v", err)
	}
	if !strings.Contains(string(body), "soko_") {
		t.Fatal("Metrics exposition missing soko_ series")
	}
}

// The router wraps every request in middleware that records status and
// latency; a websocket upgrade must still reach the hijacker through
// those wrappers.
func TestRouter_WebsocketUpgradeThroughMiddleware(t *testing.T) {
	srv := startTestAPI(t, nil, nil)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Dial through router failed: %v", err)
	}
	defer ws.Close()

	_ = ws.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if err := ws.WriteJSON(map[string]any{
		"type": "auth",
		"data": map[string]any{"user_id": "u-1", "role": "customer"},
	}); err != nil {
		t.Fatalf("Write auth frame failed: %v", err)
	}

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("Read frame failed: %v", err)
	}
	f, err := models.DecodeServerFrame(data)
	if err != nil {
		t.Fatalf("Decode frame failed: %v", err)
	}
	if f.Type != models.FrameConnected {
		t.Fatalf("Expected connected frame, got %s", f.Type)
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	srv := startTestAPI(t, func(cfg *config.Config) {
		cfg.Security.AllowedOrigins = []string{"https://shop.example.com"}
	}, nil)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/info", nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	req.Header.Set("Origin", "https://shop.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Preflight failed: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://shop.example.com" {
		t.Fatalf("Expected allow-origin echo, got %q", got)
	}

	// A disallowed origin gets no CORS headers back.
	req2, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/info", nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	req2.Header.Set("Origin", "https://evil.example.com")
	req2.Header.Set("Access-Control-Request-Method", http.MethodGet)

	resp2, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatalf("Preflight failed: %v", err)
	}
	defer resp2.Body.Close()

	if got := resp2.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("Expected no allow-origin for foreign origin, got %q", got)
	}
}

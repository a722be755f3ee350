package notifyserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"trackd/internal/auth"
	"trackd/internal/config"
	ws "trackd/internal/websocket"
)

func testConfig() config.Config {
	return config.Config{
		Auth: config.AuthConfig{JWTSecretKey: "test-secret", JWTExpiry: time.Hour, CookieName: "trackd_session"},
		APIServer: config.APIServerConfig{
			CORS: config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		},
		NotifyServer: config.NotifyServerConfig{WebSocketPath: "/ws/notifications"},
		WebSocket:    config.WebSocketConfig{WriteWaitSeconds: 5, PongWaitSeconds: 10, PingPeriodSeconds: 9, MaxMessageSizeBytes: 512},
	}
}

func setup(t *testing.T) (*ws.Hub, *httptest.Server, config.Config) {
	t.Helper()
	cfg := testConfig()
	hub := ws.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	// 经过完整路由（含 metrics 中间件），与线上一致
	srv := httptest.NewServer(NewRouter(NewWebSocketHandler(hub, nil, cfg), cfg))
	t.Cleanup(srv.Close)
	return hub, srv, cfg
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/notifications"
}

func TestServeWSRejectsMissingToken(t *testing.T) {
	_, srv, _ := setup(t)
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestServeWSRejectsForeignOrigin(t *testing.T) {
	_, srv, cfg := setup(t)
	token, _, _ := auth.GenerateToken("u1", "u1@example.com", cfg.Auth)

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv)+"?token="+token, header)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestServeWSPushesNotifications(t *testing.T) {
	hub, srv, cfg := setup(t)
	token, _, err := auth.GenerateToken("u1", "u1@example.com", cfg.Auth)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	header := http.Header{"Origin": []string{"http://localhost:3000"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv)+"?token="+token, header)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.ConnectionCount(context.Background(), "u1") != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client was not registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Push("u1", []byte(`{"type":"notification","data":{"type":"friend_request"}}`))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if !strings.Contains(string(msg), "friend_request") {
		t.Fatalf("msg = %s", msg)
	}
}

func TestServeWSAcceptsSessionCookie(t *testing.T) {
	hub, srv, cfg := setup(t)
	token, _, _ := auth.GenerateToken("u2", "u2@example.com", cfg.Auth)

	header := http.Header{"Cookie": []string{cfg.Auth.CookieName + "=" + token}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.ConnectionCount(context.Background(), "u2") != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client was not registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRouterHealthz(t *testing.T) {
	_, srv, _ := setup(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz = %d", resp.StatusCode)
	}
}

package websocket

import (
	"context"
	"testing"
	"time"
)

func newTestClient(h *Hub, userID string) *Client {
	return &Client{hub: h, send: make(chan []byte, 4), UserID: userID}
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h, cancel
}

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatalf("no message for %s", c.UserID)
		return nil
	}
}

func TestHubPushesToEveryConnectionOfUser(t *testing.T) {
	h, _ := startHub(t)
	ctx := context.Background()

	tab1 := newTestClient(h, "u1")
	tab2 := newTestClient(h, "u1")
	other := newTestClient(h, "u2")
	h.register <- tab1
	h.register <- tab2
	h.register <- other

	if n := h.ConnectionCount(ctx, "u1"); n != 2 {
		t.Fatalf("u1 connections = %d, want 2", n)
	}
	if n := h.ConnectionCount(ctx, ""); n != 3 {
		t.Fatalf("total connections = %d, want 3", n)
	}

	h.Push("u1", []byte(`{"type":"notification"}`))
	if got := string(receive(t, tab1)); got != `{"type":"notification"}` {
		t.Errorf("tab1 got %s", got)
	}
	receive(t, tab2)

	select {
	case msg := <-other.send:
		t.Fatalf("u2 received %s", msg)
	case <-time.After(50 * time.Millisecond):
	}

	// Pushing to an unknown user is a no-op.
	h.Push("nobody", []byte("x"))
	if n := h.ConnectionCount(ctx, ""); n != 3 {
		t.Fatalf("total connections = %d after push to unknown user", n)
	}
}

func TestHubUnregisterClosesSend(t *testing.T) {
	h, _ := startHub(t)
	ctx := context.Background()

	c := newTestClient(h, "u1")
	h.register <- c
	h.unregister <- c
	if _, ok := <-c.send; ok {
		t.Fatal("send channel should be closed")
	}
	// A second unregister is harmless.
	h.unregister <- c
	if n := h.ConnectionCount(ctx, "u1"); n != 0 {
		t.Fatalf("connections = %d, want 0", n)
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	h, _ := startHub(t)
	ctx := context.Background()

	slow := &Client{hub: h, send: make(chan []byte), UserID: "u1"}
	h.register <- slow
	h.Push("u1", []byte("x"))

	deadline := time.Now().Add(time.Second)
	for h.ConnectionCount(ctx, "u1") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("slow client was not removed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubStopClosesClients(t *testing.T) {
	h, cancel := startHub(t)
	c := newTestClient(h, "u1")
	h.register <- c
	cancel()

	select {
	case _, ok := <-c.send:
		if ok {
			t.Fatal("unexpected message")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel not closed on stop")
	}
	// After stop, counting returns immediately.
	if n := h.ConnectionCount(context.Background(), ""); n != 0 {
		t.Fatalf("count after stop = %d", n)
	}
}

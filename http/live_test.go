package http

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialLive(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(url, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return conn
}

func TestLiveHubBroadcast(t *testing.T) {
	hub := NewLiveHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	conn := dialLive(t, srv.URL)
	defer conn.Close()

	// Registration races the broadcast; give the hub a moment.
	time.Sleep(50 * time.Millisecond)
	hub.Broadcast(LiveMessage{Type: ModelUpdated, Timestamp: time.Now()})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("expected broadcast message, got error: %v", err)
	}
	if !strings.Contains(string(payload), string(ModelUpdated)) {
		t.Fatalf("unexpected payload: %s", payload)
	}
}

func TestLiveHubShutdownReleasesClients(t *testing.T) {
	hub := NewLiveHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	conn := dialLive(t, srv.URL)
	defer conn.Close()
	time.Sleep(50 * time.Millisecond)

	cancel()

	// Shutdown closes the connection; the read must fail rather than hang.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected connection to be closed after shutdown")
	}

	// A connection arriving after shutdown must be closed promptly, not
	// parked on the register channel. A deadline timeout here means the
	// upgrade handler is still blocked.
	late := dialLive(t, srv.URL)
	defer late.Close()
	late.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := late.ReadMessage()
	if err == nil {
		t.Fatal("expected late connection to be closed")
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		t.Fatal("late connection was never released by the hub")
	}
}

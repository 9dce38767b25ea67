package apihttp

import (
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"rssbox/internal/domain"
)

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	resp.Body.Close()
	return conn
}

func readWSMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) wsMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read ws message: %v", err)
	}
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal ws message: %v (raw: %s)", err, data)
	}
	return msg
}

func TestNewWSHubInitialization(t *testing.T) {
	hub := newWSHub(slog.Default())
	if hub == nil {
		t.Fatal("newWSHub returned nil")
	}
	if hub.clientCount() != 0 {
		t.Fatalf("clientCount = %d, want 0", hub.clientCount())
	}
}

func TestWSHubBroadcastStatusNoClients(t *testing.T) {
	hub := newWSHub(slog.Default())
	go hub.run()
	defer hub.Close()

	hub.BroadcastStatus(StatusEvent{Kind: "account", ID: "a1", From: "IDLE", To: "PROCESSING"})
}

func TestHandleWSUpgradeAndBroadcast(t *testing.T) {
	srv := NewServer()
	defer srv.Close()

	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn := dialWS(t, ts)
	defer conn.Close()

	// give the hub goroutine time to register the client before broadcasting
	time.Sleep(20 * time.Millisecond)

	srv.BroadcastStatus(domain.StatusEvent{
		Kind: "download", ID: "https://example.com/d1", From: "PENDING", To: "PROCESSING",
	})

	msg := readWSMessage(t, conn, 2*time.Second)
	if msg.Type != "status" {
		t.Fatalf("msg.Type = %q, want status", msg.Type)
	}
}

func TestHandleWSNonUpgradeRequestFails(t *testing.T) {
	srv := NewServer()
	defer srv.Close()

	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/ws")
	if err != nil {
		t.Fatalf("GET /ws: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == 101 {
		t.Fatal("plain GET should not upgrade to a websocket")
	}
}

func TestServerCloseDisconnectsClients(t *testing.T) {
	srv := NewServer()
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn := dialWS(t, ts)
	defer conn.Close()

	time.Sleep(20 * time.Millisecond)
	srv.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected read error after server close")
	}
}

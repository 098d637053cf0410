package stream

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
)

func startServer(t *testing.T, hub *Hub) string {
	t.Helper()
	app := fiber.New()
	RegisterRoutes(app, hub)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	go func() {
		_ = app.Listener(ln)
	}()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "ws://" + ln.Addr().String() + "/ws"
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return m
}

func TestStreamHandlersUpgradeRequired(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app, NewHub(Options{Token: "secret"}))

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Fatalf("expected 426 for non-websocket request, got %d", resp.StatusCode)
	}
}

func TestStreamHandlersRejectInvalidToken(t *testing.T) {
	hub := NewHub(Options{Token: "secret"})
	url := startServer(t, hub)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token=wrong", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != CloseInvalidToken {
		t.Fatalf("expected close 4001, got %v", err)
	}
	if hub.ClientCount() != 0 {
		t.Fatalf("rejected client should not register")
	}
}

func TestStreamHandlersInitAndCommand(t *testing.T) {
	cmds := &fakeCommands{}
	hub := NewHub(Options{Token: "secret", Commands: cmds, Clock: fixedClock(1000)})
	url := startServer(t, hub)

	header := http.Header{}
	header.Set("Authorization", "Bearer secret")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	if m := readJSON(t, conn); m["type"] != TypeInit || m["worldTime"].(float64) != 1000 {
		t.Fatalf("unexpected init: %v", m)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"teleport","player":"Steve","targetPlayer":"Alex"}`)); err != nil {
		t.Fatalf("write error: %v", err)
	}
	if m := readJSON(t, conn); m["type"] != TypeCommandResponse || m["success"] != true {
		t.Fatalf("unexpected response: %v", m)
	}
	if got := cmds.calls(); len(got) != 1 || got[0] != "tp Steve Alex" {
		t.Fatalf("unexpected commands: %v", got)
	}

	hub.WorldTime(2000)
	if m := readJSON(t, conn); m["type"] != TypeTimeUpdate {
		t.Fatalf("expected time update: %v", m)
	}
}

func TestStreamHandlersClientClose(t *testing.T) {
	hub := NewHub(Options{Token: "secret"})
	url := startServer(t, hub)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token=secret", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	readJSON(t, conn)
	conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ClientCount() != 0 {
		t.Fatalf("closed client should be removed")
	}
}

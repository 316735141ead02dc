package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// echoHandler answers a few test actions against the hub it is attached to.
type echoHandler struct {
	hub *Hub
}

func (e *echoHandler) HandleMessage(ctx context.Context, conn Conn, msgType string, payload json.RawMessage) {
	switch msgType {
	case "name":
		var name string
		json.Unmarshal(payload, &name)
		conn.SetPlayerName(name)
	case "room":
		e.hub.JoinRoom(conn, AdminRoom)
	}
	e.hub.SendToConn(conn, "ok", msgType)
}

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(zap.NewNop())
	hub.SetHandler(&echoHandler{hub: hub})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.RegisterClient(conn)
	}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload interface{}) {
	t.Helper()
	frame := map[string]interface{}{"type": msgType}
	if payload != nil {
		frame["payload"] = payload
	}
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

func receive(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

// expectOK reads frames until the acknowledgement of msgType arrives.
func expectOK(t *testing.T, conn *websocket.Conn, msgType string) {
	t.Helper()
	for {
		msg := receive(t, conn)
		if msg.Type == "ok" && string(msg.Payload) == `"`+msgType+`"` {
			return
		}
	}
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, hub.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubPingPong(t *testing.T) {
	_, url := startHub(t)
	conn := dial(t, url)

	send(t, conn, "ping", nil)
	msg := receive(t, conn)
	assert.Equal(t, "pong", msg.Type)
	assert.Equal(t, `"pong"`, string(msg.Payload))
}

func TestHubRoutesByRoomAndPlayer(t *testing.T) {
	hub, url := startHub(t)
	admin := dial(t, url)
	player := dial(t, url)
	second := dial(t, url)

	send(t, admin, "room", nil)
	expectOK(t, admin, "room")
	send(t, player, "name", "A")
	expectOK(t, player, "name")
	send(t, second, "name", "A")
	expectOK(t, second, "name")

	hub.SendToRoom(AdminRoom, "admin_state", map[string]int{"max_hints": 3})
	msg := receive(t, admin)
	assert.Equal(t, "admin_state", msg.Type)

	hub.SendToPlayer("A", "hint_revealed", "h")
	assert.Equal(t, "hint_revealed", receive(t, player).Type)
	assert.Equal(t, "hint_revealed", receive(t, second).Type)

	// The admin saw neither player event; the next frame it reads is the broadcast.
	hub.Broadcast("teams_update", []string{})
	assert.Equal(t, "teams_update", receive(t, admin).Type)
	assert.Equal(t, "teams_update", receive(t, player).Type)
}

func TestHubForgetsClosedConnections(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)

	// Delivery to an empty hub is a no-op.
	hub.Broadcast("teams_update", nil)
	hub.SendToPlayer("A", "x", nil)
}

func TestHubMalformedFrameKeepsConnection(t *testing.T) {
	_, url := startHub(t)
	conn := dial(t, url)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{nope")); err != nil {
		t.Fatal(err)
	}
	send(t, conn, "ping", nil)
	assert.Equal(t, "pong", receive(t, conn).Type)
}

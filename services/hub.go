package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// Message is the envelope for every frame in both directions.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outgoing struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// MessageHandler runs one inbound action to completion.
type MessageHandler interface {
	HandleMessage(ctx context.Context, conn Conn, msgType string, payload json.RawMessage)
}

// Hub tracks live connections and their rooms and implements Broadcaster.
type Hub struct {
	clients    map[*Client]bool
	rooms      map[string]map[*Client]bool
	unregister chan *Client
	done       chan struct{}
	mutex      sync.RWMutex
	handler    MessageHandler
	log        *zap.Logger
}

type Client struct {
	hub    *Hub
	id     string
	socket *websocket.Conn
	send   chan []byte

	mu         sync.RWMutex
	playerName string
	isAdmin    bool
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
	}
}

// SetHandler wires the action dispatcher. It must be called before Run.
func (h *Hub) SetHandler(handler MessageHandler) {
	h.handler = handler
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				h.drop(client)
			}
			total := len(h.clients)
			h.mutex.Unlock()
			h.log.Debug("client unregistered",
				zap.String("conn", client.id), zap.String("player", client.PlayerName()), zap.Int("clients", total))
		}
	}
}

// drop removes a client from every index and closes its send queue. Callers hold the write lock.
func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	for room, members := range h.rooms {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	close(client.send)
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		h.drop(client)
	}
}

func (h *Hub) RegisterClient(conn *websocket.Conn) *Client {
	client := &Client{
		hub:    h,
		id:     uuid.NewString(),
		socket: conn,
		send:   make(chan []byte, sendBuffer),
	}

	// Registration is synchronous so the first inbound action can already be answered.
	h.mutex.Lock()
	select {
	case <-h.done:
		h.mutex.Unlock()
		conn.Close()
		return nil
	default:
	}
	h.clients[client] = true
	total := len(h.clients)
	h.mutex.Unlock()
	h.log.Debug("client registered", zap.String("conn", client.id), zap.Int("clients", total))

	go client.writePump()
	go client.readPump()

	return client
}

func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) encode(event string, payload interface{}) ([]byte, bool) {
	data, err := json.Marshal(outgoing{Type: event, Payload: payload})
	if err != nil {
		h.log.Error("failed to marshal message", zap.String("type", event), zap.Error(err))
		return nil, false
	}
	return data, true
}

// deliver queues data for one client. A full queue means the peer stopped reading, so the
// client is scheduled for removal.
func (h *Hub) deliver(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		h.log.Warn("send buffer full, dropping client", zap.String("conn", client.id))
		go h.UnregisterClient(client)
	}
}

func (h *Hub) Broadcast(event string, payload interface{}) {
	data, ok := h.encode(event, payload)
	if !ok {
		return
	}
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	for client := range h.clients {
		h.deliver(client, data)
	}
}

func (h *Hub) SendToRoom(room, event string, payload interface{}) {
	data, ok := h.encode(event, payload)
	if !ok {
		return
	}
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	for client := range h.rooms[room] {
		h.deliver(client, data)
	}
}

func (h *Hub) SendToConn(conn Conn, event string, payload interface{}) {
	client, ok := conn.(*Client)
	if !ok {
		h.log.Error("send to foreign connection", zap.String("conn", conn.ID()))
		return
	}
	data, ok := h.encode(event, payload)
	if !ok {
		return
	}
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	if h.clients[client] {
		h.deliver(client, data)
	}
}

// SendToPlayer reaches every connection currently bound to the named player.
func (h *Hub) SendToPlayer(name, event string, payload interface{}) {
	if name == "" {
		return
	}
	data, ok := h.encode(event, payload)
	if !ok {
		return
	}
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	for client := range h.clients {
		if client.PlayerName() == name {
			h.deliver(client, data)
		}
	}
}

func (h *Hub) JoinRoom(conn Conn, room string) {
	client, ok := conn.(*Client)
	if !ok {
		return
	}
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if !h.clients[client] {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]bool)
		h.rooms[room] = members
	}
	members[client] = true
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (c *Client) ID() string { return c.id }

func (c *Client) PlayerName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerName
}

func (c *Client) SetPlayerName(name string) {
	c.mu.Lock()
	c.playerName = name
	c.mu.Unlock()
}

func (c *Client) IsAdmin() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isAdmin
}

func (c *Client) SetAdmin(admin bool) {
	c.mu.Lock()
	c.isAdmin = admin
	c.mu.Unlock()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		c.socket.Close()
	}()

	c.socket.SetReadLimit(maxMessageSize)
	c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("websocket read error", zap.String("conn", c.id), zap.Error(err))
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.hub.log.Warn("malformed message", zap.String("conn", c.id), zap.Error(err))
			continue
		}
		if msg.Type == "ping" {
			c.hub.SendToConn(c, "pong", "pong")
			continue
		}
		if c.hub.handler != nil {
			c.hub.handler.HandleMessage(context.Background(), c, msg.Type, msg.Payload)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.socket.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.socket.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

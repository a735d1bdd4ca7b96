package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is one websocket connection. A client belongs to at most one room
// (the tournament it last created, joined or reconnected into); the room is
// purely a fan-out set and says nothing about tournament membership.
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	room string

	mu     sync.Mutex
	closed bool
}

func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 256),
	}
}

// Enqueue marshals an event and queues it for this connection. A full queue
// drops the frame rather than blocking the caller.
func (c *Client) Enqueue(v any) {
	message, err := json.Marshal(v)
	if err != nil {
		c.hub.logger.Error("marshal outbound event", slog.Any("error", err))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- message:
	default:
		c.hub.logger.Warn("client send queue full, dropping frame",
			slog.String("connection_id", c.ID))
	}
}

func (c *Client) markClosed() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

// Hub tracks which connections belong to which tournament room and fans
// events out to them. Transport-level disconnects only remove the connection
// handle; tournament membership is identity-based and lives in the service.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]bool
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Client]bool),
		logger: logger,
	}
}

// Join moves the client into a room, leaving its previous one if any.
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c)
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][c] = true
	c.room = room
	h.logger.Debug("client joined room",
		slog.String("connection_id", c.ID),
		slog.String("room", room),
		slog.Int("room_size", len(h.rooms[room])))
}

// Leave removes the client from its room and closes its send queue.
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	h.leaveLocked(c)
	h.mu.Unlock()
	c.markClosed()
}

func (h *Hub) leaveLocked(c *Client) {
	if c.room == "" {
		return
	}
	if clients, ok := h.rooms[c.room]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.rooms, c.room)
		}
	}
	c.room = ""
}

// BroadcastToRoom sends an event to every connection in the room.
func (h *Hub) BroadcastToRoom(room string, v any) {
	message, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("marshal broadcast event", slog.Any("error", err))
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.mu.Lock()
		if !c.closed {
			select {
			case c.send <- message:
			default:
				h.logger.Warn("client send queue full during broadcast",
					slog.String("connection_id", c.ID),
					slog.String("room", room))
			}
		}
		c.mu.Unlock()
	}
}

// RoomSize reports the number of live connections in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ReadPump reads frames off the connection and hands them to handle until the
// peer goes away. It owns teardown of the room registration.
func (c *Client) ReadPump(handle func(c *Client, message []byte)) {
	defer func() {
		c.hub.Leave(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("unexpected websocket close",
					slog.String("connection_id", c.ID),
					slog.Any("error", err))
			}
			return
		}
		handle(c, message)
	}
}

// WritePump drains the send queue onto the wire and keeps the connection
// alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

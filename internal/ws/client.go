package ws

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/manpreetbhatti/codecollab/internal/protocol"
	"github.com/manpreetbhatti/codecollab/internal/room"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 1024 * 1024
	sendBufferSize    = 512
	messagesPerSecond = 100
	messageBurst      = 200
	maxRateWarnings   = 1000
)

// Client is one persistent connection. It implements room.Member.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	id        string
	name      string
	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu   sync.Mutex
	room *room.Room
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	id := uuid.NewString()
	return &Client{
		hub:    hub,
		conn:   conn,
		id:     id,
		name:   room.DisplayName(id),
		send:   make(chan []byte, sendBufferSize),
		closed: make(chan struct{}),
	}
}

// ServeWs upgrades the request and starts the connection's pumps
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("Upgrade error:", err)
		return
	}

	client := newClient(hub, conn)
	// Queued before registration so it is always the first frame out
	client.sendEvent(protocol.EventConnected, protocol.User{ID: client.id, Username: client.name})

	if !hub.addClient(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) ID() string {
	return c.id
}

// Send queues a frame without blocking. A client that cannot keep up is
// disconnected rather than allowed to stall its room.
func (c *Client) Send(frame []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		log.Printf("🚫 Send queue full for client %s, disconnecting", c.id)
		c.shutdown()
		return false
	}
}

func (c *Client) sendEvent(event string, data any) {
	frame, err := protocol.Encode(event, data)
	if err != nil {
		log.Printf("Failed to encode %s for client %s: %v", event, c.id, err)
		return
	}
	c.Send(frame)
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *Client) currentRoom() *room.Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Client) setRoom(r *room.Room) {
	c.mu.Lock()
	c.room = r
	c.mu.Unlock()
}

// boundRoom returns the joined room if it is roomID and still lists c
func (c *Client) boundRoom(roomID string) *room.Room {
	r := c.currentRoom()
	if r == nil || r.ID != roomID || !r.HasMember(c.id) {
		return nil
	}
	return r
}

func (c *Client) readPump() {
	defer func() {
		c.hub.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	rateLimitWarnings := 0

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}

		if !c.hub.limiters.Allow(c.id) {
			rateLimitWarnings++
			if rateLimitWarnings%100 == 1 {
				log.Printf("⚠️ Rate limit exceeded for client %s (warning #%d)", c.id, rateLimitWarnings)
			}
			if rateLimitWarnings > maxRateWarnings {
				log.Printf("🚫 Disconnecting client %s for excessive rate limit violations", c.id)
				return
			}
			continue
		}

		c.hub.handleMessage(c, message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closed:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

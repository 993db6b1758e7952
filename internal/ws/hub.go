package ws

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/manpreetbhatti/codecollab/internal/protocol"
	"github.com/manpreetbhatti/codecollab/internal/ratelimit"
	"github.com/manpreetbhatti/codecollab/internal/room"
)

const saveTimeout = 5 * time.Second

// Hub is the session coordinator: it tracks live connections and applies
// their events to the rooms they have joined.
type Hub struct {
	rooms *room.Registry

	// Live connections by identity
	clients map[string]*Client

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Inbound message budget per connection id
	limiters *ratelimit.ClientLimiters

	upgrader      websocket.Upgrader
	allowedOrigin string

	done     chan struct{}
	stopOnce sync.Once
	mu       sync.RWMutex
}

func NewHub(rooms *room.Registry) *Hub {
	h := &Hub{
		rooms:      rooms,
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		limiters:   ratelimit.NewClientLimiters(messagesPerSecond, messageBurst),
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// AllowOrigin restricts WebSocket upgrades to browsers on origin. Empty or
// "*" accepts any origin.
func (h *Hub) AllowOrigin(origin string) {
	h.mu.Lock()
	h.allowedOrigin = strings.TrimSuffix(strings.TrimSpace(origin), "/")
	h.mu.Unlock()
}

// checkOrigin lets through requests without an Origin header, which only
// non-browser clients send.
func (h *Hub) checkOrigin(r *http.Request) bool {
	h.mu.RLock()
	allowed := h.allowedOrigin
	h.mu.RUnlock()

	if allowed == "" || allowed == "*" {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return strings.EqualFold(origin, allowed)
}

func (h *Hub) Rooms() *room.Registry {
	return h.rooms
}

// Run owns the connection table until Stop is called
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("Client %s connected (total: %d)", client.id, total)

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client.id]
			delete(h.clients, client.id)
			total := len(h.clients)
			h.mu.Unlock()

			if !ok {
				continue
			}
			h.limiters.Remove(client.id)
			h.leaveRoom(client)
			client.shutdown()
			log.Printf("Client %s disconnected (remaining: %d)", client.id, total)

		case <-h.done:
			h.mu.Lock()
			clients := make([]*Client, 0, len(h.clients))
			for _, c := range h.clients {
				clients = append(clients, c)
			}
			h.clients = make(map[string]*Client)
			h.mu.Unlock()

			for _, c := range clients {
				h.leaveRoom(c)
				c.shutdown()
			}
			return
		}
	}
}

// Stop disconnects every client and ends Run
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.limiters.Stop()
	})
}

func (h *Hub) addClient(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) removeClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetActiveRooms returns member counts for rooms that have anyone in them
func (h *Hub) GetActiveRooms() map[string]int {
	active := make(map[string]int)
	for _, r := range h.rooms.Rooms() {
		if n := r.MemberCount(); n > 0 {
			active[r.ID] = n
		}
	}
	return active
}

func (h *Hub) GetRoomCount() int {
	return len(h.GetActiveRooms())
}

// handleMessage applies one inbound frame. Anything malformed, or aimed at a
// room the client has not joined, is dropped without telling the sender.
func (h *Hub) handleMessage(c *Client, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		log.Printf("⚠️ Invalid message from client %s: %v", c.id, err)
		return
	}

	switch env.Event {
	case protocol.EventJoinRoom:
		roomID, err := protocol.ParseJoin(env.Data)
		if err != nil {
			h.drop(c, env.Event, err)
			return
		}
		h.join(c, roomID)

	case protocol.EventCodeChange, protocol.EventRestoreVersion:
		roomID, code, err := protocol.ParseCode(env.Data)
		if err != nil {
			h.drop(c, env.Event, err)
			return
		}
		r := c.boundRoom(roomID)
		if r == nil {
			h.drop(c, env.Event, room.ErrNotMember)
			return
		}
		if env.Event == protocol.EventRestoreVersion {
			err = r.Restore(c.id, code)
		} else {
			err = r.Edit(c.id, code)
		}
		if err != nil {
			h.drop(c, env.Event, err)
		}

	case protocol.EventCursorMove:
		roomID, cursor, err := protocol.ParseCursor(env.Data)
		if err != nil {
			h.drop(c, env.Event, err)
			return
		}
		r := c.boundRoom(roomID)
		if r == nil {
			h.drop(c, env.Event, room.ErrNotMember)
			return
		}
		if cursor.Username == "" {
			cursor.Username = c.name
		}
		if err := r.Cursor(c.id, cursor); err != nil {
			h.drop(c, env.Event, err)
		}

	case protocol.EventSaveVersion:
		roomID, code, err := protocol.ParseCode(env.Data)
		if err != nil {
			h.drop(c, env.Event, err)
			return
		}
		r := c.boundRoom(roomID)
		if r == nil {
			h.drop(c, env.Event, room.ErrNotMember)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		snap, err := r.Save(ctx, c.id, code)
		cancel()
		if err != nil {
			log.Printf("Failed to save version for room %s: %v", roomID, err)
			return
		}
		c.sendEvent(protocol.EventVersionSaved, snap)

	default:
		h.drop(c, env.Event, protocol.ErrMalformed)
	}
}

// join binds c to roomID, leaving any room it was in before
func (h *Hub) join(c *Client, roomID string) {
	if current := c.currentRoom(); current != nil && current.ID != roomID {
		h.leaveRoom(c)
	}

	for {
		r := h.rooms.GetOrCreate(roomID)
		err := r.Join(c, c.name)
		if errors.Is(err, room.ErrClosed) {
			// Evicted between lookup and join; the registry has already
			// forgotten it so the next lookup builds a fresh room
			continue
		}
		if err != nil {
			log.Printf("Client %s failed to join room %s: %v", c.id, roomID, err)
			return
		}
		c.setRoom(r)
		log.Printf("Client %s joined room %s (members: %d)", c.id, roomID, r.MemberCount())
		return
	}
}

func (h *Hub) leaveRoom(c *Client) {
	r := c.currentRoom()
	if r == nil {
		return
	}
	c.setRoom(nil)
	if r.Leave(c.id) {
		log.Printf("Client %s left room %s (remaining: %d)", c.id, r.ID, r.MemberCount())
	}
}

func (h *Hub) drop(c *Client, event string, err error) {
	log.Printf("Dropped %q from client %s: %v", event, c.id, err)
}

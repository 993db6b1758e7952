package room

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/manpreetbhatti/codecollab/internal/protocol"
	"github.com/manpreetbhatti/codecollab/internal/versions"
)

var (
	ErrNotMember = errors.New("connection is not a member of this room")
	ErrClosed    = errors.New("room has been evicted")
)

// Member is a connection that can receive room traffic. Send must not block.
type Member interface {
	ID() string
	Send(frame []byte) bool
}

// A collaborative editing session. The mutex orders every mutation and the
// deliveries it causes, so all members see the same sequence of events.
type Room struct {
	ID string

	mu         sync.Mutex
	saveMu     sync.Mutex // orders history writes; never taken while holding mu
	text       string
	presence   *Presence
	members    map[string]Member
	history    *versions.Log
	now        func() time.Time
	lastActive time.Time
	closed     bool
}

// Creates a new empty room backed by the given version store
func NewRoom(id string, store versions.Store, now func() time.Time) *Room {
	if now == nil {
		now = time.Now
	}
	return &Room{
		ID:         id,
		presence:   NewPresence(),
		members:    make(map[string]Member),
		history:    versions.NewLog(id, store, now),
		now:        now,
		lastActive: now(),
	}
}

// Join adds m to the room, sends it the current text and then tells
// everyone, m included, who is present.
func (r *Room) Join(m Member, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	r.presence.Join(m.ID(), name)
	r.members[m.ID()] = m
	r.lastActive = r.now()

	r.deliver(m, protocol.EventLoadCode, r.text)
	r.broadcast("", protocol.EventActiveUsers, r.presence.List())
	return nil
}

// Edit replaces the document text and relays it to every other member
func (r *Room) Edit(fromID, text string) error {
	return r.replace(fromID, text)
}

// Restore has the same effect as Edit. It does not record a new version.
func (r *Room) Restore(fromID, text string) error {
	return r.replace(fromID, text)
}

func (r *Room) replace(fromID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[fromID]; !ok {
		return ErrNotMember
	}
	r.text = text
	r.lastActive = r.now()
	r.broadcast(fromID, protocol.EventReceiveCode, text)
	return nil
}

// Cursor relays a cursor position to every member except its owner
func (r *Room) Cursor(fromID string, cursor protocol.Cursor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[fromID]; !ok {
		return ErrNotMember
	}
	cursor.UserID = fromID
	r.broadcast(fromID, protocol.EventReceiveCursor, cursor)
	return nil
}

// Save appends text to the room's history. Nothing is broadcast. The store
// write happens outside the room lock so edits keep flowing while it runs.
func (r *Room) Save(ctx context.Context, fromID, text string) (versions.Snapshot, error) {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	r.mu.Lock()
	_, ok := r.members[fromID]
	if ok {
		r.lastActive = r.now()
	}
	r.mu.Unlock()

	if !ok {
		return versions.Snapshot{}, ErrNotMember
	}
	return r.history.Append(ctx, text)
}

// Leave removes a member and tells the rest who remains. It reports
// whether id was present.
func (r *Room) Leave(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[id]; !ok {
		return false
	}
	delete(r.members, id)
	r.presence.Leave(id)
	r.lastActive = r.now()

	r.broadcast("", protocol.EventActiveUsers, r.presence.List())
	return true
}

func (r *Room) Text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.text
}

func (r *Room) Users() []protocol.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presence.List()
}

func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presence.Len()
}

func (r *Room) HasMember(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presence.Has(id)
}

// Versions returns the saved history, newest first
func (r *Room) Versions(ctx context.Context) ([]versions.Snapshot, error) {
	return r.history.List(ctx)
}

func (r *Room) VersionCount(ctx context.Context) (int, error) {
	return r.history.Len(ctx)
}

// PruneHistory keeps only the newest keep snapshots
func (r *Room) PruneHistory(ctx context.Context, keep int) (int, error) {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()
	return r.history.Prune(ctx, keep)
}

// closeIfIdle marks the room closed when nobody is in it and it has been
// quiet for at least ttl
func (r *Room) closeIfIdle(now time.Time, ttl time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return true
	}
	if len(r.members) > 0 || now.Sub(r.lastActive) < ttl {
		return false
	}
	r.closed = true
	return true
}

// deliver and broadcast must be called with r.mu held

func (r *Room) deliver(m Member, event string, data any) {
	frame, err := protocol.Encode(event, data)
	if err != nil {
		log.Printf("Room %s: failed to encode %s: %v", r.ID, event, err)
		return
	}
	if !m.Send(frame) {
		log.Printf("Room %s: dropped %s for %s (send queue full)", r.ID, event, m.ID())
	}
}

func (r *Room) broadcast(exceptID, event string, data any) {
	frame, err := protocol.Encode(event, data)
	if err != nil {
		log.Printf("Room %s: failed to encode %s: %v", r.ID, event, err)
		return
	}
	for id, m := range r.members {
		if id == exceptID {
			continue
		}
		if !m.Send(frame) {
			log.Printf("Room %s: dropped %s for %s (send queue full)", r.ID, event, id)
		}
	}
}

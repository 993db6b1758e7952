package room

import (
	"sort"
	"sync"
	"time"

	"github.com/manpreetbhatti/codecollab/internal/versions"
)

type Options struct {
	// Store holds version history; defaults to an in-memory store
	Store versions.Store
	Clock func() time.Time
}

// Registry owns every live room in the process
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room
	store versions.Store
	now   func() time.Time
}

func NewRegistry(opts Options) *Registry {
	if opts.Store == nil {
		opts.Store = versions.NewMemoryStore()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Registry{
		rooms: make(map[string]*Room),
		store: opts.Store,
		now:   opts.Clock,
	}
}

// GetOrCreate returns the room for id, creating it on first use. Exactly one
// Room exists per id no matter how many callers race here.
func (g *Registry) GetOrCreate(id string) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.rooms[id]; ok {
		return r
	}
	r := NewRoom(id, g.store, g.now)
	g.rooms[id] = r
	return r
}

func (g *Registry) Get(id string) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[id]
	return r, ok
}

func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// Rooms returns the live rooms sorted by id
func (g *Registry) Rooms() []*Room {
	g.mu.Lock()
	out := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		out = append(out, r)
	}
	g.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// EvictIdle drops rooms that are empty and have been quiet for ttl. The
// document text of an evicted room is gone; its history stays in the store.
func (g *Registry) EvictIdle(ttl time.Duration) []string {
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	var evicted []string
	for id, r := range g.rooms {
		if r.closeIfIdle(now, ttl) {
			delete(g.rooms, id)
			evicted = append(evicted, id)
		}
	}
	sort.Strings(evicted)
	return evicted
}

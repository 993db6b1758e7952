package room

import "github.com/manpreetbhatti/codecollab/internal/protocol"

// DisplayName derives the name shown for a connection from its identity
func DisplayName(id string) string {
	short := id
	if len(short) > 4 {
		short = short[:4]
	}
	return "User_" + short
}

// Presence is the set of connections joined to a room, in join order.
// It is not safe for concurrent use; Room guards it.
type Presence struct {
	entries []protocol.User
	index   map[string]int
}

func NewPresence() *Presence {
	return &Presence{index: make(map[string]int)}
}

// Join adds id, or renames it if already present
func (p *Presence) Join(id, name string) {
	if i, ok := p.index[id]; ok {
		p.entries[i].Username = name
		return
	}
	p.index[id] = len(p.entries)
	p.entries = append(p.entries, protocol.User{ID: id, Username: name})
}

func (p *Presence) Leave(id string) bool {
	i, ok := p.index[id]
	if !ok {
		return false
	}
	p.entries = append(p.entries[:i], p.entries[i+1:]...)
	delete(p.index, id)
	for j := i; j < len(p.entries); j++ {
		p.index[p.entries[j].ID] = j
	}
	return true
}

func (p *Presence) Has(id string) bool {
	_, ok := p.index[id]
	return ok
}

func (p *Presence) Len() int {
	return len(p.entries)
}

// List returns a copy safe to hand to other goroutines
func (p *Presence) List() []protocol.User {
	out := make([]protocol.User, len(p.entries))
	copy(out, p.entries)
	return out
}

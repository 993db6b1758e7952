package versions

import (
	"context"
	"sync"
)

// MemoryStore keeps history in process memory; a restart loses everything
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string][]Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string][]Snapshot)}
}

func (m *MemoryStore) Append(_ context.Context, roomID string, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[roomID] = append(m.rooms[roomID], snap)
	return nil
}

func (m *MemoryStore) List(_ context.Context, roomID string) ([]Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.rooms[roomID]
	out := make([]Snapshot, len(history))
	for i, snap := range history {
		out[len(history)-1-i] = snap
	}
	return out, nil
}

func (m *MemoryStore) Count(_ context.Context, roomID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms[roomID]), nil
}

func (m *MemoryStore) Prune(_ context.Context, roomID string, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.rooms[roomID]
	if len(history) <= keep {
		return 0, nil
	}
	removed := len(history) - keep
	kept := make([]Snapshot, keep)
	copy(kept, history[removed:])
	m.rooms[roomID] = kept
	return removed, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

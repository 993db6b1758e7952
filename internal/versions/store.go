package versions

import (
	"context"
	"time"
)

// Snapshot is an immutable saved copy of a room's code
type Snapshot struct {
	Code    string    `json:"code"`
	SavedAt time.Time `json:"savedAt"`
}

// Store persists version history for every room. Implementations must be
// safe for concurrent use. List returns most-recent-first.
type Store interface {
	Append(ctx context.Context, roomID string, snap Snapshot) error
	List(ctx context.Context, roomID string) ([]Snapshot, error)
	Count(ctx context.Context, roomID string) (int, error)
	// Prune drops all but the newest keep snapshots and reports how many went
	Prune(ctx context.Context, roomID string, keep int) (int, error)
	Close() error
}

// Log is one room's view of a Store
type Log struct {
	roomID string
	store  Store
	now    func() time.Time
}

func NewLog(roomID string, store Store, now func() time.Time) *Log {
	if now == nil {
		now = time.Now
	}
	return &Log{roomID: roomID, store: store, now: now}
}

// Append records code with a server-assigned timestamp
func (l *Log) Append(ctx context.Context, code string) (Snapshot, error) {
	snap := Snapshot{Code: code, SavedAt: l.now().UTC()}
	if err := l.store.Append(ctx, l.roomID, snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (l *Log) List(ctx context.Context) ([]Snapshot, error) {
	return l.store.List(ctx, l.roomID)
}

func (l *Log) Len(ctx context.Context) (int, error) {
	return l.store.Count(ctx, l.roomID)
}

func (l *Log) Prune(ctx context.Context, keep int) (int, error) {
	return l.store.Prune(ctx, l.roomID, keep)
}

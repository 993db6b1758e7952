package versions

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestSQLite(t *testing.T) (*SQLiteStore, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "codecollab-versions-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	store, err := NewSQLiteStore(filepath.Join(tmpDir, "versions.db"))
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create sqlite store: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}
	return store, cleanup
}

func setupTestRedis(t *testing.T) *RedisStore {
	t.Helper()

	mr := miniredis.RunT(t)
	store, err := NewRedisStoreFromClient(context.Background(), redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("Failed to create redis store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// runStoreSuite checks the behavior every backend shares
func runStoreSuite(t *testing.T, store Store) {
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 600, time.UTC)

	t.Run("empty room", func(t *testing.T) {
		snaps, err := store.List(ctx, "empty")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if snaps == nil || len(snaps) != 0 {
			t.Errorf("Expected empty non-nil list, got %#v", snaps)
		}
		count, err := store.Count(ctx, "empty")
		if err != nil || count != 0 {
			t.Errorf("Expected count 0, got %d (%v)", count, err)
		}
	})

	t.Run("newest first", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			snap := Snapshot{Code: fmt.Sprintf("v%d", i), SavedAt: base.Add(time.Duration(i) * time.Second)}
			if err := store.Append(ctx, "order", snap); err != nil {
				t.Fatalf("Append failed: %v", err)
			}
		}

		snaps, err := store.List(ctx, "order")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(snaps) != 3 {
			t.Fatalf("Expected 3 snapshots, got %d", len(snaps))
		}
		for i, want := range []string{"v2", "v1", "v0"} {
			if snaps[i].Code != want {
				t.Errorf("Position %d: expected %q, got %q", i, want, snaps[i].Code)
			}
		}
		if !snaps[2].SavedAt.Equal(base) {
			t.Errorf("Timestamp not preserved: expected %v, got %v", base, snaps[2].SavedAt)
		}
	})

	t.Run("same timestamp keeps append order", func(t *testing.T) {
		for _, code := range []string{"a", "b"} {
			if err := store.Append(ctx, "tie", Snapshot{Code: code, SavedAt: base}); err != nil {
				t.Fatalf("Append failed: %v", err)
			}
		}
		snaps, _ := store.List(ctx, "tie")
		if len(snaps) != 2 || snaps[0].Code != "b" || snaps[1].Code != "a" {
			t.Errorf("Unexpected order: %+v", snaps)
		}
	})

	t.Run("rooms are isolated", func(t *testing.T) {
		store.Append(ctx, "iso-a", Snapshot{Code: "a", SavedAt: base})
		snaps, _ := store.List(ctx, "iso-b")
		if len(snaps) != 0 {
			t.Errorf("Room iso-b should be empty, got %d", len(snaps))
		}
	})

	t.Run("prune", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			store.Append(ctx, "prune", Snapshot{Code: fmt.Sprintf("p%d", i), SavedAt: base})
		}

		removed, err := store.Prune(ctx, "prune", 2)
		if err != nil {
			t.Fatalf("Prune failed: %v", err)
		}
		if removed != 3 {
			t.Errorf("Expected 3 removed, got %d", removed)
		}

		snaps, _ := store.List(ctx, "prune")
		if len(snaps) != 2 || snaps[0].Code != "p4" || snaps[1].Code != "p3" {
			t.Errorf("Expected newest two to survive, got %+v", snaps)
		}

		removed, _ = store.Prune(ctx, "prune", 10)
		if removed != 0 {
			t.Errorf("Pruning below the cap should remove nothing, got %d", removed)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	store, cleanup := setupTestSQLite(t)
	defer cleanup()
	runStoreSuite(t, store)
}

func TestSQLiteStorePersists(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "versions.db")

	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("Failed to create sqlite store: %v", err)
	}
	store.Append(context.Background(), "r", Snapshot{Code: "kept", SavedAt: time.Now()})
	store.Close()

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("Failed to reopen sqlite store: %v", err)
	}
	defer reopened.Close()

	snaps, _ := reopened.List(context.Background(), "r")
	if len(snaps) != 1 || snaps[0].Code != "kept" {
		t.Errorf("Expected persisted snapshot, got %+v", snaps)
	}
}

func TestRedisStore(t *testing.T) {
	runStoreSuite(t, setupTestRedis(t))
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("CODECOLLAB_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CODECOLLAB_TEST_POSTGRES_DSN not set")
	}

	store, err := NewPostgresStore(context.Background(), dsn)
	if err != nil {
		t.Fatalf("Failed to create postgres store: %v", err)
	}
	defer store.Close()

	// Start from a clean table since the suite uses fixed room ids
	if _, err := store.pool.Exec(context.Background(), "DELETE FROM room_versions"); err != nil {
		t.Fatalf("Failed to reset table: %v", err)
	}
	runStoreSuite(t, store)
}

func TestMemoryStoreConcurrency(t *testing.T) {
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store.Append(context.Background(), "busy", Snapshot{Code: fmt.Sprint(i)})
		}(i)
	}
	wg.Wait()

	count, _ := store.Count(context.Background(), "busy")
	if count != 100 {
		t.Errorf("Expected 100 snapshots, got %d", count)
	}
}

func TestLogStampsServerTime(t *testing.T) {
	fixed := time.Date(2026, 10, 14, 12, 0, 0, 0, time.FixedZone("x", 3600))
	log := NewLog("room", NewMemoryStore(), func() time.Time { return fixed })

	snap, err := log.Append(context.Background(), "print(1)")
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if !snap.SavedAt.Equal(fixed) || snap.SavedAt.Location() != time.UTC {
		t.Errorf("Expected %v in UTC, got %v", fixed, snap.SavedAt)
	}

	n, _ := log.Len(context.Background())
	if n != 1 {
		t.Errorf("Expected length 1, got %d", n)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	for _, dsn := range []string{"", "memory://", "MEM://"} {
		store, err := Open(ctx, dsn)
		if err != nil {
			t.Fatalf("Open(%q) failed: %v", dsn, err)
		}
		if _, ok := store.(*MemoryStore); !ok {
			t.Errorf("Open(%q): expected *MemoryStore, got %T", dsn, store)
		}
	}

	path := filepath.Join(t.TempDir(), "open.db")
	store, err := Open(ctx, "sqlite://"+path)
	if err != nil {
		t.Fatalf("Open sqlite failed: %v", err)
	}
	if _, ok := store.(*SQLiteStore); !ok {
		t.Errorf("Expected *SQLiteStore, got %T", store)
	}
	store.Close()

	mr := miniredis.RunT(t)
	store, err = Open(ctx, "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("Open redis failed: %v", err)
	}
	if _, ok := store.(*RedisStore); !ok {
		t.Errorf("Expected *RedisStore, got %T", store)
	}
	store.Close()

	if _, err := Open(ctx, "mongodb://localhost"); !errors.Is(err, ErrUnsupportedScheme) {
		t.Errorf("Expected ErrUnsupportedScheme, got %v", err)
	}
	if _, err := Open(ctx, "sqlite://"); err == nil {
		t.Error("Expected error for sqlite dsn without path")
	}
}

package versions

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps history in a local SQLite file
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One writer keeps append order equal to id order and makes :memory: usable
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, err
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}

	log.Printf("Version store initialized at %s", dbPath)
	return &SQLiteStore{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS room_versions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT NOT NULL,
		code TEXT NOT NULL,
		saved_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_room_versions_room_id ON room_versions(room_id, id DESC);
	`

	_, err := db.Exec(schema)
	return err
}

func (s *SQLiteStore) Append(ctx context.Context, roomID string, snap Snapshot) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO room_versions (room_id, code, saved_at) VALUES (?, ?, ?)",
		roomID, snap.Code, snap.SavedAt.UnixNano(),
	)
	return err
}

// List returns all versions for a room, newest first
func (s *SQLiteStore) List(ctx context.Context, roomID string) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, saved_at
		FROM room_versions
		WHERE room_id = ?
		ORDER BY id DESC
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snaps := make([]Snapshot, 0)
	for rows.Next() {
		var snap Snapshot
		var savedAt int64
		if err := rows.Scan(&snap.Code, &savedAt); err != nil {
			return nil, err
		}
		snap.SavedAt = time.Unix(0, savedAt).UTC()
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func (s *SQLiteStore) Count(ctx context.Context, roomID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM room_versions WHERE room_id = ?",
		roomID,
	).Scan(&count)
	return count, err
}

// Prune removes old versions, keeping the most recent keep
func (s *SQLiteStore) Prune(ctx context.Context, roomID string, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM room_versions
		WHERE room_id = ? AND id NOT IN (
			SELECT id FROM room_versions
			WHERE room_id = ?
			ORDER BY id DESC
			LIMIT ?
		)
	`, roomID, roomID, keep)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

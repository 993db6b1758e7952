package versions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresInitTimeout = 10 * time.Second

// PostgresStore keeps history in a shared Postgres database
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, postgresInitTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS room_versions (
			id BIGSERIAL PRIMARY KEY,
			room_id TEXT NOT NULL,
			code TEXT NOT NULL,
			saved_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_room_versions_room_id ON room_versions(room_id, id DESC);
	`)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create postgres schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Append(ctx context.Context, roomID string, snap Snapshot) error {
	_, err := p.pool.Exec(ctx,
		"INSERT INTO room_versions (room_id, code, saved_at) VALUES ($1, $2, $3)",
		roomID, snap.Code, snap.SavedAt,
	)
	return err
}

func (p *PostgresStore) List(ctx context.Context, roomID string) ([]Snapshot, error) {
	rows, err := p.pool.Query(ctx,
		"SELECT code, saved_at FROM room_versions WHERE room_id = $1 ORDER BY id DESC",
		roomID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snaps := make([]Snapshot, 0)
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.Code, &snap.SavedAt); err != nil {
			return nil, err
		}
		snap.SavedAt = snap.SavedAt.UTC()
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func (p *PostgresStore) Count(ctx context.Context, roomID string) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM room_versions WHERE room_id = $1",
		roomID,
	).Scan(&count)
	return count, err
}

func (p *PostgresStore) Prune(ctx context.Context, roomID string, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	tag, err := p.pool.Exec(ctx, `
		DELETE FROM room_versions
		WHERE room_id = $1 AND id NOT IN (
			SELECT id FROM room_versions
			WHERE room_id = $1
			ORDER BY id DESC
			LIMIT $2
		)
	`, roomID, keep)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

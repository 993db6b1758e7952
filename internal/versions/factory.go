package versions

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrUnsupportedScheme = errors.New("unsupported version store scheme")

// Open builds a Store from a DSN. Supported forms:
//
//	memory://              process memory (default when dsn is empty)
//	sqlite://path/to.db    SQLite file; a bare path without scheme is the same
//	postgres://...         Postgres via pgx
//	redis://...            Redis lists
func Open(ctx context.Context, dsn string) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return NewMemoryStore(), nil
	}

	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return NewSQLiteStore(dsn)
	}

	switch strings.ToLower(scheme) {
	case "memory", "mem", "inmem":
		return NewMemoryStore(), nil
	case "sqlite", "sqlite3", "file":
		if rest == "" {
			return nil, fmt.Errorf("sqlite dsn %q has no path", dsn)
		}
		return NewSQLiteStore(rest)
	case "postgres", "postgresql":
		return NewPostgresStore(ctx, dsn)
	case "redis", "rediss":
		return NewRedisStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
	}
}

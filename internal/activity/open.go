package activity

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clawcobie-afk/strava-connector/internal/sqliteutil"
)

// Open builds a repository from a DSN and applies its schema. postgres:// and
// postgresql:// URLs select Postgres; anything else is a SQLite path.
func Open(ctx context.Context, dsn string) (Repository, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("open activity store: empty database url")
	}

	var repo Repository
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		repo = NewPostgresStore(pool)
	default:
		db, err := sqliteutil.Open(dsn)
		if err != nil {
			return nil, err
		}
		repo = NewStore(db)
	}

	if err := repo.Init(ctx); err != nil {
		repo.Close()
		return nil, err
	}
	return repo, nil
}

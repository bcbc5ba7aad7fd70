//go:build integration

package activity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func TestPostgresStoreUpsertRoundTrip(t *testing.T) {
	ctx := context.Background()

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("strava"),
		postgrescontainer.WithUsername("strava"),
		postgrescontainer.WithPassword("strava"),
		postgrescontainer.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	repo, err := Open(openCtx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	require.IsType(t, &PostgresStore{}, repo)

	a, err := Decode([]byte(`{"id":42,"name":"Run","distance":5000.0,"extra":{"nested":true}}`))
	require.NoError(t, err)

	require.NoError(t, repo.Upsert(ctx, a))
	require.NoError(t, repo.Upsert(ctx, a))

	got, ok, err := repo.GetByID(ctx, 42)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, a, got)

	ids, err := repo.ExistingIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, map[int64]struct{}{42: {}}, ids)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

package activity

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := Open(context.Background(), filepath.Join(t.TempDir(), "activities.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func sampleActivity(t *testing.T, id int64, name string) Activity {
	t.Helper()
	raw := fmt.Sprintf(`{"id":%d,"name":%q,"type":"Run","sport_type":"Run","distance":5000.5,`+
		`"moving_time":1500,"elapsed_time":1600,"total_elevation_gain":42.1,`+
		`"start_date":"2026-03-01T07:00:00Z","start_date_local":"2026-03-01T08:00:00Z",`+
		`"timezone":"(GMT+01:00) Europe/Prague","kudos_count":3}`, id, name)
	a, err := Decode([]byte(raw))
	require.NoError(t, err)
	return a
}

func TestUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := openTestStore(t)
	a := sampleActivity(t, 42, "Run")

	require.NoError(t, repo.Upsert(ctx, a))
	first, ok, err := repo.GetByID(ctx, 42)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, repo.Upsert(ctx, a))
	second, ok, err := repo.GetByID(ctx, 42)
	require.NoError(t, err)
	require.True(t, ok)

	require.Equal(t, first, second)
	require.Equal(t, a, second)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestUpsertReplacesInFull(t *testing.T) {
	ctx := context.Background()
	repo := openTestStore(t)

	require.NoError(t, repo.Upsert(ctx, sampleActivity(t, 7, "Morning Run")))

	replacement := Activity{ID: 7, Name: "Renamed", Type: "Ride"}
	require.NoError(t, repo.Upsert(ctx, replacement))

	got, ok, err := repo.GetByID(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Renamed", got.Name)
	require.Equal(t, "Ride", got.Type)
	require.Empty(t, got.SportType, "fields absent from the new payload must not survive")
	require.Zero(t, got.Distance)
	require.JSONEq(t, `{"id":7,"name":"Renamed","type":"Ride","sport_type":"","distance":0,"moving_time":0,`+
		`"elapsed_time":0,"total_elevation_gain":0,"start_date":"","start_date_local":"","timezone":""}`, string(got.Raw))
}

func TestRawPayloadPreserved(t *testing.T) {
	ctx := context.Background()
	repo := openTestStore(t)
	a := sampleActivity(t, 9, "Tempo")
	require.NoError(t, repo.Upsert(ctx, a))

	got, _, err := repo.GetByID(ctx, 9)
	require.NoError(t, err)
	require.Contains(t, string(got.Raw), `"kudos_count":3`)
	require.Equal(t, 5000.5, got.Distance)
	require.Equal(t, "(GMT+01:00) Europe/Prague", got.Timezone)
}

func TestGetByIDMissing(t *testing.T) {
	repo := openTestStore(t)
	_, ok, err := repo.GetByID(context.Background(), 404)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestExistingIDs(t *testing.T) {
	ctx := context.Background()
	repo := openTestStore(t)
	for _, id := range []int64{1, 2, 3} {
		require.NoError(t, repo.Upsert(ctx, Activity{ID: id}))
	}
	ids, err := repo.ExistingIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, map[int64]struct{}{1: {}, 2: {}, 3: {}}, ids)
}

func TestConcurrentUpserts(t *testing.T) {
	ctx := context.Background()
	repo := openTestStore(t)

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 32; i++ {
		wg.Add(2)
		go func(id int64) {
			defer wg.Done()
			errs <- repo.Upsert(ctx, Activity{ID: id, Name: "distinct"})
		}(int64(1000 + i))
		go func(i int) {
			defer wg.Done()
			errs <- repo.Upsert(ctx, Activity{ID: 1, Name: fmt.Sprintf("writer-%d", i)})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 33, n)

	got, ok, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Regexp(t, `^writer-\d+$`, got.Name)
}

func TestStoreErrorWrapping(t *testing.T) {
	repo := openTestStore(t)
	require.NoError(t, repo.Close())

	err := repo.Upsert(context.Background(), Activity{ID: 1})
	require.Error(t, err)
	var storeErr *StoreError
	require.True(t, errors.As(err, &storeErr))
	require.Equal(t, "upsert 1", storeErr.Op)
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	require.Error(t, err)
}

package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore provides Postgres-backed persistence for activities. Row
// locks let upserts to different ids proceed in parallel.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

// Init applies the activities schema.
func (r *PostgresStore) Init(ctx context.Context) error {
	const stmt = `CREATE TABLE IF NOT EXISTS activities (
		id BIGINT PRIMARY KEY,
		name TEXT,
		type TEXT,
		sport_type TEXT,
		distance DOUBLE PRECISION,
		moving_time INTEGER,
		elapsed_time INTEGER,
		total_elevation_gain DOUBLE PRECISION,
		start_date TEXT,
		start_date_local TEXT,
		timezone TEXT,
		raw_json TEXT,
		synced_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`
	if _, err := r.pool.Exec(ctx, stmt); err != nil {
		return storeErr("apply schema", err)
	}
	return nil
}

// Upsert writes a full replacement of the row keyed by a.ID.
func (r *PostgresStore) Upsert(ctx context.Context, a Activity) error {
	raw, err := a.RawJSON()
	if err != nil {
		return storeErr("upsert", err)
	}
	const stmt = `INSERT INTO activities (id, name, type, sport_type, distance, moving_time, elapsed_time,
			total_elevation_gain, start_date, start_date_local, timezone, raw_json, synced_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			sport_type = EXCLUDED.sport_type,
			distance = EXCLUDED.distance,
			moving_time = EXCLUDED.moving_time,
			elapsed_time = EXCLUDED.elapsed_time,
			total_elevation_gain = EXCLUDED.total_elevation_gain,
			start_date = EXCLUDED.start_date,
			start_date_local = EXCLUDED.start_date_local,
			timezone = EXCLUDED.timezone,
			raw_json = EXCLUDED.raw_json,
			synced_at = EXCLUDED.synced_at`
	_, err = r.pool.Exec(ctx, stmt,
		a.ID,
		a.Name,
		a.Type,
		a.SportType,
		a.Distance,
		a.MovingTime,
		a.ElapsedTime,
		a.TotalElevationGain,
		a.StartDate,
		a.StartDateLocal,
		a.Timezone,
		string(raw),
		r.now().UTC(),
	)
	if err != nil {
		return storeErr(fmt.Sprintf("upsert %d", a.ID), err)
	}
	return nil
}

// ExistingIDs scans every stored id.
func (r *PostgresStore) ExistingIDs(ctx context.Context) (map[int64]struct{}, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM activities`)
	if err != nil {
		return nil, storeErr("list ids", err)
	}
	defer rows.Close()
	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr("scan id", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iter ids", err)
	}
	return ids, nil
}

// GetByID fetches one activity; the bool is false when no row exists.
func (r *PostgresStore) GetByID(ctx context.Context, id int64) (Activity, bool, error) {
	const query = `SELECT id, COALESCE(name, ''), COALESCE(type, ''), COALESCE(sport_type, ''),
			COALESCE(distance, 0), COALESCE(moving_time, 0), COALESCE(elapsed_time, 0),
			COALESCE(total_elevation_gain, 0), COALESCE(start_date, ''), COALESCE(start_date_local, ''),
			COALESCE(timezone, ''), COALESCE(raw_json, '')
		FROM activities WHERE id = $1`
	var (
		a   Activity
		raw string
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&a.ID,
		&a.Name,
		&a.Type,
		&a.SportType,
		&a.Distance,
		&a.MovingTime,
		&a.ElapsedTime,
		&a.TotalElevationGain,
		&a.StartDate,
		&a.StartDateLocal,
		&a.Timezone,
		&raw,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Activity{}, false, nil
		}
		return Activity{}, false, storeErr(fmt.Sprintf("get %d", id), err)
	}
	if raw != "" {
		a.Raw = json.RawMessage(raw)
	}
	return a, true, nil
}

// Count returns the number of stored activities.
func (r *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM activities`).Scan(&n); err != nil {
		return 0, storeErr("count", err)
	}
	return n, nil
}

// Close releases the pool.
func (r *PostgresStore) Close() error {
	r.pool.Close()
	return nil
}

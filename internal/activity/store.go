package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Store encapsulates access to the SQLite activities table.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore constructs a SQLite-backed repository over an open handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Init applies the activities schema.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS activities (
			id INTEGER PRIMARY KEY,
			name TEXT,
			type TEXT,
			sport_type TEXT,
			distance REAL,
			moving_time INTEGER,
			elapsed_time INTEGER,
			total_elevation_gain REAL,
			start_date TEXT,
			start_date_local TEXT,
			timezone TEXT,
			raw_json TEXT,
			synced_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_activities_start ON activities(start_date DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return storeErr("apply schema", err)
		}
	}
	return nil
}

// Upsert writes a complete replacement of the row keyed by a.ID. The
// statement is atomic, so concurrent writers to one id resolve last-writer-wins.
func (s *Store) Upsert(ctx context.Context, a Activity) error {
	raw, err := a.RawJSON()
	if err != nil {
		return storeErr("upsert", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO activities(id, name, type, sport_type, distance, moving_time, elapsed_time,
			total_elevation_gain, start_date, start_date_local, timezone, raw_json, synced_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			sport_type = excluded.sport_type,
			distance = excluded.distance,
			moving_time = excluded.moving_time,
			elapsed_time = excluded.elapsed_time,
			total_elevation_gain = excluded.total_elevation_gain,
			start_date = excluded.start_date,
			start_date_local = excluded.start_date_local,
			timezone = excluded.timezone,
			raw_json = excluded.raw_json,
			synced_at = excluded.synced_at`,
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
		s.now().UTC(),
	)
	if err != nil {
		return storeErr(fmt.Sprintf("upsert %d", a.ID), err)
	}
	return nil
}

// ExistingIDs scans every stored id. Used to build the bulk sync dedup set.
func (s *Store) ExistingIDs(ctx context.Context) (map[int64]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM activities`)
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
func (s *Store) GetByID(ctx context.Context, id int64) (Activity, bool, error) {
	var (
		a   Activity
		raw sql.NullString
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT id, COALESCE(name, ''), COALESCE(type, ''), COALESCE(sport_type, ''),
			COALESCE(distance, 0), COALESCE(moving_time, 0), COALESCE(elapsed_time, 0),
			COALESCE(total_elevation_gain, 0), COALESCE(start_date, ''), COALESCE(start_date_local, ''),
			COALESCE(timezone, ''), raw_json
		 FROM activities WHERE id = ?`, id)
	if err := row.Scan(
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
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Activity{}, false, nil
		}
		return Activity{}, false, storeErr(fmt.Sprintf("get %d", id), err)
	}
	if raw.Valid && raw.String != "" {
		a.Raw = json.RawMessage(raw.String)
	}
	return a, true, nil
}

// Count returns the number of stored activities.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activities`).Scan(&n); err != nil {
		return 0, storeErr("count", err)
	}
	return n, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

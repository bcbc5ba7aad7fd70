package activity

import (
	"context"
	"encoding/json"
	"fmt"
)

// Activity is a single Strava activity as persisted locally. Raw keeps the
// verbatim remote document so fields not modelled here survive.
type Activity struct {
	ID                 int64           `json:"id"`
	Name               string          `json:"name"`
	Type               string          `json:"type"`
	SportType          string          `json:"sport_type"`
	Distance           float64         `json:"distance"`
	MovingTime         int             `json:"moving_time"`
	ElapsedTime        int             `json:"elapsed_time"`
	TotalElevationGain float64         `json:"total_elevation_gain"`
	StartDate          string          `json:"start_date"`
	StartDateLocal     string          `json:"start_date_local"`
	Timezone           string          `json:"timezone"`
	Raw                json.RawMessage `json:"-"`
}

// Decode parses one remote activity document and keeps the original bytes.
func Decode(raw []byte) (Activity, error) {
	var a Activity
	if err := json.Unmarshal(raw, &a); err != nil {
		return Activity{}, fmt.Errorf("decode activity: %w", err)
	}
	a.Raw = append(json.RawMessage(nil), raw...)
	return a, nil
}

// RawJSON returns the payload stored alongside the extracted columns.
func (a Activity) RawJSON() ([]byte, error) {
	if len(a.Raw) > 0 {
		return a.Raw, nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal activity %d: %w", a.ID, err)
	}
	return b, nil
}

// Repository is the single write path into the activities collection.
type Repository interface {
	Init(ctx context.Context) error
	Upsert(ctx context.Context, a Activity) error
	ExistingIDs(ctx context.Context) (map[int64]struct{}, error)
	GetByID(ctx context.Context, id int64) (Activity, bool, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// StoreError marks a persistence failure so callers can tell it apart from
// remote or input errors.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("activity store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

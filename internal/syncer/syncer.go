// Package syncer pulls the athlete's full activity history into the local
// store, skipping activities that are already present.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/clawcobie-afk/strava-connector/internal/activity"
	"github.com/clawcobie-afk/strava-connector/internal/credential"
	"github.com/clawcobie-afk/strava-connector/internal/strava"
)

// DefaultPerPage is the largest page Strava serves. Larger requests are
// silently capped by the API, so Run clamps to it.
const DefaultPerPage = 200

var activitiesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "strava_connector",
	Subsystem: "sync",
	Name:      "activities_total",
	Help:      "Activities seen by bulk sync, labeled by result.",
}, []string{"result"})

func init() {
	prometheus.MustRegister(activitiesCounter)
}

// Client is the slice of the Strava API a bulk sync needs.
type Client interface {
	ExchangeRefreshToken(ctx context.Context, clientID, clientSecret, refreshToken string) (credential.Credential, error)
	ListActivities(ctx context.Context, accessToken string, opts strava.ListOptions) ([]activity.Activity, error)
}

type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// Options narrows one run. Progress, when set, is called after every save
// and OnPage after every page fetched.
type Options struct {
	After    *time.Time
	PerPage  int
	Progress func(activity.Activity)
	OnPage   func(page int)
}

// Summary aggregates the effects of a sync pass.
type Summary struct {
	RunID       string    `json:"run_id"`
	Saved       int       `json:"saved"`
	Skipped     int       `json:"skipped"`
	Pages       int       `json:"pages_processed"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

type Syncer struct {
	client Client
	store  activity.Repository
	cfg    Config
	logger *slog.Logger
}

func New(client Client, store activity.Repository, cfg Config, logger *slog.Logger) *Syncer {
	return &Syncer{
		client: client,
		store:  store,
		cfg:    cfg,
		logger: logger.With("component", "syncer"),
	}
}

// ParseAfter reads a YYYY-MM-DD boundary as midnight UTC.
func ParseAfter(raw string) (time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(raw), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse after date %q: expected YYYY-MM-DD: %w", raw, err)
	}
	return t, nil
}

// Run exchanges the refresh token once, then pages through the activity list
// until a short page. Activities already stored when the run started are
// skipped; new ones are upserted.
func (s *Syncer) Run(ctx context.Context, opts Options) (Summary, error) {
	summary := Summary{RunID: uuid.NewString(), StartedAt: time.Now().UTC()}
	logger := s.logger.With("run_id", summary.RunID)

	perPage := opts.PerPage
	if perPage <= 0 || perPage > DefaultPerPage {
		perPage = DefaultPerPage
	}

	cred, err := s.client.ExchangeRefreshToken(ctx, s.cfg.ClientID, s.cfg.ClientSecret, s.cfg.RefreshToken)
	if err != nil {
		return summary, fmt.Errorf("sync: refresh credential: %w", err)
	}

	known, err := s.store.ExistingIDs(ctx)
	if err != nil {
		return summary, fmt.Errorf("sync: load existing ids: %w", err)
	}
	logger.Info("bulk sync started", "known", len(known), "per_page", perPage, "after", formatAfter(opts.After))

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		items, err := s.client.ListActivities(ctx, cred.AccessToken, strava.ListOptions{
			Page:    page,
			PerPage: perPage,
			After:   opts.After,
		})
		if err != nil {
			return summary, fmt.Errorf("sync: page %d: %w", page, err)
		}
		summary.Pages++
		if opts.OnPage != nil {
			opts.OnPage(page)
		}

		for _, a := range items {
			if _, ok := known[a.ID]; ok {
				summary.Skipped++
				activitiesCounter.WithLabelValues("skipped").Inc()
				continue
			}
			if err := s.store.Upsert(ctx, a); err != nil {
				return summary, fmt.Errorf("sync: %w", err)
			}
			known[a.ID] = struct{}{}
			summary.Saved++
			activitiesCounter.WithLabelValues("saved").Inc()
			logger.Info("activity saved",
				"activity_id", a.ID,
				"name", a.Name,
				"distance_km", fmt.Sprintf("%.1f", a.Distance/1000),
				"date", ActivityDate(a),
			)
			if opts.Progress != nil {
				opts.Progress(a)
			}
		}

		if len(items) < perPage {
			break
		}
	}

	summary.CompletedAt = time.Now().UTC()
	logger.Info("bulk sync completed", "saved", summary.Saved, "skipped", summary.Skipped, "pages", summary.Pages)
	return summary, nil
}

func formatAfter(after *time.Time) string {
	if after == nil {
		return ""
	}
	return after.Format(time.DateOnly)
}

// ActivityDate is the local start date of a, falling back to the UTC start
// date when no local time was recorded.
func ActivityDate(a activity.Activity) string {
	date := a.StartDateLocal
	if date == "" {
		date = a.StartDate
	}
	if len(date) > len(time.DateOnly) {
		date = date[:len(time.DateOnly)]
	}
	return date
}

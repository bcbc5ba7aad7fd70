// Package refresher keeps the published Strava credential fresh. It runs as a
// single goroutine for the lifetime of the serve command.
package refresher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/clawcobie-afk/strava-connector/internal/credential"
	"github.com/clawcobie-afk/strava-connector/internal/sentry"
)

// DefaultInterval stays comfortably below Strava's six hour token lifetime.
const DefaultInterval = 5 * time.Hour

// TokenExchanger trades a refresh token for a new access credential.
type TokenExchanger interface {
	ExchangeRefreshToken(ctx context.Context, clientID, clientSecret, refreshToken string) (credential.Credential, error)
}

// CredentialStore is where fresh credentials are published.
type CredentialStore interface {
	Publish(c credential.Credential)
	Current() (credential.Credential, bool)
}

type Config struct {
	ClientID     string
	ClientSecret string
	// RefreshToken is used until a published credential carries its own.
	RefreshToken   string
	Interval       time.Duration
	RefreshOnStart bool
}

type Refresher struct {
	exchanger TokenExchanger
	store     CredentialStore
	cfg       Config
	logger    *slog.Logger
}

func New(exchanger TokenExchanger, store CredentialStore, cfg Config, logger *slog.Logger) *Refresher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Refresher{
		exchanger: exchanger,
		store:     store,
		cfg:       cfg,
		logger:    logger.With("component", "refresher"),
	}
}

// Run refreshes on every tick until ctx is cancelled. Failed refreshes are
// logged and reported; the previous credential stays published.
func (r *Refresher) Run(ctx context.Context) error {
	r.logger.Info("refresher started", "interval", r.cfg.Interval.String(), "refresh_on_start", r.cfg.RefreshOnStart)

	if r.cfg.RefreshOnStart {
		_ = r.RefreshOnce(ctx)
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("refresher stopped")
			return ctx.Err()
		case <-ticker.C:
			_ = r.RefreshOnce(ctx)
		}
	}
}

// RefreshOnce performs a single exchange and publishes the result.
func (r *Refresher) RefreshOnce(ctx context.Context) error {
	refreshToken := r.cfg.RefreshToken
	if current, ok := r.store.Current(); ok && current.RefreshToken != "" {
		refreshToken = current.RefreshToken
	}

	cred, err := r.exchanger.ExchangeRefreshToken(ctx, r.cfg.ClientID, r.cfg.ClientSecret, refreshToken)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		refreshCounter.WithLabelValues("failure").Inc()
		r.logger.Error("credential refresh failed, keeping previous credential", "error", err)
		sentry.CaptureException(err, map[string]string{"component": "refresher"})
		return fmt.Errorf("refresh credential: %w", err)
	}
	if cred.RefreshToken == "" {
		cred.RefreshToken = refreshToken
	}

	r.store.Publish(cred)
	refreshCounter.WithLabelValues("success").Inc()
	recordExpiry(cred.ExpiresAt)
	r.logger.Info("credential refreshed", "expires_at", cred.ExpiresAt.Format(time.RFC3339))
	return nil
}

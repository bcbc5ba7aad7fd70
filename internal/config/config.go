// Package config centralises configuration parsing for the connector.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/clawcobie-afk/strava-connector/internal/envfile"
)

const (
	KeyClientID     = "STRAVA_CLIENT_ID"
	KeyClientSecret = "STRAVA_CLIENT_SECRET"
	KeyAccessToken  = "STRAVA_ACCESS_TOKEN"
	KeyRefreshToken = "STRAVA_REFRESH_TOKEN"
	KeyVerifyToken  = "STRAVA_WEBHOOK_VERIFY_TOKEN"
)

// Config captures runtime configuration values for the connector.
type Config struct {
	ClientID           string
	ClientSecret       string
	AccessToken        string
	RefreshToken       string
	WebhookVerifyToken string
	APIBaseURL         string
	TokenURL           string
	RefreshInterval    time.Duration
	HTTPTimeout        time.Duration
	HTTPAddress        string
	DatabaseURL        string
	SentryDSN          string
	SentryEnvironment  string
	TemporalHostPort   string
	TemporalNamespace  string
}

// Load reads environment variables into Config, applying defaults for local use.
func Load() Config {
	return Config{
		ClientID:           getEnv(KeyClientID, ""),
		ClientSecret:       getEnv(KeyClientSecret, ""),
		AccessToken:        getEnv(KeyAccessToken, ""),
		RefreshToken:       getEnv(KeyRefreshToken, ""),
		WebhookVerifyToken: getEnv(KeyVerifyToken, ""),
		APIBaseURL:         getEnv("STRAVA_API_BASE_URL", "https://www.strava.com/api/v3"),
		TokenURL:           getEnv("STRAVA_TOKEN_URL", "https://www.strava.com/oauth/token"),
		RefreshInterval:    getDurationEnv("STRAVA_REFRESH_INTERVAL", 5*time.Hour),
		HTTPTimeout:        getDurationEnv("STRAVA_HTTP_TIMEOUT", 30*time.Second),
		HTTPAddress:        getEnv("HTTP_ADDRESS", ":8080"),
		DatabaseURL:        getEnv("DATABASE_URL", "strava.db"),
		SentryDSN:          getEnv("SENTRY_DSN", ""),
		SentryEnvironment:  getEnv("SENTRY_ENVIRONMENT", "development"),
		TemporalHostPort:   getEnv("TEMPORAL_HOST_PORT", "localhost:7233"),
		TemporalNamespace:  getEnv("TEMPORAL_NAMESPACE", "default"),
	}
}

// Validate reports every listed key whose value is empty.
func (c Config) Validate(required ...string) error {
	var missing []string
	for _, key := range required {
		if c.lookup(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c Config) lookup(key string) string {
	switch key {
	case KeyClientID:
		return c.ClientID
	case KeyClientSecret:
		return c.ClientSecret
	case KeyAccessToken:
		return c.AccessToken
	case KeyRefreshToken:
		return c.RefreshToken
	case KeyVerifyToken:
		return c.WebhookVerifyToken
	case "DATABASE_URL":
		return c.DatabaseURL
	}
	return os.Getenv(key)
}

// LoadDotEnv exports the assignments in path into the process environment.
// Variables that are already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	values, err := envfile.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	for key, value := range values {
		if _, ok := os.LookupEnv(key); ok {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

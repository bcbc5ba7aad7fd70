// Package credential holds the process-wide Strava access credential.
package credential

import (
	"sync/atomic"
	"time"
)

// Credential is a short-lived bearer token plus the refresh secret that
// minted it. Values are immutable once published.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the credential is past its expiry at now.
// A zero ExpiresAt means the expiry is unknown and is treated as valid.
func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Store owns the current credential. Publish swaps a pointer to a fresh copy,
// so Current always observes a complete value from a single Publish.
type Store struct {
	current atomic.Pointer[Credential]
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Publish atomically replaces the current credential.
func (s *Store) Publish(c Credential) {
	s.current.Store(&c)
}

// Current returns the credential visible at call time and false when nothing
// has been published yet.
func (s *Store) Current() (Credential, bool) {
	c := s.current.Load()
	if c == nil {
		return Credential{}, false
	}
	return *c, true
}

// AccessToken is a shortcut for handlers that only need the bearer token.
func (s *Store) AccessToken() (string, bool) {
	c, ok := s.Current()
	if !ok || c.AccessToken == "" {
		return "", false
	}
	return c.AccessToken, true
}

// Package webhook receives Strava push subscription deliveries. Handler holds
// the protocol logic; Server adapts it to HTTP.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/clawcobie-afk/strava-connector/internal/activity"
	"github.com/clawcobie-afk/strava-connector/internal/strava"
)

// ErrInvalidEvent marks a delivery whose payload cannot be acted on.
var ErrInvalidEvent = errors.New("webhook: invalid event")

// Outcome is the result of handling one event.
type Outcome string

const (
	Saved   Outcome = "saved"
	Ignored Outcome = "ignored"
	Invalid Outcome = "invalid"
)

// Event is the push notification body. Only the object and aspect types are
// read before filtering; ObjectID is parsed leniently for create events since
// senders deliver it both as a number and as a string. The remaining fields
// are carried verbatim so an odd value there never rejects a delivery.
type Event struct {
	ObjectType     string          `json:"object_type"`
	AspectType     string          `json:"aspect_type"`
	ObjectID       json.RawMessage `json:"object_id"`
	OwnerID        json.RawMessage `json:"owner_id,omitempty"`
	SubscriptionID json.RawMessage `json:"subscription_id,omitempty"`
	EventTime      json.RawMessage `json:"event_time,omitempty"`
	Updates        json.RawMessage `json:"updates,omitempty"`
}

// ActivityID parses object_id, accepting a JSON number or a numeric string.
func (e Event) ActivityID() (int64, error) {
	raw := bytes.TrimSpace(e.ObjectID)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, fmt.Errorf("%w: object_id is missing", ErrInvalidEvent)
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("%w: object_id: %v", ErrInvalidEvent, err)
		}
		raw = []byte(s)
	}
	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: object_id %q is not an integer", ErrInvalidEvent, string(raw))
	}
	return id, nil
}

// ActivityFetcher loads the detailed representation of one activity.
type ActivityFetcher interface {
	GetActivity(ctx context.Context, accessToken string, id int64) (activity.Activity, error)
}

// TokenSource exposes the currently published access token.
type TokenSource interface {
	AccessToken() (string, bool)
}

type Handler struct {
	tokens  TokenSource
	fetcher ActivityFetcher
	store   activity.Repository
	logger  *slog.Logger
}

func NewHandler(tokens TokenSource, fetcher ActivityFetcher, store activity.Repository, logger *slog.Logger) *Handler {
	return &Handler{
		tokens:  tokens,
		fetcher: fetcher,
		store:   store,
		logger:  logger,
	}
}

// HandleVerification answers the subscription handshake. The challenge is
// echoed only when the presented token equals verifyToken; an empty
// verifyToken never matches.
func HandleVerification(query url.Values, verifyToken string) (map[string]string, bool) {
	challenge := query.Get("hub.challenge")
	if verifyToken == "" || challenge == "" || query.Get("hub.verify_token") != verifyToken {
		return nil, false
	}
	return map[string]string{"hub.challenge": challenge}, true
}

// HandleEvent stores newly created activities. Every other event kind is
// acknowledged without touching the remote API.
func (h *Handler) HandleEvent(ctx context.Context, event Event) (Outcome, error) {
	if event.ObjectType != "activity" || event.AspectType != "create" {
		return Ignored, nil
	}

	id, err := event.ActivityID()
	if err != nil {
		return Invalid, err
	}

	token, ok := h.tokens.AccessToken()
	if !ok {
		return "", fmt.Errorf("handle activity %d: no credential published: %w", id, strava.ErrAuth)
	}

	a, err := h.fetcher.GetActivity(ctx, token, id)
	if err != nil {
		return "", fmt.Errorf("handle activity %d: %w", id, err)
	}
	if err := h.store.Upsert(ctx, a); err != nil {
		return "", fmt.Errorf("handle activity %d: %w", id, err)
	}

	h.logger.InfoContext(ctx, "activity saved from webhook", "activity_id", a.ID, "name", a.Name)
	return Saved, nil
}

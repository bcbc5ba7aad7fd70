package sentry

import (
	"errors"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/require"
)

func TestInitWithoutDSNIsNoop(t *testing.T) {
	require.NoError(t, Init(Config{}, nil))
	CaptureException(errors.New("boom"), map[string]string{"component": "test"})
	CaptureException(nil, nil)
}

func TestScrubEventDropsCredentials(t *testing.T) {
	event := &sentry.Event{Request: &sentry.Request{Headers: map[string]string{
		"Authorization": "Bearer secret",
		"Cookie":        "session=1",
		"User-Agent":    "strava-webhook",
	}}}

	got := scrubEvent(event, nil)
	require.Equal(t, map[string]string{"User-Agent": "strava-webhook"}, got.Request.Headers)
}

func TestScrubEventWithoutRequest(t *testing.T) {
	event := &sentry.Event{Message: "no request"}
	require.Same(t, event, scrubEvent(event, nil))
}

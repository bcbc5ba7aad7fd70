package strava_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clawcobie-afk/strava-connector/internal/strava"
	"github.com/clawcobie-afk/strava-connector/internal/stravatest"
)

func newClient(api *stravatest.Server) *strava.Client {
	return strava.NewClient(strava.Config{
		BaseURL:  api.BaseURL(),
		TokenURL: api.TokenURL(),
		Timeout:  5 * time.Second,
	})
}

func TestExchangeRefreshToken(t *testing.T) {
	api := stravatest.NewServer("cid", "secret", "refresh-1")
	defer api.Close()
	api.SetNextAccessToken("fresh")

	before := time.Now()
	cred, err := newClient(api).ExchangeRefreshToken(context.Background(), "cid", "secret", "refresh-1")
	require.NoError(t, err)
	require.Equal(t, "fresh", cred.AccessToken)
	require.Equal(t, "refresh-1", cred.RefreshToken)
	require.WithinDuration(t, before.Add(stravatest.TokenLifetime), cred.ExpiresAt, 5*time.Second)
	require.Equal(t, 1, api.Exchanges())
}

func TestExchangeRefreshTokenRotates(t *testing.T) {
	api := stravatest.NewServer("cid", "secret", "refresh-1")
	defer api.Close()
	api.RotateRefreshTokens(true)

	cred, err := newClient(api).ExchangeRefreshToken(context.Background(), "cid", "secret", "refresh-1")
	require.NoError(t, err)
	require.NotEqual(t, "refresh-1", cred.RefreshToken)
	require.NotEmpty(t, cred.RefreshToken)
}

func TestExchangeRefreshTokenRevoked(t *testing.T) {
	api := stravatest.NewServer("cid", "secret", "refresh-1")
	defer api.Close()
	api.RevokeRefreshTokens()

	_, err := newClient(api).ExchangeRefreshToken(context.Background(), "cid", "secret", "refresh-1")
	require.Error(t, err)
	require.ErrorIs(t, err, strava.ErrAuth)
	require.NotErrorIs(t, err, strava.ErrRemote)

	var httpErr *strava.HTTPError
	require.True(t, errors.As(err, &httpErr))
	require.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
}

func TestExchangeRefreshTokenBadClient(t *testing.T) {
	api := stravatest.NewServer("cid", "secret", "refresh-1")
	defer api.Close()

	_, err := newClient(api).ExchangeRefreshToken(context.Background(), "cid", "wrong", "refresh-1")
	require.ErrorIs(t, err, strava.ErrAuth)
}

func TestListActivitiesPaginates(t *testing.T) {
	api := stravatest.NewServer("cid", "secret", "refresh")
	defer api.Close()
	api.GrantAccessToken("tok")
	base := time.Date(2026, 1, 1, 7, 0, 0, 0, time.UTC)
	for i := int64(1); i <= 5; i++ {
		api.AddActivity(i, "Run", base.Add(time.Duration(i)*time.Hour), map[string]any{"kudos_count": i})
	}
	client := newClient(api)

	first, err := client.ListActivities(context.Background(), "tok", strava.ListOptions{Page: 1, PerPage: 3})
	require.NoError(t, err)
	require.Len(t, first, 3)
	require.Equal(t, int64(1), first[0].ID)
	require.Contains(t, string(first[0].Raw), `"kudos_count":1`)

	second, err := client.ListActivities(context.Background(), "tok", strava.ListOptions{Page: 2, PerPage: 3})
	require.NoError(t, err)
	require.Len(t, second, 2)
	require.Equal(t, int64(5), second[1].ID)
}

func TestListActivitiesAfter(t *testing.T) {
	api := stravatest.NewServer("cid", "secret", "refresh")
	defer api.Close()
	api.GrantAccessToken("tok")
	api.AddActivity(1, "Old", time.Date(2025, 12, 31, 8, 0, 0, 0, time.UTC), nil)
	api.AddActivity(2, "New", time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC), nil)

	after := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got, err := newClient(api).ListActivities(context.Background(), "tok", strava.ListOptions{Page: 1, PerPage: 10, After: &after})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "New", got[0].Name)
}

func TestListActivitiesExpiredToken(t *testing.T) {
	api := stravatest.NewServer("cid", "secret", "refresh")
	defer api.Close()

	_, err := newClient(api).ListActivities(context.Background(), "stale", strava.ListOptions{Page: 1, PerPage: 10})
	require.ErrorIs(t, err, strava.ErrAuth)
}

func TestGetActivity(t *testing.T) {
	api := stravatest.NewServer("cid", "secret", "refresh")
	defer api.Close()
	api.GrantAccessToken("tok")
	api.AddActivity(42, "Run", time.Date(2026, 2, 1, 6, 30, 0, 0, time.UTC), map[string]any{"distance": 5000.0})

	a, err := newClient(api).GetActivity(context.Background(), "tok", 42)
	require.NoError(t, err)
	require.Equal(t, int64(42), a.ID)
	require.Equal(t, "Run", a.Name)
	require.Equal(t, 5000.0, a.Distance)
	require.Equal(t, "2026-02-01T06:30:00Z", a.StartDate)
}

func TestGetActivityNotFoundIsRemoteError(t *testing.T) {
	api := stravatest.NewServer("cid", "secret", "refresh")
	defer api.Close()
	api.GrantAccessToken("tok")

	_, err := newClient(api).GetActivity(context.Background(), "tok", 404)
	require.ErrorIs(t, err, strava.ErrRemote)
	require.NotErrorIs(t, err, strava.ErrAuth)
}

func TestServerErrorBodyIsKept(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := strava.NewClient(strava.Config{BaseURL: srv.URL})
	_, err := client.GetActivity(context.Background(), "tok", 1)
	var httpErr *strava.HTTPError
	require.True(t, errors.As(err, &httpErr))
	require.Equal(t, http.StatusTooManyRequests, httpErr.StatusCode)
	require.Contains(t, httpErr.Body, "rate limit exceeded")
	require.ErrorIs(t, err, strava.ErrRemote)
}

func TestTransportFailureIsRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := strava.NewClient(strava.Config{BaseURL: url, TokenURL: url + "/oauth/token", Timeout: time.Second})
	_, err := client.ListActivities(context.Background(), "tok", strava.ListOptions{Page: 1})
	require.ErrorIs(t, err, strava.ErrRemote)

	_, err = client.ExchangeRefreshToken(context.Background(), "cid", "secret", "refresh")
	require.ErrorIs(t, err, strava.ErrRemote)
}

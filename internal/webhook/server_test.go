package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clawcobie-afk/strava-connector/internal/activity"
	"github.com/clawcobie-afk/strava-connector/internal/credential"
	"github.com/clawcobie-afk/strava-connector/internal/logging"
	"github.com/clawcobie-afk/strava-connector/internal/refresher"
	"github.com/clawcobie-afk/strava-connector/internal/strava"
	"github.com/clawcobie-afk/strava-connector/internal/stravatest"
)

type fixture struct {
	api    *stravatest.Server
	tokens *credential.Store
	repo   activity.Repository
	router http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	api := stravatest.NewServer("cid", "secret", "rt")
	t.Cleanup(api.Close)

	client := strava.NewClient(strava.Config{BaseURL: api.BaseURL(), TokenURL: api.TokenURL(), Timeout: 5 * time.Second})
	tokens := credential.NewStore()
	repo := openStore(t)
	handler := NewHandler(tokens, client, repo, logging.Discard())
	return &fixture{
		api:    api,
		tokens: tokens,
		repo:   repo,
		router: NewServer(handler, repo, tokens, "verify-me", logging.Discard()).Router(),
	}
}

func (f *fixture) post(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestVerifyRoute(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.challenge=abc&hub.verify_token=verify-me", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, map[string]any{"hub.challenge": "abc"}, decodeBody(t, rec))

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook?hub.challenge=abc&hub.verify_token=nope", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRefreshThenCreateEventStoresActivity(t *testing.T) {
	f := newFixture(t)
	f.api.SetNextAccessToken("fresh")
	f.api.AddActivity(42, "Run", time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC), map[string]any{"distance": 5000.0})

	r := refresher.New(strava.NewClient(strava.Config{BaseURL: f.api.BaseURL(), TokenURL: f.api.TokenURL()}),
		f.tokens, refresher.Config{ClientID: "cid", ClientSecret: "secret", RefreshToken: "rt"}, logging.Discard())
	require.NoError(t, r.RefreshOnce(context.Background()))
	token, _ := f.tokens.AccessToken()
	require.Equal(t, "fresh", token)

	rec := f.post(t, `{"object_type":"activity","aspect_type":"create","object_id":42,"owner_id":1,"subscription_id":9,"event_time":1767250800}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "saved", decodeBody(t, rec)["status"])

	got, ok, err := f.repo.GetByID(context.Background(), 42)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Run", got.Name)
	require.Equal(t, 5000.0, got.Distance)

	// Redelivery is harmless.
	rec = f.post(t, `{"object_type":"activity","aspect_type":"create","object_id":"42"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	n, err := f.repo.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/activities/42", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Run", decodeBody(t, rec)["name"])
}

func TestEventRouteStatusMapping(t *testing.T) {
	f := newFixture(t)

	rec := f.post(t, `{"object_type":"activity","aspect_type":"update","object_id":42}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ignored", decodeBody(t, rec)["status"])
	require.Zero(t, f.api.DetailCalls())

	rec = f.post(t, `{"object_type":"activity","aspect_type":"create","object_id":"not-a-number"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid", decodeBody(t, rec)["status"])

	rec = f.post(t, `{not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Nothing published yet.
	rec = f.post(t, `{"object_type":"activity","aspect_type":"create","object_id":42}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	f.api.GrantAccessToken("tok")
	f.tokens.Publish(credential.Credential{AccessToken: "tok"})
	rec = f.post(t, `{"object_type":"activity","aspect_type":"create","object_id":404}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	f.api.ExpireAccessTokens()
	rec = f.post(t, `{"object_type":"activity","aspect_type":"create","object_id":404}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEventRouteIgnoresUpdatesOfAnyShape(t *testing.T) {
	f := newFixture(t)

	for _, body := range []string{
		`{"object_type":"activity","aspect_type":"update","object_id":42,"owner_id":1,"subscription_id":9,"event_time":1767250800,"updates":{"private":true}}`,
		`{"object_type":"activity","aspect_type":"update","object_id":42,"updates":{"title":"Lunch Ride","type":"Ride"}}`,
		`{"object_type":"athlete","aspect_type":"update","object_id":1,"owner_id":"1","updates":{"authorized":"false"}}`,
		`{"object_type":"activity","aspect_type":"delete","object_id":42,"event_time":"1767250800"}`,
	} {
		rec := f.post(t, body)
		require.Equal(t, http.StatusOK, rec.Code, body)
		require.Equal(t, "ignored", decodeBody(t, rec)["status"], body)
	}
	require.Zero(t, f.api.DetailCalls())
}

func TestHealthzReportsCredential(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, false, decodeBody(t, rec)["credential_published"])

	f.tokens.Publish(credential.Credential{AccessToken: "tok"})
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, true, decodeBody(t, rec)["credential_published"])
}

func TestGetActivityRoute(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/activities/7", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/activities/abc", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	f := newFixture(t)
	f.post(t, `{"object_type":"athlete","aspect_type":"update","object_id":1}`)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "strava_connector_webhook_events_total")
}

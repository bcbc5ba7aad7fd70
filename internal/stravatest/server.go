// Package stravatest runs an in-process imitation of the Strava API so the
// client, webhook and sync paths can be exercised end to end in tests.
package stravatest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// TokenLifetime mirrors Strava's six hour access token lifetime.
const TokenLifetime = 6 * time.Hour

// Server mimics the token endpoint and the activity read endpoints.
type Server struct {
	srv *httptest.Server

	mu            sync.Mutex
	clientID      string
	clientSecret  string
	refreshTokens map[string]struct{}
	accessTokens  map[string]struct{}
	rotate        bool
	nextAccess    string
	activities    map[int64]json.RawMessage
	order         []int64
	startDates    map[int64]time.Time
	exchanges     int
	listCalls     int
	detailCalls   int
}

// NewServer starts a fake API accepting the given client credentials and refresh token.
func NewServer(clientID, clientSecret, refreshToken string) *Server {
	s := &Server{
		clientID:      clientID,
		clientSecret:  clientSecret,
		refreshTokens: map[string]struct{}{refreshToken: {}},
		accessTokens:  make(map[string]struct{}),
		activities:    make(map[int64]json.RawMessage),
		startDates:    make(map[int64]time.Time),
	}
	s.srv = httptest.NewServer(s.Router())
	return s
}

// Close shuts the listener down.
func (s *Server) Close() {
	s.srv.Close()
}

// BaseURL is the API root to hand to strava.Config.
func (s *Server) BaseURL() string {
	return s.srv.URL + "/api/v3"
}

// TokenURL is the OAuth token endpoint.
func (s *Server) TokenURL() string {
	return s.srv.URL + "/oauth/token"
}

// Router wires the fake routes under a single chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/oauth/token", s.handleToken)
	r.Route("/api/v3", func(r chi.Router) {
		r.Use(s.requireBearer)
		r.Get("/athlete/activities", s.handleListActivities)
		r.Get("/activities/{activityID}", s.handleGetActivity)
	})
	return r
}

// SetNextAccessToken makes the next successful exchange mint this token.
func (s *Server) SetNextAccessToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAccess = token
}

// RotateRefreshTokens makes every exchange return a new refresh token and
// invalidate the one it consumed.
func (s *Server) RotateRefreshTokens(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotate = on
}

// RevokeRefreshTokens rejects every refresh token issued so far.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshTokens = make(map[string]struct{})
}

// AllowRefreshToken accepts an additional refresh token.
func (s *Server) AllowRefreshToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshTokens[token] = struct{}{}
}

// GrantAccessToken accepts a bearer token without an exchange.
func (s *Server) GrantAccessToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTokens[token] = struct{}{}
}

// ExpireAccessTokens invalidates every bearer token issued so far.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTokens = make(map[string]struct{})
}

// AddActivity seeds an activity document. Extra fields are merged over the
// generated defaults so tests can shape the payload.
func (s *Server) AddActivity(id int64, name string, startDate time.Time, extra map[string]any) {
	doc := map[string]any{
		"id":                   id,
		"name":                 name,
		"type":                 "Run",
		"sport_type":           "Run",
		"distance":             5000.0,
		"moving_time":          1500,
		"elapsed_time":         1560,
		"total_elevation_gain": 12.5,
		"start_date":           startDate.UTC().Format(time.RFC3339),
		"start_date_local":     startDate.Format(time.RFC3339),
		"timezone":             "(GMT+00:00) Europe/London",
	}
	for k, v := range extra {
		doc[k] = v
	}
	raw, _ := json.Marshal(doc)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.activities[id]; !exists {
		s.order = append(s.order, id)
	}
	s.activities[id] = raw
	s.startDates[id] = startDate.UTC()
}

// Exchanges reports how many token exchanges succeeded or failed.
func (s *Server) Exchanges() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exchanges
}

// ListCalls reports how many activity list pages were served.
func (s *Server) ListCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

// DetailCalls reports how many activity detail requests were served.
func (s *Server) DetailCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detailCalls
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form: %v", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exchanges++

	if r.PostForm.Get("grant_type") != "refresh_token" {
		writeError(w, http.StatusBadRequest, "unsupported grant_type")
		return
	}
	if r.PostForm.Get("client_id") != s.clientID || r.PostForm.Get("client_secret") != s.clientSecret {
		writeError(w, http.StatusUnauthorized, "invalid client")
		return
	}
	refresh := r.PostForm.Get("refresh_token")
	if _, ok := s.refreshTokens[refresh]; !ok {
		writeError(w, http.StatusBadRequest, "invalid refresh_token")
		return
	}

	access := s.nextAccess
	s.nextAccess = ""
	if access == "" {
		access = uuid.NewString()
	}
	s.accessTokens[access] = struct{}{}
	if s.rotate {
		delete(s.refreshTokens, refresh)
		refresh = uuid.NewString()
		s.refreshTokens[refresh] = struct{}{}
	}
	expiresAt := time.Now().Add(TokenLifetime)
	writeJSON(w, http.StatusOK, map[string]any{
		"token_type":    "Bearer",
		"access_token":  access,
		"refresh_token": refresh,
		"expires_at":    expiresAt.Unix(),
		"expires_in":    int(TokenLifetime.Seconds()),
	})
}

func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		_, ok := s.accessTokens[token]
		s.mu.Unlock()
		if token == "" || !ok {
			writeError(w, http.StatusUnauthorized, "Authorization Error")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// maxPerPage is the largest page the real API serves, whatever is requested.
const maxPerPage = 200

func (s *Server) handleListActivities(w http.ResponseWriter, r *http.Request) {
	page := parseIntDefault(r.URL.Query().Get("page"), 1)
	perPage := parseIntDefault(r.URL.Query().Get("per_page"), 30)
	if page < 1 || perPage < 1 {
		writeError(w, http.StatusBadRequest, "page and per_page must be positive")
		return
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	var after time.Time
	if raw := r.URL.Query().Get("after"); raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "after must be an epoch timestamp")
			return
		}
		after = time.Unix(ts, 0).UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++

	ids := make([]int64, 0, len(s.order))
	for _, id := range s.order {
		if !after.IsZero() && !s.startDates[id].After(after) {
			continue
		}
		ids = append(ids, id)
	}
	sort.SliceStable(ids, func(i, j int) bool {
		return s.startDates[ids[i]].Before(s.startDates[ids[j]])
	})

	start := (page - 1) * perPage
	out := make([]json.RawMessage, 0, perPage)
	for i := start; i < len(ids) && i < start+perPage; i++ {
		out = append(out, s.activities[ids[i]])
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetActivity(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "activityID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid activity id")
		return
	}
	s.mu.Lock()
	s.detailCalls++
	raw, ok := s.activities[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Record Not Found")
		return
	}
	writeJSON(w, http.StatusOK, raw)
}

func parseIntDefault(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]any{
		"message": strings.TrimSpace(fmt.Sprintf(format, args...)),
		"errors":  []any{},
	})
}

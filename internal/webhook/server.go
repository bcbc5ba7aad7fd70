package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clawcobie-afk/strava-connector/internal/activity"
	"github.com/clawcobie-afk/strava-connector/internal/sentry"
	"github.com/clawcobie-afk/strava-connector/internal/strava"
)

const maxEventBodySize = 1 << 20

// Server exposes the subscription callback plus a few operational routes.
type Server struct {
	handler     *Handler
	store       activity.Repository
	tokens      TokenSource
	verifyToken string
	logger      *slog.Logger
}

func NewServer(handler *Handler, store activity.Repository, tokens TokenSource, verifyToken string, logger *slog.Logger) *Server {
	return &Server{
		handler:     handler,
		store:       store,
		tokens:      tokens,
		verifyToken: verifyToken,
		logger:      logger.With("component", "webhook"),
	}
}

// Router configures all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/webhook", s.handleVerify)
	r.Post("/webhook", s.handleEvent)

	// Read-only lookup, handy when checking what a delivery stored.
	r.Get("/activities/{activityID}", s.handleGetActivity)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_, published := s.tokens.AccessToken()
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                   true,
		"credential_published": published,
	})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	body, ok := HandleVerification(r.URL.Query(), s.verifyToken)
	if !ok {
		verificationsCounter.WithLabelValues("rejected").Inc()
		s.logger.Warn("webhook verification rejected")
		writeError(w, http.StatusForbidden, "verification failed")
		return
	}
	verificationsCounter.WithLabelValues("accepted").Inc()
	s.logger.Info("webhook verification accepted")
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	deliveryID := uuid.NewString()
	logger := s.logger.With("delivery_id", deliveryID)

	var event Event
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBodySize)).Decode(&event); err != nil {
		eventsCounter.WithLabelValues(string(Invalid)).Inc()
		logger.Warn("webhook payload rejected", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"status": string(Invalid),
			"error":  fmt.Sprintf("invalid json: %v", err),
		})
		return
	}
	logger = logger.With("object_type", event.ObjectType, "aspect_type", event.AspectType, "owner_id", string(event.OwnerID))

	outcome, err := s.handler.HandleEvent(r.Context(), event)
	switch {
	case err == nil:
		eventsCounter.WithLabelValues(string(outcome)).Inc()
		logger.Info("webhook event handled", "outcome", string(outcome))
		writeJSON(w, http.StatusOK, map[string]any{"status": string(outcome)})
	case errors.Is(err, ErrInvalidEvent):
		eventsCounter.WithLabelValues(string(Invalid)).Inc()
		logger.Warn("webhook event invalid", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"status": string(Invalid),
			"error":  err.Error(),
		})
	default:
		eventsCounter.WithLabelValues("error").Inc()
		status := statusForError(err)
		logger.Error("webhook event failed", "error", err, "status", status)
		sentry.CaptureException(err, map[string]string{"component": "webhook", "delivery_id": deliveryID})
		writeJSON(w, status, map[string]any{
			"status": "error",
			"error":  err.Error(),
		})
	}
}

// statusForError maps the failure taxonomy onto HTTP. A missing or rejected
// credential is reported as 503 so the sender retries after a refresh.
func statusForError(err error) int {
	var storeErr *activity.StoreError
	switch {
	case errors.As(err, &storeErr):
		return http.StatusInternalServerError
	case errors.Is(err, strava.ErrAuth):
		return http.StatusServiceUnavailable
	case errors.Is(err, strava.ErrRemote):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleGetActivity(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "activityID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid activity id")
		return
	}
	a, ok, err := s.store.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load activity: %v", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "activity %d not found", id)
		return
	}
	raw, err := a.RawJSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode activity: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, json.RawMessage(raw))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": strings.TrimSpace(fmt.Sprintf(format, args...)),
			"status":  status,
		},
	})
}

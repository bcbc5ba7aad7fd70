package strava

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	// ErrAuth matches failures caused by an invalid, expired or revoked credential.
	ErrAuth = errors.New("strava: authorization failed")
	// ErrRemote matches any other failure talking to the Strava API.
	ErrRemote = errors.New("strava: remote request failed")
)

// maxErrorBodySize caps how much of an error response body is kept.
const maxErrorBodySize = 500

// HTTPError is a non-2xx response from Strava. It matches ErrAuth or
// ErrRemote through errors.Is.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
	URL        string
	auth       bool
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("strava %s (status %d): %s", e.Status, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("strava %s (status %d)", e.Status, e.StatusCode)
}

// Is lets callers classify the failure with errors.Is(err, ErrAuth).
func (e *HTTPError) Is(target error) bool {
	switch target {
	case ErrAuth:
		return e.auth
	case ErrRemote:
		return !e.auth
	}
	return false
}

func newHTTPError(statusCode int, body []byte, url string, auth bool) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Status:     http.StatusText(statusCode),
		Body:       truncate(string(body), maxErrorBodySize),
		URL:        url,
		auth:       auth,
	}
}

// checkResponse returns nil for 2xx responses. The body is consumed otherwise.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize+1))
	return newHTTPError(resp.StatusCode, body, resp.Request.URL.String(), resp.StatusCode == http.StatusUnauthorized)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

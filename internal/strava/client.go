// Package strava is a thin client for the parts of the Strava API the
// connector uses: refresh-token exchange, activity listing and detail.
package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/clawcobie-afk/strava-connector/internal/activity"
	"github.com/clawcobie-afk/strava-connector/internal/credential"
)

const (
	DefaultBaseURL  = "https://www.strava.com/api/v3"
	DefaultTokenURL = "https://www.strava.com/oauth/token"
	DefaultTimeout  = 30 * time.Second
)

// Config tunes the client. Zero values fall back to the public Strava endpoints.
type Config struct {
	BaseURL    string
	TokenURL   string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client captures the HTTP calls the connector issues toward Strava. It keeps
// no state between calls beyond the shared http.Client.
type Client struct {
	baseURL    string
	tokenURL   string
	httpClient *http.Client
}

// NewClient configures a client with sane defaults.
func NewClient(cfg Config) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		tokenURL:   cfg.TokenURL,
		httpClient: cfg.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.tokenURL == "" {
		c.tokenURL = DefaultTokenURL
	}
	if c.httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		c.httpClient = &http.Client{Timeout: timeout}
	}
	return c
}

// ListOptions are the caller-driven pagination parameters for ListActivities.
type ListOptions struct {
	Page    int
	PerPage int
	After   *time.Time
}

// ExchangeRefreshToken mints a new access credential. Any non-2xx answer from
// the token endpoint is reported as ErrAuth; nothing is retried here.
func (c *Client) ExchangeRefreshToken(ctx context.Context, clientID, clientSecret, refreshToken string) (credential.Credential, error) {
	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return credential.Credential{}, newHTTPError(retrieveErr.Response.StatusCode, retrieveErr.Body, c.tokenURL, true)
		}
		return credential.Credential{}, fmt.Errorf("exchange refresh token: %w: %w", ErrRemote, err)
	}

	cred := credential.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if ts, ok := unixExtra(tok.Extra("expires_at")); ok {
		cred.ExpiresAt = time.Unix(ts, 0).UTC()
	}
	return cred, nil
}

// ListActivities fetches one page of the authenticated athlete's activities.
func (c *Client) ListActivities(ctx context.Context, accessToken string, opts ListOptions) ([]activity.Activity, error) {
	query := make(url.Values)
	if opts.Page > 0 {
		query.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PerPage > 0 {
		query.Set("per_page", strconv.Itoa(opts.PerPage))
	}
	if opts.After != nil {
		query.Set("after", strconv.FormatInt(opts.After.Unix(), 10))
	}
	endpoint := c.baseURL + "/athlete/activities"
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var page []json.RawMessage
	if err := c.getJSON(ctx, accessToken, endpoint, &page); err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	out := make([]activity.Activity, 0, len(page))
	for _, raw := range page {
		a, err := activity.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("list activities: %w: %w", ErrRemote, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// GetActivity fetches the detailed representation of one activity.
func (c *Client) GetActivity(ctx context.Context, accessToken string, id int64) (activity.Activity, error) {
	endpoint := fmt.Sprintf("%s/activities/%d", c.baseURL, id)
	var raw json.RawMessage
	if err := c.getJSON(ctx, accessToken, endpoint, &raw); err != nil {
		return activity.Activity{}, fmt.Errorf("get activity %d: %w", id, err)
	}
	a, err := activity.Decode(raw)
	if err != nil {
		return activity.Activity{}, fmt.Errorf("get activity %d: %w: %w", id, ErrRemote, err)
	}
	return a, nil
}

func (c *Client) getJSON(ctx context.Context, accessToken, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRemote, err)
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrRemote, err)
	}
	return nil
}

func unixExtra(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), t > 0
	case int64:
		return t, t > 0
	case json.Number:
		n, err := t.Int64()
		return n, err == nil && n > 0
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		return n, err == nil && n > 0
	}
	return 0, false
}

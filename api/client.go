// Package api implements the authenticated request executor for the Evolve
// backend: it attaches bearer credentials, detects authorization failures and
// drives the refresh-then-retry-once protocol through the session layer.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	defaultRequestTimeout = 30 * time.Second
	headerRequestID       = "X-Request-ID"
)

// SessionHandler is the session-side contract the executor needs: reading the
// current access token, driving a refresh, and being told when authorization
// has definitively failed. The session manager implements it; declaring it
// here keeps the dependency one-directional.
type SessionHandler interface {
	// AccessToken returns the current access token, or "" when none is held.
	AccessToken() string

	// RefreshAccessToken performs (or joins) a token refresh and reports
	// whether it succeeded.
	RefreshAccessToken(ctx context.Context) bool

	// HandleSessionExpired is invoked after a definitive authorization
	// failure. Implementations must make it safe to call repeatedly.
	HandleSessionExpired()
}

// Client executes requests against the Evolve backend.
type Client struct {
	rest    *resty.Client
	session SessionHandler

	timeout    time.Duration
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithHTTPClient swaps the underlying http.Client (primarily for tests).
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// New creates a Client for the given base URL. Transport-level retries stay
// disabled: every attempt sends exactly once, and recovery from 401s is the
// session layer's job.
func New(baseURL string, options ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.Wrap(ErrInvalidURL, "base URL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, errors.Wrap(ErrInvalidURL, baseURL)
	}

	client := &Client{timeout: defaultRequestTimeout}
	for _, opt := range options {
		opt(client)
	}

	if client.httpClient != nil {
		client.rest = resty.NewWithClient(client.httpClient)
	} else {
		client.rest = resty.New()
	}
	client.rest.
		SetBaseURL(baseURL).
		SetTimeout(client.timeout).
		SetHeader("Content-Type", "application/json")

	return client, nil
}

// SetSessionHandler wires the session layer in. Must be called before any
// request with requiresAuth is executed.
func (c *Client) SetSessionHandler(handler SessionHandler) {
	c.session = handler
}

// Execute sends a request and returns the response payload and status code.
//
// When requiresAuth is set, the current access token is attached as a bearer
// credential. A 401 triggers one refresh-then-retry cycle; a 401 on the retry
// is terminal: the session is flagged expired and ErrSessionExpired is
// returned. Any other non-2xx status comes back as a *ServerError without
// touching session state.
func (c *Client) Execute(ctx context.Context, method, endpoint string, body any, requiresAuth bool) ([]byte, int, error) {
	if requiresAuth && c.session == nil {
		return nil, 0, errors.Wrap(ErrCustom, "[Client.Execute] no session handler configured")
	}

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, errors.Wrap(ErrEncoding, err.Error())
		}
		payload = data
	}

	// A restored session may hold only a refresh token. Without this the
	// first authenticated call after launch is guaranteed to 401, so refresh
	// up front instead. The outcome is deliberately ignored: if it failed,
	// the normal 401 path below settles the matter.
	if requiresAuth && c.session.AccessToken() == "" {
		c.session.RefreshAccessToken(ctx)
	}

	return c.attempt(ctx, method, endpoint, payload, requiresAuth, false)
}

func (c *Client) attempt(ctx context.Context, method, endpoint string, payload []byte, requiresAuth, isRetry bool) ([]byte, int, error) {
	req := c.rest.R().
		SetContext(ctx).
		SetHeader(headerRequestID, uuid.New().String())

	if payload != nil {
		req.SetBody(payload)
	}
	if requiresAuth {
		if token := c.session.AccessToken(); token != "" {
			req.SetAuthToken(token)
		}
	}

	resp, err := req.Execute(strings.ToUpper(method), endpoint)
	if err != nil {
		log.Debug().Err(err).Str("method", method).Str("endpoint", endpoint).Msg("request transport failure")
		return nil, 0, errors.Wrap(ErrRequestFailed, err.Error())
	}
	if resp.RawResponse == nil {
		return nil, 0, errors.Wrap(ErrInvalidResponse, endpoint)
	}

	status := resp.StatusCode()
	switch {
	case status >= http.StatusOK && status < http.StatusMultipleChoices:
		return resp.Body(), status, nil

	case status == http.StatusUnauthorized && requiresAuth && !isRetry:
		if c.session.RefreshAccessToken(ctx) {
			return c.attempt(ctx, method, endpoint, payload, requiresAuth, true)
		}
		// The token could not be refreshed, so the 401 stands.
		c.session.HandleSessionExpired()
		return nil, status, ErrSessionExpired

	case status == http.StatusUnauthorized && requiresAuth:
		c.session.HandleSessionExpired()
		return nil, status, ErrSessionExpired

	case status == http.StatusUnauthorized:
		return nil, status, ErrUnauthorized

	default:
		return nil, status, &ServerError{Code: status, Body: string(resp.Body())}
	}
}

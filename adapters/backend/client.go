// Package backend is the HTTP client for the stindem backend REST surface.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/layer-3/stindem/core"
	"github.com/layer-3/stindem/ports"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	csrfHeader     = "X-CSRF-Token"
	refreshLeeway  = 30 * time.Second
	maxErrorBody   = 4 << 10
	defaultTimeout = 30 * time.Second
)

// StatusError is a non-2xx backend response
type StatusError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Message)
}

// Client talks to the backend. Bearer tokens live only in memory.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *zap.Logger
	now    func() time.Time

	mu            sync.Mutex
	accessToken   string
	refreshToken  string
	accessExpires time.Time
}

var (
	_ ports.AuthAPI       = (*Client)(nil)
	_ ports.SettlementAPI = (*Client)(nil)
)

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its cookie jar must be set for CSRF to work.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the client logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the backend at baseURL
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	c := &Client{
		base: base,
		http: &http.Client{
			Jar:       jar,
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type tokenResponse struct {
	AccessToken  string                  `json:"access_token"`
	RefreshToken string                  `json:"refresh_token"`
	ExpiresIn    int                     `json:"expires_in"`
	User         *core.AuthenticatedUser `json:"user"`
}

func (c *Client) setTokens(t tokenResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = t.AccessToken
	if t.RefreshToken != "" {
		c.refreshToken = t.RefreshToken
	}
	c.accessExpires = c.now().Add(time.Duration(t.ExpiresIn) * time.Second)
}

func (c *Client) clearTokens() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken, c.refreshToken = "", ""
	c.accessExpires = time.Time{}
}

// Authenticated reports whether a bearer token is held
func (c *Client) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken != ""
}

func (c *Client) csrfToken(ctx context.Context) (string, error) {
	var body struct {
		CSRFToken string `json:"csrfToken"`
	}
	if err := c.send(ctx, http.MethodGet, "/csrf-token", nil, &body, false); err != nil {
		return "", fmt.Errorf("fetch csrf token: %w", err)
	}
	if body.CSRFToken == "" {
		return "", errors.New("backend returned an empty csrf token")
	}
	return body.CSRFToken, nil
}

// bearer returns a usable access token, refreshing it when it is about to expire
func (c *Client) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	access, refresh, expires := c.accessToken, c.refreshToken, c.accessExpires
	c.mu.Unlock()

	if access == "" {
		return "", core.ErrNotAuthenticated
	}
	if refresh == "" || c.now().Add(refreshLeeway).Before(expires) {
		return access, nil
	}

	var resp tokenResponse
	if err := c.send(ctx, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": refresh}, &resp, false); err != nil {
		c.logger.Warn("session refresh failed", zap.Error(err))
		var se *StatusError
		if errors.As(err, &se) && se.Status == http.StatusUnauthorized {
			c.clearTokens()
			return "", core.ErrNotAuthenticated
		}
		return "", err
	}
	c.setTokens(resp)
	return resp.AccessToken, nil
}

func (c *Client) send(ctx context.Context, method, path string, in, out interface{}, auth bool) error {
	var bearer string
	if auth {
		token, err := c.bearer(ctx)
		if err != nil {
			return err
		}
		bearer = token
	}
	return c.sendWith(ctx, method, path, in, out, bearer, method != http.MethodGet)
}

// sendWith performs one request. Mutating requests fetch a fresh CSRF token first.
func (c *Client) sendWith(ctx context.Context, method, path string, in, out interface{}, bearer string, mutating bool) error {
	var csrf string
	if mutating {
		token, err := c.csrfToken(ctx)
		if err != nil {
			return err
		}
		csrf = token
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if csrf != "" {
		req.Header.Set(csrfHeader, csrf)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &StatusError{Method: method, Path: path, Status: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// Package client is the authenticated REST client for the expense backend.
// It attaches the persisted access token to every call and, when the backend
// answers 401, refreshes the token once (coalescing concurrent refreshes) and
// reissues the call a single time.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/ArionMiles/spendsync/pkg/api"
	"github.com/ArionMiles/spendsync/pkg/storage"
)

// DefaultBaseURL is the API root used when none is configured.
const DefaultBaseURL = "http://localhost:8001/api"

// requestIDHeader carries a per-request correlation id.
const requestIDHeader = "X-Request-ID"

// AuthFailureFunc is invoked once per refresh that fails for lack of a usable
// refresh token. Front ends use it to send the user back to sign-in.
type AuthFailureFunc func(err error)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithAuthFailureHandler sets the hard-authentication-failure callback.
func WithAuthFailureHandler(fn AuthFailureFunc) Option {
	return func(c *Client) { c.onAuthFailure = fn }
}

// Client talks to the expense REST API.
type Client struct {
	baseURL       string
	http          *http.Client
	tokens        storage.Storage
	refresher     *Refresher
	onAuthFailure AuthFailureFunc
	logger        *slog.Logger
}

// New creates a client for the API rooted at baseURL. Tokens are read from
// (and a refreshed access token written to) tokens.
func New(baseURL string, tokens storage.Storage, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		tokens:  tokens,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.refresher = NewRefresher(c.refreshAccessToken)

	return c
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.baseURL }

// Refresher exposes the token refresh coordinator.
func (c *Client) Refresher() *Refresher { return c.refresher }

// Login exchanges credentials for a token pair and the user profile.
func (c *Client) Login(ctx context.Context, username, password string) (api.AuthResponse, error) {
	var out api.AuthResponse
	in := map[string]string{"username": username, "password": password}
	if err := c.call(ctx, http.MethodPost, "/auth/token/", in, &out, false); err != nil {
		return api.AuthResponse{}, err
	}
	return out, nil
}

// Register creates an account and returns its token pair and profile.
func (c *Client) Register(ctx context.Context, username, email, password string) (api.AuthResponse, error) {
	var out api.AuthResponse
	in := map[string]string{"username": username, "email": email, "password": password}
	if err := c.call(ctx, http.MethodPost, "/auth/register/", in, &out, false); err != nil {
		return api.AuthResponse{}, err
	}
	return out, nil
}

// VerifyToken asks the backend whether the persisted access token is valid.
func (c *Client) VerifyToken(ctx context.Context) (bool, error) {
	var out struct {
		Valid bool `json:"valid"`
	}
	if err := c.call(ctx, http.MethodPost, "/auth/verify-token/", nil, &out, true); err != nil {
		return false, err
	}
	return out.Valid, nil
}

// ListExpenses fetches the full collection. Both a bare list and a
// paginated {"results": [...]} envelope are accepted.
func (c *Client) ListExpenses(ctx context.Context) ([]api.Expense, error) {
	var raw json.RawMessage
	if err := c.call(ctx, http.MethodGet, "/expenses/", nil, &raw, true); err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var expenses []api.Expense
		if err := json.Unmarshal(trimmed, &expenses); err != nil {
			return nil, fmt.Errorf("decoding expense list: %w", err)
		}
		return expenses, nil
	}

	var page struct {
		Results []api.Expense `json:"results"`
	}
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil, fmt.Errorf("decoding expense page: %w", err)
	}
	return page.Results, nil
}

// CreateExpense stores a new expense and returns it with its server-assigned fields.
func (c *Client) CreateExpense(ctx context.Context, draft api.ExpenseDraft) (api.Expense, error) {
	var out api.Expense
	if err := c.call(ctx, http.MethodPost, "/expenses/", draft, &out, true); err != nil {
		return api.Expense{}, err
	}
	return out, nil
}

// UpdateExpense replaces the expense identified by e.ID.
func (c *Client) UpdateExpense(ctx context.Context, e api.Expense) (api.Expense, error) {
	var out api.Expense
	if err := c.call(ctx, http.MethodPut, expensePath(e.ID), e.Draft(), &out, true); err != nil {
		return api.Expense{}, err
	}
	return out, nil
}

// DeleteExpense removes the expense with the given id.
func (c *Client) DeleteExpense(ctx context.Context, id api.ID) error {
	return c.call(ctx, http.MethodDelete, expensePath(id), nil, nil, true)
}

// ExpenseSummary fetches server-computed totals for the timeframe.
func (c *Client) ExpenseSummary(ctx context.Context, tf api.Timeframe) (api.Summary, error) {
	var out api.Summary
	path := "/expenses/summary/?" + url.Values{"timeframe": {string(tf)}}.Encode()
	if err := c.call(ctx, http.MethodGet, path, nil, &out, true); err != nil {
		return api.Summary{}, err
	}
	return out, nil
}

func expensePath(id api.ID) string {
	return "/expenses/" + url.PathEscape(id.String()) + "/"
}

// call performs one API request. Authenticated calls that come back 401 are
// retried exactly once with a refreshed token.
func (c *Client) call(ctx context.Context, method, path string, in, out any, authenticated bool) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
	}

	var token string
	if authenticated {
		token, _ = c.tokens.Get(storage.AccessTokenKey)
	}

	resp, err := c.send(ctx, method, path, payload, token)
	if err != nil {
		return err
	}

	if authenticated && resp.StatusCode == http.StatusUnauthorized {
		discard(resp)
		c.logger.Debug("access token rejected, refreshing", "method", method, "path", path)

		token, err = c.refresher.Do(ctx)
		if err != nil {
			return err
		}
		resp, err = c.send(ctx, method, path, payload, token)
		if err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	return decode(resp, out)
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(req)
	}
	requestID := uuid.NewString()
	req.Header.Set(requestIDHeader, requestID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("request failed",
			"method", method,
			"path", path,
			"request_id", requestID,
			"error", err,
		)
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	c.logger.Debug("request completed",
		"method", method,
		"path", path,
		"request_id", requestID,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)
	return resp, nil
}

func decode(resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newHTTPError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
}

// refreshAccessToken is the Refresher's exchange: it trades the persisted
// refresh token for a new access token and persists the result.
func (c *Client) refreshAccessToken(ctx context.Context) (string, error) {
	refresh, ok := c.tokens.Get(storage.RefreshTokenKey)
	if !ok || refresh == "" {
		return "", c.authFailed(ErrNoRefreshToken)
	}

	var out struct {
		Access string `json:"access"`
	}
	in := map[string]string{"refresh": refresh}
	if err := c.call(ctx, http.MethodPost, "/auth/token/refresh/", in, &out, false); err != nil {
		if code := StatusCode(err); code >= 400 && code < 500 {
			return "", c.authFailed(err)
		}
		return "", fmt.Errorf("refreshing access token: %w", err)
	}
	if out.Access == "" {
		return "", errors.New("refreshing access token: response carried no access token")
	}

	if err := c.tokens.Set(storage.AccessTokenKey, out.Access); err != nil {
		return "", fmt.Errorf("persisting access token: %w", err)
	}
	c.logger.Info("access token refreshed")
	return out.Access, nil
}

func (c *Client) authFailed(cause error) error {
	err := fmt.Errorf("%w: %w", ErrAuthRequired, cause)
	c.logger.Warn("session cannot be refreshed", "error", cause)
	if c.onAuthFailure != nil {
		c.onAuthFailure(err)
	}
	return err
}

// Package authapi is the HTTP boundary to the hosted auth provider. It
// exchanges credentials and refresh tokens for sessions and knows nothing
// about retries or persistence; that is the session package's job.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/zkardes/chrono-meister-sub000/internal/apierr"
	"github.com/zkardes/chrono-meister-sub000/internal/session"
)

const defaultTimeout = 30 * time.Second

// Client calls the auth provider's REST endpoints.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  zerolog.Logger
}

var _ session.Provider = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.http = httpClient }
}

// WithLogger sets the client logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for the auth provider at baseURL. The API key is
// the project's public key, sent on every request; user identity comes
// from the bearer token.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// tokenResponse is the provider's session payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// errorResponse covers the error shapes the provider emits.
type errorResponse struct {
	Code             string `json:"error_code"`
	Message          string `json:"msg"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// SignIn exchanges credentials for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*session.Session, error) {
	body := map[string]string{"email": email, "password": password}

	var resp tokenResponse
	if err := c.post(ctx, "/auth/v1/token?grant_type=password", "auth.sign_in", "", body, &resp); err != nil {
		return nil, err
	}

	c.logger.Debug().Str("email", email).Msg("signed in with password")

	return c.toSession(resp)
}

// Refresh rotates the token pair and extends the expiry.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*session.Session, error) {
	body := map[string]string{"refresh_token": refreshToken}

	var resp tokenResponse
	if err := c.post(ctx, "/auth/v1/token?grant_type=refresh_token", "auth.refresh", "", body, &resp); err != nil {
		return nil, err
	}

	c.logger.Debug().Msg("refreshed session tokens")

	return c.toSession(resp)
}

// SignOut invalidates the session server-side.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.post(ctx, "/auth/v1/logout", "auth.sign_out", accessToken, nil, nil)
}

// User is the account behind an access token as the provider reports it.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// User fetches the account for an access token.
func (c *Client) User(ctx context.Context, accessToken string) (*User, error) {
	var user User
	if err := c.request(ctx, http.MethodGet, "/auth/v1/user", "auth.user", accessToken, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// toSession converts the wire payload to a session, preferring the
// payload's absolute expiry, then its relative one, then the access
// token's own exp claim.
func (c *Client) toSession(resp tokenResponse) (*session.Session, error) {
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		return nil, fmt.Errorf("auth provider returned an incomplete session")
	}

	now := time.Now()
	var expiresAt time.Time
	switch {
	case resp.ExpiresAt > 0:
		expiresAt = time.Unix(resp.ExpiresAt, 0)
	case resp.ExpiresIn > 0:
		expiresAt = now.Add(time.Duration(resp.ExpiresIn) * time.Second)
	default:
		var err error
		expiresAt, err = session.ExpiryFromAccessToken(resp.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("auth provider returned a session without expiry: %w", err)
		}
	}

	return &session.Session{
		UserID:       resp.User.ID,
		Email:        resp.User.Email,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		IssuedAt:     now,
		ExpiresAt:    expiresAt,
	}, nil
}

func (c *Client) post(ctx context.Context, path, op, bearer string, body, out any) error {
	return c.request(ctx, http.MethodPost, path, op, bearer, body, out)
}

func (c *Client) request(ctx context.Context, method, path, op, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s: failed to read response: %w", op, err)
	}

	if resp.StatusCode >= 400 {
		return decodeError(op, resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}

	return nil
}

// decodeError turns an auth error body into a BackendError so the
// classifier sees one shape for the whole backend.
func decodeError(op string, status int, data []byte) error {
	var parsed errorResponse
	_ = json.Unmarshal(data, &parsed)

	message := parsed.Message
	if message == "" {
		message = parsed.ErrorDescription
	}
	if message == "" {
		message = parsed.Error
	}
	if message == "" {
		message = http.StatusText(status)
	}

	return &apierr.BackendError{
		Op:      op,
		Status:  status,
		Code:    parsed.Code,
		Message: message,
	}
}

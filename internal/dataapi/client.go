// Package dataapi is a thin client for the REST data backend. Every
// table the application touches goes through here; errors come back as
// apierr.BackendError so the classifier has one shape to work with.
package dataapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
	"github.com/rs/zerolog"

	"github.com/zkardes/chrono-meister-sub000/internal/apierr"
	"github.com/zkardes/chrono-meister-sub000/internal/logger"
)

const (
	restPrefix     = "/rest/v1/"
	defaultTimeout = 30 * time.Second
)

// TokenProvider supplies the bearer token for each request. The session
// manager satisfies this; requests made while signed out go out with the
// API key only and the backend rejects them.
type TokenProvider interface {
	AccessToken() string
}

// Client issues requests against the data backend.
type Client struct {
	baseURL string
	apiKey  string
	tokens  TokenProvider
	http    *http.Client
	reads   *http.Client
	logger  zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for writes.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.http = httpClient }
}

// WithLogger sets the client logger and enables request logging.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.logger = log }
}

// WithReadCaching routes GET requests through an HTTP cache honoring
// the backend's cache headers. Writes always bypass it. A non-empty
// cacheDir persists cached responses across restarts; empty keeps the
// cache in memory.
func WithReadCaching(cacheDir string) Option {
	return func(c *Client) {
		var cache httpcache.Cache = httpcache.NewMemoryCache()
		if cacheDir != "" {
			cache = diskcache.New(cacheDir)
		}
		c.reads = &http.Client{
			Timeout:   defaultTimeout,
			Transport: httpcache.NewTransport(cache),
		}
	}
}

// New creates a data API client rooted at baseURL.
func New(baseURL, apiKey string, tokens TokenProvider, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		tokens:  tokens,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger.GetLevel() <= zerolog.DebugLevel {
		c.http.Transport = logger.NewHTTPRequests(c.logger, c.http.Transport)
	}
	if c.reads == nil {
		c.reads = c.http
	}

	return c
}

// Select fetches the rows matching query and decodes them into out,
// which should be a pointer to a slice.
func (c *Client) Select(ctx context.Context, table string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, table, query, nil, out, nil)
}

// SelectOne fetches exactly one row. Zero rows comes back as a
// NotFound-classified error rather than an empty result.
func (c *Client) SelectOne(ctx context.Context, table string, query url.Values, out any) error {
	headers := http.Header{"Accept": []string{"application/vnd.pgrst.object+json"}}
	return c.do(ctx, http.MethodGet, table, query, nil, out, headers)
}

// Insert creates a row and decodes the stored representation into out.
// Pass a nil out to discard it.
func (c *Client) Insert(ctx context.Context, table string, record, out any) error {
	return c.do(ctx, http.MethodPost, table, nil, record, out, nil)
}

// Update patches the rows matching query and decodes the updated
// representation into out.
func (c *Client) Update(ctx context.Context, table string, query url.Values, patch, out any) error {
	return c.do(ctx, http.MethodPatch, table, query, patch, out, nil)
}

// Delete removes the rows matching query.
func (c *Client) Delete(ctx context.Context, table string, query url.Values) error {
	return c.do(ctx, http.MethodDelete, table, query, nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, table string, query url.Values, body, out any, headers http.Header) error {
	op := fmt.Sprintf("%s.%s", table, strings.ToLower(method))

	endpoint := c.baseURL + restPrefix + table
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", op, err)
	}

	req.Header.Set("apikey", c.apiKey)
	if token := c.tokens.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if out != nil && method != http.MethodGet {
		req.Header.Set("Prefer", "return=representation")
	}
	for key, values := range headers {
		req.Header[key] = values
	}

	httpClient := c.http
	if method == http.MethodGet {
		httpClient = c.reads
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("%s: failed to read response: %w", op, err)
	}

	if resp.StatusCode >= 400 {
		return decodeError(op, resp.StatusCode, data)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}

	return nil
}

// wireError is the backend's error payload.
type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func decodeError(op string, status int, data []byte) error {
	var parsed wireError
	_ = json.Unmarshal(data, &parsed)

	if parsed.Message == "" {
		if text := strings.TrimSpace(string(data)); text != "" && len(text) < 200 {
			parsed.Message = text
		} else {
			parsed.Message = http.StatusText(status)
		}
	}

	return &apierr.BackendError{
		Op:      op,
		Status:  status,
		Code:    parsed.Code,
		Message: parsed.Message,
		Details: parsed.Details,
		Hint:    parsed.Hint,
	}
}

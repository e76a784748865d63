// Package transport implements the authenticated HTTP client for the
// upstream community API: response caching, retry on rate limiting,
// and error classification. It knows nothing about domain semantics —
// callers hand it paths and get raw JSON back.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"commbridge/internal/apierr"
)

const (
	// DefaultTTL is the cache freshness window.
	DefaultTTL = 60 * time.Second

	// DefaultTimeout bounds each individual attempt. Retries get a
	// fresh timeout each.
	DefaultTimeout = 30 * time.Second

	// retryAttempts counts total attempts: 1 initial + 3 retries.
	// Only 429 responses are retried; delays are 1s, 2s, 4s.
	retryAttempts = 4
	retryBase     = 1 * time.Second
)

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL string
	Token   string
	TTL     time.Duration
	Timeout time.Duration
	Logger  *slog.Logger
}

// Client issues authenticated requests against the upstream API.
// GET responses are cached; mutations invalidate the whole cache.
// There is no client-side concurrency cap — rate-limit avoidance is
// purely reactive (absorb the 429, back off, retry).
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	cache      *responseCache
	logger     *slog.Logger

	// now and retryDelay are injectable so tests control time and
	// avoid real sleeps.
	now        func() time.Time
	retryDelay time.Duration
}

// New creates a Client from opts.
func New(opts Options) *Client {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    opts.BaseURL,
		token:      opts.Token,
		httpClient: &http.Client{Timeout: timeout},
		cache:      newResponseCache(ttl),
		logger:     logger,
		now:        time.Now,
		retryDelay: retryBase,
	}
}

// Get issues a cached GET. The cache key is the exact (method, path,
// encoded query) tuple; a hit within the TTL is returned without a
// network call.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	key := cacheKey(http.MethodGet, path, query)
	now := c.now()

	if payload := c.cache.get(key, now); payload != nil {
		c.logger.Debug("cache hit", "path", path)
		return payload, nil
	}

	payload, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	c.cache.put(key, payload, c.now())
	return payload, nil
}

// Mutate issues a PUT, POST, or DELETE. Never cached; the entire
// cache is invalidated before the request goes out, since a write may
// affect any cached listing.
func (c *Client) Mutate(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	c.cache.clear()

	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
	}
	return c.do(ctx, method, path, nil, encoded)
}

// CacheSize reports the current entry count (stats surface).
func (c *Client) CacheSize() int {
	return c.cache.size()
}

// do runs one logical request under the retry policy: only 429 is
// retried, at most retryAttempts total, exponential delay from
// retryBase. Every other failure propagates on the first attempt.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte) (json.RawMessage, error) {
	var payload json.RawMessage

	err := retry.Do(
		func() error {
			result, err := c.roundTrip(ctx, method, path, query, body)
			if err != nil {
				return err
			}
			payload = result
			return nil
		},
		retry.Attempts(retryAttempts),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxJitter(0),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(apierr.IsRateLimited),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("rate limited, backing off",
				"path", path,
				"attempt", n+1,
				"error", err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// roundTrip performs a single HTTP exchange and classifies the result.
func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body []byte) (json.RawMessage, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("HTTP request", "method", method, "path", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(err, path)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(err, path)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, classifyStatus(resp.StatusCode, path, data)
	}
	return data, nil
}

// cacheKey builds the exact-tuple cache key.
func cacheKey(method, path string, query url.Values) string {
	return method + " " + path + "?" + query.Encode()
}

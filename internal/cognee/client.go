// ABOUTME: HTTP client wrapper for the knowledge-graph API.
// ABOUTME: Injects credentials, applies retries with backoff, and normalizes errors.

package cognee

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/2389/cognee-mcp/internal/auth"
	"github.com/2389/cognee-mcp/internal/ratelimit"
)

// Normalized upstream errors.
var (
	ErrUnauthorized = errors.New("upstream rejected credentials")
	ErrNotFound     = errors.New("upstream resource not found")
	ErrRateLimited  = errors.New("upstream rate limit exceeded")
	ErrUnavailable  = errors.New("upstream unavailable")

	// ErrClientRateLimited is returned before a request is sent when the
	// client-side request budget for the current window is spent.
	ErrClientRateLimited = errors.New("client-side rate limit exceeded")
)

// APIError carries upstream failures that are none of the sentinel cases.
type APIError struct {
	Status    int
	Body      string
	RequestID string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("upstream error: status %d (request %s): %s", e.Status, e.RequestID, e.Body)
	}
	return fmt.Sprintf("upstream error: status %d: %s", e.Status, e.Body)
}

// maxErrorBody caps how much of an upstream error body is retained.
const maxErrorBody = 8 * 1024

// upstreamKey is the single rate-limit bucket for all upstream calls.
const upstreamKey = "upstream"

// Config holds client construction parameters.
type Config struct {
	BaseURL         string
	Timeout         time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
	RateLimitPerMin int
	Credentials     auth.CredentialSource
	Logger          *slog.Logger
	HTTPClient      *http.Client
}

// Client is the single HTTP wrapper for the remote knowledge-graph API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      auth.CredentialSource
	maxRetries int
	retryDelay time.Duration
	rateLimit  int
	limiter    *ratelimit.Window
	logger     *slog.Logger
}

// New creates a Client from the given configuration.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("base URL is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "cognee")
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		creds:      cfg.Credentials,
		maxRetries: cfg.MaxRetries,
		retryDelay: retryDelay,
		rateLimit:  cfg.RateLimitPerMin,
		limiter:    ratelimit.New(time.Minute),
		logger:     logger,
	}, nil
}

// BaseURL returns the configured upstream base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type requestIDKey struct{}

// WithRequestID attaches a correlation id to the context. The client sends
// it upstream as X-Request-Id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the correlation id, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// do issues one API call. Idempotent methods retry on transport errors and
// 5xx responses with exponential backoff; 4xx never retries.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	if !c.limiter.Allow(upstreamKey, c.rateLimit) {
		return fmt.Errorf("%w: %d requests per minute", ErrClientRateLimited, c.rateLimit)
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
	}

	attempts := 1
	if isIdempotent(method) {
		attempts += c.maxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * (1 << (attempt - 1))
			c.logger.Debug("retrying upstream request",
				"method", method,
				"path", path,
				"attempt", attempt,
				"delay", delay,
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		retryable, err := c.doOnce(ctx, method, path, payload, result)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
	}
	return lastErr
}

// doOnce performs a single request attempt. The bool result reports whether
// the failure is worth retrying.
func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte, result any) (bool, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return false, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := RequestIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-Id", id)
	}

	if err := c.attachCredentials(ctx, req); err != nil {
		return false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return c.statusError(method, path, resp)
	}

	if result == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return false, fmt.Errorf("decoding response: %w", err)
	}
	return false, nil
}

// attachCredentials resolves and applies credentials. Anonymous mode sends
// the request bare; credential failures (expired key, failed login) abort.
func (c *Client) attachCredentials(ctx context.Context, req *http.Request) error {
	if c.creds == nil {
		return nil
	}
	creds, err := c.creds.Credentials(ctx)
	if err != nil {
		if errors.Is(err, auth.ErrNoCredentials) {
			return nil
		}
		return err
	}
	creds.Apply(req)
	return nil
}

// statusError maps an upstream status code to a normalized error.
func (c *Client) statusError(method, path string, resp *http.Response) (bool, error) {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	detail := strings.TrimSpace(string(raw))
	requestID := strings.TrimSpace(resp.Header.Get("X-Request-Id"))

	c.logger.Warn("upstream request failed",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", requestID,
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return false, fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return false, fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	case resp.StatusCode == http.StatusTooManyRequests:
		return false, ErrRateLimited
	case resp.StatusCode >= http.StatusInternalServerError:
		return true, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		return false, &APIError{Status: resp.StatusCode, Body: detail, RequestID: requestID}
	}
}

func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodDelete:
		return true
	default:
		return false
	}
}

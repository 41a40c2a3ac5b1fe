// Package onshape provides a signed HTTP client for the Onshape REST API.
package onshape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Credentials identify the API key pair and endpoint used to sign requests.
// Immutable for the process lifetime; passed explicitly, never ambient.
type Credentials struct {
	AccessKey string
	SecretKey string
	BaseURL   string
}

// Validate checks the credentials are complete.
func (c Credentials) Validate() error {
	if c.AccessKey == "" {
		return errors.New("access key is required")
	}
	if c.SecretKey == "" {
		return errors.New("secret key is required")
	}
	if c.BaseURL == "" {
		return errors.New("base URL is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	return nil
}

// Response is a successful API response.
type Response struct {
	StatusCode int
	Body       []byte
}

// APIError is a non-2xx response from the vendor API.
type APIError struct {
	StatusCode int
	Body       string
	// RetryAfter is the server-supplied backoff hint, zero if absent.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("vendor API returned status %d", e.StatusCode)
}

// Auth reports whether the response indicates a rejected signature or key.
func (e *APIError) Auth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Throttled reports whether the server asked the client to slow down.
func (e *APIError) Throttled() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// Temporary reports whether the failure is worth retrying.
func (e *APIError) Temporary() bool {
	return e.Throttled() || e.StatusCode >= 500
}

// IsAuthError reports whether err is a vendor auth rejection.
func IsAuthError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Auth()
}

// Client makes authenticated requests to the Onshape API.
type Client struct {
	creds  Credentials
	hc     *http.Client
	logger *slog.Logger
}

// NewClient creates a client for the given credentials.
func NewClient(creds Credentials, logger *slog.Logger) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		creds: creds,
		hc: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}, nil
}

// Send issues a signed GET request against path (relative to the base URL)
// with the given query parameters. The signature timestamp is taken at send
// time so queued requests do not go out with a stale clock.
func (c *Client) Send(ctx context.Context, method, path string, query url.Values) (*Response, error) {
	u, err := url.Parse(c.creds.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	u.Path, err = url.JoinPath(u.Path, path)
	if err != nil {
		return nil, fmt.Errorf("joining request path: %w", err)
	}
	// Encode sorts query keys, keeping the signed string deterministic.
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}
	date := time.Now().UTC().Format(http.TimeFormat)
	signature := sign(c.creds.SecretKey, method, nonce, date, "", u.Path, u.RawQuery)

	req.Header.Set("Date", date)
	req.Header.Set("On-Nonce", nonce)
	req.Header.Set("Authorization", authorizationHeader(c.creds.AccessKey, signature))
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), 512),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
		c.logger.Debug("vendor API error",
			"method", method,
			"path", u.Path,
			"status", resp.StatusCode,
		)
		return nil, apiErr
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// CurrentUser fetches the authenticated user, primarily as a connection check.
func (c *Client) CurrentUser(ctx context.Context) (map[string]any, error) {
	resp, err := c.Send(ctx, http.MethodGet, "/users/current", nil)
	if err != nil {
		return nil, err
	}
	var user map[string]any
	if err := json.Unmarshal(resp.Body, &user); err != nil {
		return nil, fmt.Errorf("decoding user response: %w", err)
	}
	return user, nil
}

// parseRetryAfter handles both forms of the Retry-After header: delay
// seconds and an HTTP date.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	when, err := http.ParseTime(v)
	if err != nil {
		return 0
	}
	d := time.Until(when)
	if d < 0 {
		return 0
	}
	return d
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

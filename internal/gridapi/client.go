// Package gridapi fetches grid points and charger records from the load
// forecasting backend. It is the only place where wire representations are
// converted to models; in particular the backend's "True"/"False" overload
// flag becomes a boolean here.
package gridapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/jgoulah/gridview/pkg/models"
)

// StatusError is returned when the backend answers with a non-200 status
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether retrying the request may succeed
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client talks to the grid data backend
type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
	maxRetries int
	retryWait  time.Duration
	logger     *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithToken sends a bearer token with every request
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout sets the per-attempt HTTP timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRetries sets how often a transient failure is retried and the initial
// wait between attempts. A zero wait keeps the default.
func WithRetries(n int, initialWait time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = n
		if initialWait > 0 {
			c.retryWait = initialWait
		}
	}
}

// WithLogger sets the logger used for skipped records and retries
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger.Named("gridapi") }
}

// New creates a client for the backend rooted at baseURL
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("API URL is required")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing API URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("API URL must be absolute: %s", baseURL)
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
		retryWait:  500 * time.Millisecond,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchPoints returns the grid points for one hour, in backend order
func (c *Client) FetchPoints(ctx context.Context, hour int) ([]models.GridPoint, error) {
	params := url.Values{}
	params.Set("time", strconv.Itoa(hour))

	body, err := c.get(ctx, "points", params)
	if err != nil {
		return nil, fmt.Errorf("fetching points for hour %d: %w", hour, err)
	}

	points, err := decodePoints(body, c.logger)
	if err != nil {
		return nil, fmt.Errorf("decoding points for hour %d: %w", hour, err)
	}
	return points, nil
}

// FetchChargers returns the chargers contributing to one overloaded point
func (c *Client) FetchChargers(ctx context.Context, q models.ChargerQuery) ([]models.ChargerRecord, error) {
	params := url.Values{}
	params.Set("time", strconv.Itoa(q.Hour))
	params.Set("cadaster", q.Cadaster)
	params.Set("baseLoad", strconv.FormatFloat(q.BaseLoad, 'f', -1, 64))
	params.Set("maxLoad", strconv.FormatFloat(q.MaxLoad, 'f', -1, 64))

	body, err := c.get(ctx, "chargers", params)
	if err != nil {
		return nil, fmt.Errorf("fetching chargers for %s: %w", q.Cadaster, err)
	}

	records, err := decodeChargers(body, c.logger)
	if err != nil {
		return nil, fmt.Errorf("decoding chargers for %s: %w", q.Cadaster, err)
	}
	return records, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	reqURL := c.baseURL.JoinPath(endpoint)
	reqURL.RawQuery = params.Encode()

	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("making request: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response body: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			preview := string(data)
			if len(preview) > 200 {
				preview = preview[:200]
			}
			statusErr := &StatusError{StatusCode: resp.StatusCode, Body: preview}
			if !statusErr.Temporary() {
				return backoff.Permanent(statusErr)
			}
			return statusErr
		}

		body = data
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryWait

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("request failed, retrying",
			zap.String("endpoint", endpoint),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxRetries)), ctx), notify); err != nil {
		return nil, err
	}
	return body, nil
}

// Package client provides the rate-limited JSON-over-HTTP client used by every
// pipeline stage that talks to an upstream API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/validator-atlas/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for upstream API calls.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_http_requests_total",
		Help: "Total upstream requests by client and status",
	}, []string{"client", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atlas_http_request_duration_seconds",
		Help:    "Upstream request duration in seconds by client",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"client"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_http_errors_total",
		Help: "Total upstream errors by client and class",
	}, []string{"client", "class"})
)

// DefaultUserAgent identifies the pipeline to upstream APIs.
const DefaultUserAgent = "validator-atlas/0.1.0"

// maxBodyBytes bounds how much of a response body is read into memory.
const maxBodyBytes = 64 << 20

// Client performs GET requests against one upstream API.
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Name labels logs and metrics (e.g. "solana-detail").
	Name string

	// User-Agent header sent with every request
	UserAgent string

	// Headers are added to every request (API keys, Accept overrides).
	Headers map[string]string

	// Timeout bounds each individual HTTP attempt.
	Timeout time.Duration

	// Retry controls retries of server, rate-limit and network failures.
	Retry RetryConfig

	// Limiter is consulted before every attempt. Nil means the API is not rate-limited.
	Limiter *ratelimit.Limiter

	// HTTPClient overrides the underlying client (for testing).
	HTTPClient *http.Client
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(name string) Config {
	return Config{
		Name:      name,
		UserAgent: DefaultUserAgent,
		Timeout:   30 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// New creates a new API client.
func New(cfg Config) (*Client, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("client name is required")
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}

	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("retry max_attempts must be >= 1 (got %d)", cfg.Retry.MaxAttempts)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		httpClient: httpClient,
		limiter:    cfg.Limiter,
		config:     cfg,
		logger:     log.With().Str("component", "http-client").Str("client", cfg.Name).Logger(),
	}, nil
}

// Do performs an HTTP request with rate limiting, retries and error classification.
// It returns the response only for 2xx statuses; every other outcome is an error,
// an *APIError when the upstream answered.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	target := redactURL(req.URL)

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(c.config.Name).Observe(time.Since(startTime).Seconds())
	}()

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	for key, value := range c.config.Headers {
		if value != "" {
			req.Header.Set(key, value)
		}
	}

	var resp *http.Response
	var errClass ErrorClass

	retryErr := retryWithBackoff(ctx, c.config.Retry, c.logger, func() error {
		resp = nil
		errClass = ""

		if c.limiter != nil {
			if err := c.limiter.Admit(ctx); err != nil {
				return err
			}
		}

		c.logger.Debug().Str("url", target).Msg("Executing request")

		var reqErr error
		resp, reqErr = c.httpClient.Do(req)
		if reqErr != nil {
			if ctx.Err() != nil {
				return reqErr
			}
			errClass = c.classifyError(nil, reqErr)
			errorsTotal.WithLabelValues(c.config.Name, string(errClass)).Inc()
			requestsTotal.WithLabelValues(c.config.Name, "network_error").Inc()
			c.logger.Warn().Err(reqErr).Str("url", target).Msg("HTTP request failed")
			return &APIError{
				ErrorClass: errClass,
				URL:        target,
				Message:    "request failed",
				Err:        reqErr,
			}
		}

		requestsTotal.WithLabelValues(c.config.Name, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			errClass = c.classifyError(resp, nil)
			errorsTotal.WithLabelValues(c.config.Name, string(errClass)).Inc()

			c.logger.Warn().
				Str("url", target).
				Int("status", resp.StatusCode).
				Str("error_class", string(errClass)).
				Msg("Upstream request error")

			apiErr := &APIError{
				StatusCode: resp.StatusCode,
				ErrorClass: errClass,
				URL:        target,
				Message:    resp.Status,
			}
			drainAndClose(resp)
			resp = nil
			return apiErr
		}

		return nil
	}, func(err error) ErrorClass {
		return errClass
	})

	if retryErr != nil {
		if resp != nil {
			drainAndClose(resp)
		}
		return nil, retryErr
	}

	return resp, nil
}

// classifyError categorizes a failure for observability and retry decisions.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		// 1xx/3xx that the transport did not resolve
		return ErrorClassClient
	default:
		return ""
	}
}

// Get performs a GET request and returns the full response body.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			URL:        redactURL(req.URL),
			Message:    "read body",
			Err:        err,
		}
	}

	return body, nil
}

// GetJSON performs a GET request and decodes the JSON body into out.
// Numbers are decoded as json.Number so stake amounts keep full precision.
func (c *Client) GetJSON(ctx context.Context, rawURL string, out any) error {
	body, err := c.Get(ctx, rawURL)
	if err != nil {
		return err
	}

	if err := DecodeJSON(body, out); err != nil {
		errorsTotal.WithLabelValues(c.config.Name, string(ErrorClassDecode)).Inc()
		return &APIError{
			StatusCode: http.StatusOK,
			ErrorClass: ErrorClassDecode,
			URL:        redactString(rawURL),
			Message:    "decode response",
			Err:        err,
		}
	}
	return nil
}

// DecodeJSON decodes data into out using json.Number for numeric values.
func DecodeJSON(data []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}

// Name returns the client name.
func (c *Client) Name() string {
	return c.config.Name
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}

// secretParams are query parameters whose values never reach logs or errors.
var secretParams = []string{"token", "api_key", "apikey"}

func redactURL(u *url.URL) string {
	q := u.Query()
	changed := false
	for _, key := range secretParams {
		if q.Has(key) {
			q.Set(key, "REDACTED")
			changed = true
		}
	}
	if !changed {
		return u.Redacted()
	}
	clone := *u
	clone.RawQuery = q.Encode()
	return clone.Redacted()
}

func redactString(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	return redactURL(u)
}

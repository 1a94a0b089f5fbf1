// Package client provides the HTTP client used to talk to the legacy and
// modern systems, with request pacing, upstream budget gating, and retries.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/sync-reconciler/pkg/logging"
	"github.com/Sternrassler/sync-reconciler/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for upstream requests.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_upstream_requests_total",
		Help: "Total upstream requests by system and status",
	}, []string{"system", "status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sync_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds by system",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"system"})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_upstream_errors_total",
		Help: "Total upstream errors by system and class",
	}, []string{"system", "class"})
)

// maxErrorBody bounds how much of an error response is kept in UpstreamError.
const maxErrorBody = 512

// Config holds the client configuration.
type Config struct {
	// BaseURL is the root of the upstream API (e.g. "https://legacy.internal/api")
	BaseURL string

	// System names the upstream in logs, metrics, and budget keys ("legacy", "modern")
	System string

	// UserAgent identifies this service to the upstream
	UserAgent string

	// Timeout bounds a single HTTP attempt
	Timeout time.Duration

	// RequestsPerSecond paces outgoing requests; 0 disables pacing
	RequestsPerSecond float64

	// Burst is the number of requests allowed above the pace
	Burst int

	// Redis enables shared upstream budget tracking when set
	Redis *redis.Client

	// Retry picks the retry configuration per error class.
	// Defaults to RetryConfigForErrorClass.
	Retry RetryPolicy
}

// DefaultConfig returns a safe default configuration for one upstream.
func DefaultConfig(system, baseURL, userAgent string) Config {
	return Config{
		BaseURL:           baseURL,
		System:            system,
		UserAgent:         userAgent,
		Timeout:           15 * time.Second,
		RequestsPerSecond: 50,
		Burst:             10,
	}
}

// Client talks to one upstream system.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	limiter    *rate.Limiter
	budget     *ratelimit.Tracker
	retry      RetryPolicy
	config     Config
	logger     zerolog.Logger
}

// New creates a new upstream client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.System == "" {
		return nil, fmt.Errorf("system name is required")
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("requests_per_second must be >= 0 (got %v)", cfg.RequestsPerSecond)
	}

	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("base url must be absolute (got %q)", cfg.BaseURL)
	}

	logger := logging.NewLogger(logging.ComponentClient).With().Str("system", cfg.System).Logger()

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    baseURL,
		retry:      cfg.Retry,
		config:     cfg,
		logger:     logger,
	}
	if c.retry == nil {
		c.retry = RetryConfigForErrorClass
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	if cfg.Redis != nil {
		c.budget = ratelimit.NewTracker(cfg.Redis, cfg.System, logger)
	}

	return c, nil
}

// System returns the upstream name.
func (c *Client) System() string {
	return c.config.System
}

// Do performs an HTTP request with pacing, budget gating, and retries.
// 4xx responses are returned to the caller; 5xx, 429, and network
// failures are retried and surface as errors once retries are exhausted.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	system := c.config.System

	startTime := time.Now()
	defer func() {
		upstreamRequestDuration.WithLabelValues(system).Observe(time.Since(startTime).Seconds())
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for request slot: %w", err)
		}
	}

	if c.budget != nil {
		allowed, err := c.budget.ShouldAllowRequest(ctx)
		if err != nil {
			return nil, fmt.Errorf("budget check: %w", err)
		}
		if !allowed {
			upstreamRequestsTotal.WithLabelValues(system, "budget_blocked").Inc()
			return nil, fmt.Errorf("%s: %w", system, ErrBudgetExhausted)
		}
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Msg("Executing upstream request")

	var resp *http.Response
	err := retryWithBackoff(ctx, system, c.retry, c.logger, func() (ErrorClass, error) {
		r, err := c.httpClient.Do(req.Clone(ctx))
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			c.logger.Warn().Err(err).Str("path", req.URL.Path).Msg("Upstream request failed")
			upstreamErrorsTotal.WithLabelValues(system, string(ErrorClassNetwork)).Inc()
			upstreamRequestsTotal.WithLabelValues(system, "network_error").Inc()
			return ErrorClassNetwork, &UpstreamError{
				System:     system,
				ErrorClass: ErrorClassNetwork,
				Message:    "request failed",
				Err:        err,
			}
		}

		if c.budget != nil {
			if err := c.budget.UpdateFromHeaders(ctx, r.Header); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to update upstream budget from headers")
			}
		}

		upstreamRequestsTotal.WithLabelValues(system, strconv.Itoa(r.StatusCode)).Inc()

		errorClass := classifyStatus(r.StatusCode)
		if errorClass == "" {
			resp = r
			return "", nil
		}

		upstreamErrorsTotal.WithLabelValues(system, string(errorClass)).Inc()
		c.logger.Warn().
			Str("path", req.URL.Path).
			Int("status", r.StatusCode).
			Str("error_class", string(errorClass)).
			Msg("Upstream request error")

		if shouldRetry(errorClass) {
			_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, maxErrorBody))
			r.Body.Close()
			return errorClass, &UpstreamError{
				System:     system,
				StatusCode: r.StatusCode,
				ErrorClass: errorClass,
				Message:    r.Status,
			}
		}

		resp = r
		return "", nil
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// GetJSON fetches path (relative to BaseURL) and decodes the JSON body into out.
// A 404 is reported as ErrNotFound; other 4xx as *UpstreamError.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", c.config.System, path, ErrNotFound)
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &UpstreamError{
			System:     c.config.System,
			StatusCode: resp.StatusCode,
			ErrorClass: classifyStatus(resp.StatusCode),
			Message:    strings.TrimSpace(string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", c.config.System, path, err)
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/reachlab/reach-data/internal/config"
)

// RESTClient is the shared HTTP layer under every provider adapter. Each
// outbound attempt first blocks on the provider's rate limiter, so quota is
// enforced regardless of how many workers call concurrently.
type RESTClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger

	quota         int
	quotaInterval time.Duration
	earliest      time.Time

	maxRetries   int
	retryBackoff time.Duration
}

// NewRESTClient builds a client from provider config. earliestFallback is
// used when the config does not pin an earliest available date.
func NewRESTClient(name string, cfg config.ProviderConfig, earliestFallback time.Time, logger *slog.Logger) *RESTClient {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Quota < 1 {
		cfg.Quota = 1
	}
	if cfg.QuotaInterval <= 0 {
		cfg.QuotaInterval = time.Minute
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}

	earliest := earliestFallback
	if cfg.EarliestDate != "" {
		if d, err := time.Parse("2006-01-02", cfg.EarliestDate); err == nil {
			earliest = d
		} else {
			logger.Warn("invalid earliest_date in config, using fallback",
				"provider", name,
				"value", cfg.EarliestDate,
			)
		}
	}

	return &RESTClient{
		name:    name,
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		// One permit every interval/quota keeps any window of length
		// interval at or under quota calls, for any worker-pool size.
		limiter:       rate.NewLimiter(rate.Every(cfg.QuotaInterval/time.Duration(cfg.Quota)), 1),
		logger:        logger,
		quota:         cfg.Quota,
		quotaInterval: cfg.QuotaInterval,
		earliest:      earliest,
		maxRetries:    cfg.MaxRetries,
		retryBackoff:  cfg.RetryBackoff,
	}
}

// Name identifies the provider in logs and run summaries.
func (c *RESTClient) Name() string { return c.name }

// Quota returns the configured request budget.
func (c *RESTClient) Quota() (int, time.Duration) { return c.quota, c.quotaInterval }

// EarliestDate is the oldest trading date the provider can serve.
func (c *RESTClient) EarliestDate() time.Time { return c.earliest }

// Get performs a GET request with rate limiting and retries, decoding the
// JSON response into result.
func (c *RESTClient) Get(ctx context.Context, path string, query url.Values, result any) error {
	body, err := c.doWithRetry(ctx, http.MethodGet, path, query)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal %s response: %w", c.name, err)
	}

	return nil
}

// GetRaw performs a GET request and returns the raw body. Used by adapters
// whose responses are not plain JSON objects (e.g. zipped corp-code tables).
func (c *RESTClient) GetRaw(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return c.doWithRetry(ctx, http.MethodGet, path, query)
}

// doRequest performs one rate-limited HTTP attempt.
func (c *RESTClient) doRequest(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	// Acquire a quota permit; suspends the calling goroutine, never drops.
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &Error{
			Provider:   c.name,
			Class:      classForStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
		}
	}

	return body, nil
}

// doWithRetry performs a request with exponential backoff on transient
// failures. Permanent and systemic errors return immediately.
func (c *RESTClient) doWithRetry(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Add jitter: backoff * (0.5 to 1.5)
			jitter := backoff/2 + time.Duration(rand.Int63n(int64(backoff)))
			c.logger.Debug("retrying request",
				"provider", c.name,
				"attempt", attempt,
				"backoff", jitter,
				"path", path,
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jitter):
			}

			backoff *= 2
		}

		body, err := c.doRequest(ctx, method, path, query)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}

		lastErr = err

		if ClassOf(err) != ClassTransient {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

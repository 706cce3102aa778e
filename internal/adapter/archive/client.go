// Package archive retrieves raw station payloads from the observation
// archive over HTTP. Fetches are retried with exponential backoff; a disk
// staging area keeps every payload exactly as fetched so later runs and
// other tools reuse the download.
package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/wxarchive/station-etl/internal/domain"
	"github.com/wxarchive/station-etl/internal/observability"
	"github.com/wxarchive/station-etl/internal/registry"
)

// Fetcher retrieves the raw payload for one work unit. Implementations
// return a domain.NotAvailableError when the archive has no file for the
// unit and a domain.TransientError when delivery kept failing.
type Fetcher interface {
	Fetch(ctx context.Context, unit domain.WorkUnit) ([]byte, error)
}

// Exponential backoff cap across all fetch retries. Keeps retry storms
// short while avoiding tight loops during archive outages.
const maxFetchBackoff = 30 * time.Second

// Client fetches payloads straight from the archive's HTTP servers.
type Client struct {
	reg        *registry.Registry
	httpClient *http.Client
	userAgent  string
	attempts   int
	backoff    time.Duration
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an archive HTTP client. attempts bounds how often one
// payload is requested; backoff is the first retry delay and doubles per
// attempt.
func NewClient(reg *registry.Registry, timeout time.Duration, attempts int, backoff time.Duration, userAgent string, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		reg: reg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		userAgent: userAgent,
		attempts:  attempts,
		backoff:   backoff,
		metrics:   metrics,
		logger:    logger,
	}
}

// Fetch retrieves the archive file for one work unit.
func (c *Client) Fetch(ctx context.Context, unit domain.WorkUnit) ([]byte, error) {
	spec, err := c.reg.Dataset(unit.Dataset)
	if err != nil {
		return nil, err
	}
	return c.fetch(ctx, string(unit.Dataset), spec.URLFor(unit))
}

// FetchURL retrieves an arbitrary archive file, such as a station
// inventory, with the same retry behavior as unit fetches.
func (c *Client) FetchURL(ctx context.Context, url string) ([]byte, error) {
	return c.fetch(ctx, "inventory", url)
}

func (c *Client) fetch(ctx context.Context, dataset, url string) ([]byte, error) {
	backoff := c.backoff
	var lastErr error

	for attempt := 1; attempt <= c.attempts; attempt++ {
		payload, err := c.doRequest(ctx, dataset, url)
		if err == nil {
			c.metrics.FetchRequests.WithLabelValues(dataset, "success").Inc()
			return payload, nil
		}
		if domain.IsNotAvailable(err) {
			// The archive has no file for this unit. Normal for sparse
			// stations, so no retries and no error-level noise.
			c.metrics.FetchRequests.WithLabelValues(dataset, "not_available").Inc()
			return nil, err
		}

		lastErr = err
		c.logger.Warn("fetch attempt failed", "url", url, "attempt", attempt, "error", err)

		if attempt < c.attempts {
			c.metrics.FetchRetries.Inc()
			if !sleepWithContext(ctx, backoff) {
				return nil, ctx.Err()
			}
			backoff = nextBackoff(backoff, maxFetchBackoff)
		}
	}

	c.metrics.FetchRequests.WithLabelValues(dataset, "error").Inc()
	return nil, &domain.TransientError{Source: url, Attempts: c.attempts, Err: lastErr}
}

func (c *Client) doRequest(ctx context.Context, dataset, url string) ([]byte, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("archive request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &domain.NotAvailableError{Source: url}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("archive error: status %d: %s", resp.StatusCode, body)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	// Some archive servers answer missing files with an empty 200 body.
	if len(payload) == 0 {
		return nil, &domain.NotAvailableError{Source: url}
	}

	c.metrics.FetchDuration.WithLabelValues(dataset).Observe(time.Since(start).Seconds())
	return payload, nil
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

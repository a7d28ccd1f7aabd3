// Package usgs fetches the USGS real-time earthquake GeoJSON feed.
package usgs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/quake-alert-service/internal/domain"
	"github.com/couchcryptid/quake-alert-service/internal/observability"
)

// maxFeedBytes bounds the body read; the largest summary feed (all_month) is ~10 MB.
const maxFeedBytes = 32 << 20

// Client retrieves and parses the event feed. It implements poller.FeedFetcher.
type Client struct {
	feedURL    string
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a feed client whose requests are bounded by timeout.
func NewClient(feedURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		feedURL: feedURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: metrics,
		logger:  logger,
	}
}

// Fetch downloads the feed once. Every failure wraps domain.ErrNetwork; the
// caller decides whether to retry.
func (c *Client) Fetch(ctx context.Context) ([]domain.SeismicEvent, error) {
	start := time.Now()
	events, err := c.fetch(ctx)
	c.metrics.FeedFetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.FeedFetches.WithLabelValues("error").Inc()
		return nil, err
	}

	c.metrics.FeedFetches.WithLabelValues("success").Inc()
	c.metrics.FeedEvents.Set(float64(len(events)))
	c.logger.Debug("feed fetched", "events", len(events), "duration", time.Since(start))
	return events, nil
}

func (c *Client) fetch(ctx context.Context) ([]domain.SeismicEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", domain.ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: feed request: %w", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: feed status %d: %s", domain.ErrNetwork, resp.StatusCode, body)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", domain.ErrNetwork, err)
	}

	events, err := domain.ParseFeed(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrNetwork, err)
	}
	return events, nil
}

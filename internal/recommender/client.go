package recommender

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/linemk/datashop/internal/domain/models"
	"github.com/linemk/datashop/internal/lib/metrics"
)

const DefaultTimeout = 2 * time.Second

type Client struct {
	log     *slog.Logger
	baseURL string
	http    *http.Client
}

var _ Provider = (*Client)(nil)

// NewClient возвращает Noop при пустом baseURL.
func NewClient(log *slog.Logger, baseURL string, timeout time.Duration) Provider {
	if baseURL == "" {
		log.Warn("recommender base url is empty, recommendations disabled")
		return Noop{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		log:     log,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Related(ctx context.Context, productID int64) []models.Recommendation {
	return c.fetch(ctx, KindRelated, fmt.Sprintf("/recommendations/related/%d", productID))
}

func (c *Client) ForUser(ctx context.Context, userID int64) []models.Recommendation {
	return c.fetch(ctx, KindUser, fmt.Sprintf("/recommendations/user/%d", userID))
}

func (c *Client) Popular(ctx context.Context) []models.Recommendation {
	return c.fetch(ctx, KindPopular, "/products/popular")
}

func (c *Client) fetch(ctx context.Context, kind, path string) []models.Recommendation {
	const op = "recommender.Client.fetch"
	logger := c.log.With(slog.String("op", op), slog.String("kind", kind), slog.String("path", path))

	recs, err := c.get(ctx, path)
	if err != nil {
		metrics.RecommendationsFallback.WithLabelValues(kind).Inc()
		logger.Error("recommendation request failed", slog.Any("error", err))
		return []models.Recommendation{}
	}
	logger.Debug("recommendations received", slog.Int("count", len(recs)))
	return recs
}

func (c *Client) get(ctx context.Context, path string) ([]models.Recommendation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var recs []models.Recommendation
	if err := json.NewDecoder(resp.Body).Decode(&recs); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if recs == nil {
		recs = []models.Recommendation{}
	}
	return recs, nil
}

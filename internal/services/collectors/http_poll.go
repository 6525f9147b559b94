package collectors

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"sentioracle/internal/domain/models"
	"sentioracle/internal/service/manipulation"
	"sentioracle/internal/service/ratelimit"
)

// MaxItemsPerCycle bounds how many items one Collect call returns,
// regardless of how many the upstream feed actually has available.
const MaxItemsPerCycle = 10_000

// RateLimitCapacity and RateLimitRefillPerSec are the default per-source
// token bucket a poller consults before every outbound request.
const (
	RateLimitCapacity     = 5
	RateLimitRefillPerSec = 2
)

type feedItem struct {
	ID           string            `json:"id"`
	Text         string            `json:"text"`
	AuthorID     string            `json:"author_id"`
	CreatedAtSec int64             `json:"created_at"`
	AssetTags    []string          `json:"asset_tags"`
	Metadata     map[string]string `json:"metadata"`
}

type feedResponse struct {
	Items      []feedItem `json:"items"`
	NextCursor string     `json:"next_cursor"`
}

// HTTPPoll collects text items from a paginated REST feed: news
// aggregators and any source exposing a request/response API rather than
// a push stream. Grounded on the teacher's HTTPServiceBase request shape,
// reused here as httpServiceBase.
type HTTPPoll struct {
	base         *httpServiceBase
	source       models.Source
	limiter      *ratelimit.Limiter
	rateCapacity float64
	rateRefill   float64
}

// NewHTTPPoll builds a poller for one source against one base URL.
// rateCapacity/rateRefill configure the shared Limiter's per-source
// token bucket (spec.md's "per_source_rate_tokens"/"_refill_s"); zero
// falls back to RateLimitCapacity/RateLimitRefillPerSec.
func NewHTTPPoll(source models.Source, baseURL string, timeout time.Duration, limiter *ratelimit.Limiter, rateCapacity, rateRefill float64) *HTTPPoll {
	if rateCapacity <= 0 {
		rateCapacity = RateLimitCapacity
	}
	if rateRefill <= 0 {
		rateRefill = RateLimitRefillPerSec
	}
	return &HTTPPoll{
		base:         newHTTPServiceBase(baseURL, timeout),
		source:       source,
		limiter:      limiter,
		rateCapacity: rateCapacity,
		rateRefill:   rateRefill,
	}
}

// Source implements domain/service.Collector.
func (h *HTTPPoll) Source() models.Source { return h.source }

// Collect implements domain/service.Collector: pages through the feed
// within [windowStart, windowEnd), consulting the rate limiter before
// each page and retrying transient failures with backoff.
func (h *HTTPPoll) Collect(ctx context.Context, windowStart, windowEnd time.Time, assets []string) ([]models.Item, string, error) {
	var items []models.Item
	cursor := ""

	for len(items) < MaxItemsPerCycle {
		if err := h.limiter.Wait(ctx, string(h.source), h.rateCapacity, h.rateRefill); err != nil {
			return items, cursor, fmt.Errorf("collector %s: rate limiter: %w", h.source, err)
		}

		var page feedResponse
		err := withRetry(ctx, func() error {
			return h.base.getJSON(ctx, "/items", map[string][]string{
				"since":  {strconv.FormatInt(windowStart.Unix(), 10)},
				"until":  {strconv.FormatInt(windowEnd.Unix(), 10)},
				"assets": assets,
				"cursor": {cursor},
			}, &page)
		})
		if err != nil {
			return items, cursor, fmt.Errorf("collector %s: %w", h.source, err)
		}

		for _, fi := range page.Items {
			items = append(items, toItem(h.source, fi))
			if len(items) >= MaxItemsPerCycle {
				break
			}
		}

		if page.NextCursor == "" || page.NextCursor == cursor {
			cursor = page.NextCursor
			break
		}
		cursor = page.NextCursor
	}

	return items, cursor, nil
}

func toItem(source models.Source, fi feedItem) models.Item {
	it := models.Item{
		ID:           fi.ID,
		Source:       source,
		Text:         truncate(fi.Text, models.MaxTextBytes),
		AuthorID:     fi.AuthorID,
		CreatedAt:    time.Unix(fi.CreatedAtSec, 0).UTC(),
		AssetTags:    fi.AssetTags,
		Metadata:     fi.Metadata,
		AuthorWeight: models.DefaultAuthorWeight,
	}
	it.AuthorWeight = manipulation.QualityWeight(it)
	return it
}

func truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	return s[:maxBytes]
}

package scorer

import (
	"context"

	domsvc "sentioracle/internal/domain/service"
	"sentioracle/pkg/cache"
	"time"
)

// CachePrefix namespaces scorer cache entries within a shared cache.Service.
const CachePrefix = "scorer:score"

// CacheTTL bounds how long an identical text's score is reused. Scoring
// is deterministic given the same text and model weights (spec.md §8),
// so a cache hit is never stale in the sense that matters — only in the
// sense that upstream model weights could change between deploys, which
// the TTL bounds.
const CacheTTL = 1 * time.Hour

type cachedScore struct {
	Polarity   float64 `json:"polarity"`
	Confidence float64 `json:"confidence"`
}

// Cached wraps a Scorer with a cache.Service lookaside, avoiding a
// repeat primary-classifier round trip for text the pipeline has already
// scored — cross-posted or reshared content most often, since the
// Deduplicator's id-based horizon does not catch a verbatim repost under
// a new id. Grounded on the teacher's cache.Service lookaside pattern
// (pkg/cache), generalized from trade-tick caching to score caching.
type Cached struct {
	inner domsvc.Scorer
	cache cache.Service
}

// NewCached builds a caching decorator around any Scorer.
func NewCached(inner domsvc.Scorer, c cache.Service) *Cached {
	return &Cached{inner: inner, cache: c}
}

// Score implements domain/service.Scorer.
func (c *Cached) Score(ctx context.Context, text string) (float64, float64, error) {
	key := cache.GenerateKey(CachePrefix, cache.HashKey(text))

	var hit cachedScore
	if err := c.cache.Get(ctx, key, &hit); err == nil {
		return hit.Polarity, hit.Confidence, nil
	}

	polarity, confidence, err := c.inner.Score(ctx, text)
	if err != nil {
		return polarity, confidence, err
	}

	_ = c.cache.Set(ctx, key, cachedScore{Polarity: polarity, Confidence: confidence}, CacheTTL)
	return polarity, confidence, nil
}

var _ domsvc.Scorer = (*Cached)(nil)

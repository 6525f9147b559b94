// Package usecase holds the orchestration logic that drives the pipeline:
// cycle scheduling, per-asset aggregation, and the glue between stages.
package usecase

import (
	"math"
	"time"

	"sentioracle/internal/domain/models"
)

// NRef is the reference sample size used to discount confidence for
// small batches.
const NRef = 1000

// MinWeightEpsilon guards against dividing by ~zero total weight.
const MinWeightEpsilon = 1e-9

// Aggregator folds per-item scores into one AssetSample per asset, the
// same per-key-fold-with-independent-assets shape as the teacher's
// signal aggregation usecase, but computing a single weighted mean
// instead of calling out to N analytics services.
type Aggregator struct{}

// NewAggregator constructs an Aggregator. Stateless: safe for concurrent
// use across distinct assets.
func NewAggregator() *Aggregator { return &Aggregator{} }

// Aggregate folds items for one asset into an AssetSample, per:
//
//	weight_i = author_weight_i * confidence_i
//	score    = sum(weight_i*polarity_i) / sum(weight_i)
//	conf     = clamp(mean(confidence_i) * log(1+n)/log(1+N_ref), 0, 1)
//
// Returns ok=false if the sample would be dropped (sum(weight) < eps or
// sample_size < 1).
func (a *Aggregator) Aggregate(asset string, items []models.ScoredItem, windowEnd time.Time) (models.AssetSample, bool) {
	n := len(items)
	if n < 1 {
		return models.AssetSample{}, false
	}

	var weightedPolaritySum, weightSum, confidenceSum float64
	for _, it := range items {
		w := it.AuthorWeight * it.Confidence
		weightedPolaritySum += w * it.Polarity
		weightSum += w
		confidenceSum += it.Confidence
	}

	if weightSum < MinWeightEpsilon {
		return models.AssetSample{}, false
	}

	score := weightedPolaritySum / weightSum
	meanConfidence := confidenceSum / float64(n)
	conf := clampF(meanConfidence*math.Log(1+float64(n))/math.Log(1+NRef), 0, 1)

	sample := models.AssetSample{
		Asset:        asset,
		ScoreFP:      int64(math.Round(score * models.ScaleFP)),
		ConfidenceBP: int64(math.Round(conf * models.BasisPointsScale)),
		SampleSize:   int64(n),
		WindowEndTS:  windowEnd.Unix(),
	}
	return sample, true
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

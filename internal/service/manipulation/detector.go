// Package manipulation implements the multi-signal adversarial-batch
// screen gating what the Submitter is allowed to broadcast.
package manipulation

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"sentioracle/internal/domain/models"
	domsvc "sentioracle/internal/domain/service"
)

// RollingWindow is K, the number of prior cycles kept for the volume-spike
// baseline.
const RollingWindow = 3

// SimilarityThreshold is the 5-gram Jaccard cutoff above which two items
// count as near-duplicates for the content-similarity signal.
const SimilarityThreshold = 0.85

// BotAuthorWeightCeiling marks an item as bot-like when its author_weight
// is at or below this value.
const BotAuthorWeightCeiling = 0.2

// DivergenceThreshold is the per-source mean-polarity spread above which
// the cross-source divergence signal activates.
const DivergenceThreshold = 0.6

// Detector computes manipulation_score per spec's five weighted signals,
// keeping a K-cycle rolling sample-size history per asset for the
// volume-spike baseline (structurally grounded on the reference
// ManipulationDetector's rolling-baseline approach).
type Detector struct {
	mu      sync.Mutex
	history map[string][]int64 // asset -> last K sample sizes
}

// New builds a Detector with empty rolling history.
func New() *Detector {
	return &Detector{history: make(map[string][]int64)}
}

// Detect implements domain/service.ManipulationDetector.
func (d *Detector) Detect(_ context.Context, asset string, items []models.ScoredItem) (float64, map[string]float64, error) {
	n := len(items)
	breakdown := make(map[string]float64, 5)

	if v, ok := d.volumeSpike(asset, int64(n)); ok {
		breakdown["volume_spike"] = v
	}
	if v, ok := contentSimilarity(items); ok {
		breakdown["content_similarity"] = v
	}
	breakdown["bot_density"] = botDensity(items)
	if v, ok := crossSourceDivergence(items); ok {
		breakdown["cross_source_divergence"] = v
	}
	if v, ok := temporalBurstiness(items); ok {
		breakdown["temporal_burstiness"] = v
	}

	if len(breakdown) == 0 {
		return 0, breakdown, nil
	}
	var sum float64
	for _, v := range breakdown {
		sum += v
	}
	return sum / float64(len(breakdown)), breakdown, nil
}

// volumeSpike computes sigmoid((z-3)/1.5) of the current sample_size
// against the K-cycle rolling mean/stddev, then records this cycle into
// the rolling history.
func (d *Detector) volumeSpike(asset string, n int64) (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	hist := d.history[asset]
	contribution, ok := 0.0, false
	if len(hist) >= 2 {
		mean, stddev := meanStddev(hist)
		if stddev > 0 {
			z := (float64(n) - mean) / stddev
			contribution = sigmoid((z - 3) / 1.5)
			ok = true
		}
	}

	hist = append(hist, n)
	if len(hist) > RollingWindow {
		hist = hist[len(hist)-RollingWindow:]
	}
	d.history[asset] = hist

	return contribution, ok
}

func meanStddev(xs []int64) (float64, float64) {
	var sum float64
	for _, x := range xs {
		sum += float64(x)
	}
	mean := sum / float64(len(xs))

	var variance float64
	for _, x := range xs {
		d := float64(x) - mean
		variance += d * d
	}
	variance /= float64(len(xs))
	return mean, math.Sqrt(variance)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// contentSimilarity returns the fraction of items whose 5-gram Jaccard
// similarity with at least one other item in the batch exceeds the
// threshold.
func contentSimilarity(items []models.ScoredItem) (float64, bool) {
	n := len(items)
	if n < 2 {
		return 0, false
	}
	grams := make([]map[string]struct{}, n)
	for i, it := range items {
		grams[i] = fiveGramSet(it.Text)
	}
	flagged := make([]bool, n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if jaccard(grams[i], grams[j]) > SimilarityThreshold {
				flagged[i] = true
				flagged[j] = true
			}
		}
	}
	count := 0
	for _, f := range flagged {
		if f {
			count++
		}
	}
	return float64(count) / float64(n), true
}

func fiveGramSet(text string) map[string]struct{} {
	runes := []rune(text)
	set := make(map[string]struct{})
	const k = 5
	if len(runes) < k {
		if len(runes) > 0 {
			set[string(runes)] = struct{}{}
		}
		return set
	}
	for i := 0; i+k <= len(runes); i++ {
		set[string(runes[i:i+k])] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for g := range a {
		if _, ok := b[g]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// botDensity is the share of items with author_weight <= 0.2.
func botDensity(items []models.ScoredItem) float64 {
	if len(items) == 0 {
		return 0
	}
	count := 0
	for _, it := range items {
		if it.AuthorWeight <= BotAuthorWeightCeiling {
			count++
		}
	}
	return float64(count) / float64(len(items))
}

// crossSourceDivergence is (max-min)/2 of per-source mean polarities when
// the spread exceeds DivergenceThreshold, else 0.
func crossSourceDivergence(items []models.ScoredItem) (float64, bool) {
	sums := make(map[models.Source]float64)
	counts := make(map[models.Source]int)
	for _, it := range items {
		sums[it.Source] += it.Polarity
		counts[it.Source]++
	}
	if len(sums) < 2 {
		return 0, false
	}
	var maxMean, minMean float64
	first := true
	for src, sum := range sums {
		mean := sum / float64(counts[src])
		if first {
			maxMean, minMean = mean, mean
			first = false
			continue
		}
		if mean > maxMean {
			maxMean = mean
		}
		if mean < minMean {
			minMean = mean
		}
	}
	spread := maxMean - minMean
	if spread > DivergenceThreshold {
		return spread / 2, true
	}
	return 0, true
}

// BurstinessVarianceCeiling is the implementation-defined threshold below
// which inter-arrival variance counts as bursty. Expressed as a fraction
// of the squared mean inter-arrival interval (coefficient of variation
// squared), so it is scale-invariant across cohorts with different
// posting cadences.
const BurstinessVarianceCeiling = 0.15

// temporalBurstiness flags low-variance (regular, machine-paced)
// inter-arrival times via the coefficient of variation of the gaps.
func temporalBurstiness(items []models.ScoredItem) (float64, bool) {
	if len(items) < 3 {
		return 0, false
	}
	times := make([]time.Time, len(items))
	for i, it := range items {
		times[i] = it.CreatedAt
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	gaps := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		gaps = append(gaps, times[i].Sub(times[i-1]).Seconds())
	}
	var sum float64
	for _, g := range gaps {
		sum += g
	}
	mean := sum / float64(len(gaps))
	if mean <= 0 {
		return 1, true
	}
	var variance float64
	for _, g := range gaps {
		d := g - mean
		variance += d * d
	}
	variance /= float64(len(gaps))
	cv2 := variance / (mean * mean)
	if cv2 < BurstinessVarianceCeiling {
		return 1 - cv2/BurstinessVarianceCeiling, true
	}
	return 0, true
}

var _ domsvc.ManipulationDetector = (*Detector)(nil)

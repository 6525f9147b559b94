package usecase

import (
	"math"
	"testing"
	"time"

	"sentioracle/internal/domain/models"
)

func scoredItem(polarity, confidence, authorWeight float64) models.ScoredItem {
	return models.ScoredItem{
		Item:       models.Item{AuthorWeight: authorWeight},
		Polarity:   polarity,
		Confidence: confidence,
	}
}

func TestAggregateWeightedMean(t *testing.T) {
	agg := NewAggregator()
	items := []models.ScoredItem{
		scoredItem(1.0, 1.0, 1.0),
		scoredItem(-1.0, 1.0, 1.0),
	}
	windowEnd := time.Unix(1700000000, 0)

	sample, ok := agg.Aggregate("BTC", items, windowEnd)
	if !ok {
		t.Fatal("expected sample to be emitted")
	}
	if sample.ScoreFP != 0 {
		t.Errorf("expected score_fp 0 for balanced polarities, got %d", sample.ScoreFP)
	}
	if sample.SampleSize != 2 {
		t.Errorf("expected sample size 2, got %d", sample.SampleSize)
	}
	if sample.WindowEndTS != windowEnd.Unix() {
		t.Errorf("expected window end %d, got %d", windowEnd.Unix(), sample.WindowEndTS)
	}
}

func TestAggregateWeightsByAuthorAndConfidence(t *testing.T) {
	agg := NewAggregator()
	items := []models.ScoredItem{
		scoredItem(1.0, 1.0, 1.0),  // weight 1
		scoredItem(-1.0, 0.1, 0.1), // weight 0.01, barely pulls the mean down
	}

	sample, ok := agg.Aggregate("ETH", items, time.Now())
	if !ok {
		t.Fatal("expected sample to be emitted")
	}
	wantScore := int64(math.Round((1.0*1.0-0.01*1.0)/1.01 * models.ScaleFP))
	if sample.ScoreFP != wantScore {
		t.Errorf("expected score_fp %d, got %d", wantScore, sample.ScoreFP)
	}
}

func TestAggregateDropsOnZeroWeight(t *testing.T) {
	agg := NewAggregator()
	items := []models.ScoredItem{
		scoredItem(1.0, 0, 0),
		scoredItem(-1.0, 0, 0),
	}
	_, ok := agg.Aggregate("BTC", items, time.Now())
	if ok {
		t.Fatal("expected sample to be dropped when total weight is ~0")
	}
}

func TestAggregateEmptyInput(t *testing.T) {
	agg := NewAggregator()
	_, ok := agg.Aggregate("BTC", nil, time.Now())
	if ok {
		t.Fatal("expected no sample for empty item set")
	}
}

func TestAggregateConfidenceGrowsWithSampleSize(t *testing.T) {
	agg := NewAggregator()
	one := []models.ScoredItem{scoredItem(0.5, 0.8, 1.0)}
	many := make([]models.ScoredItem, 0, 50)
	for i := 0; i < 50; i++ {
		many = append(many, scoredItem(0.5, 0.8, 1.0))
	}

	sampleOne, ok := agg.Aggregate("BTC", one, time.Now())
	if !ok {
		t.Fatal("expected sample for n=1")
	}
	sampleMany, ok := agg.Aggregate("BTC", many, time.Now())
	if !ok {
		t.Fatal("expected sample for n=50")
	}
	if sampleMany.ConfidenceBP <= sampleOne.ConfidenceBP {
		t.Errorf("expected confidence to grow with sample size: n=1 -> %d, n=50 -> %d",
			sampleOne.ConfidenceBP, sampleMany.ConfidenceBP)
	}
	if sampleMany.ConfidenceBP > models.BasisPointsScale {
		t.Errorf("confidence_bp must not exceed %d, got %d", models.BasisPointsScale, sampleMany.ConfidenceBP)
	}
}

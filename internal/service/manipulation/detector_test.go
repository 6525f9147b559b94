package manipulation

import (
	"context"
	"testing"
	"time"

	"sentioracle/internal/domain/models"
)

func item(source models.Source, text string, authorWeight, polarity float64, createdAt time.Time) models.ScoredItem {
	return models.ScoredItem{
		Item: models.Item{
			Source:       source,
			Text:         text,
			AuthorWeight: authorWeight,
			CreatedAt:    createdAt,
		},
		Polarity: polarity,
	}
}

func TestDetectEmptyBatchScoresZero(t *testing.T) {
	d := New()
	score, breakdown, err := d.Detect(context.Background(), "BTC", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 0 {
		t.Errorf("expected score 0 for empty batch, got %f", score)
	}
	if len(breakdown) != 1 {
		t.Errorf("expected only bot_density to report on an empty batch, got %v", breakdown)
	}
}

func TestContentSimilarityFlagsNearDuplicates(t *testing.T) {
	base := time.Now()
	items := []models.ScoredItem{
		item(models.SourceTwitter, "buy the dip now before it moons to the sky", 0.5, 0, base),
		item(models.SourceTwitter, "buy the dip now before it moons to the sky!", 0.5, 0, base.Add(time.Second)),
		item(models.SourceNews, "central bank holds rates steady amid inflation data", 0.5, 0, base.Add(2*time.Second)),
	}
	score, ok := contentSimilarity(items)
	if !ok {
		t.Fatal("expected content similarity signal to activate")
	}
	if score <= 0 {
		t.Errorf("expected a positive similarity signal for near-duplicate posts, got %f", score)
	}
}

func TestContentSimilarityIgnoresDistinctText(t *testing.T) {
	base := time.Now()
	items := []models.ScoredItem{
		item(models.SourceNews, "quarterly earnings beat analyst expectations broadly", 0.5, 0, base),
		item(models.SourceNews, "regulatory filing discloses new supply chain risk", 0.5, 0, base),
	}
	score, ok := contentSimilarity(items)
	if !ok {
		t.Fatal("expected signal to evaluate with >=2 items")
	}
	if score != 0 {
		t.Errorf("expected no similarity flag for distinct text, got %f", score)
	}
}

func TestBotDensity(t *testing.T) {
	items := []models.ScoredItem{
		item(models.SourceTwitter, "a", 0.1, 0, time.Now()),
		item(models.SourceTwitter, "b", 0.2, 0, time.Now()),
		item(models.SourceTwitter, "c", 0.9, 0, time.Now()),
	}
	got := botDensity(items)
	want := 2.0 / 3.0
	if got != want {
		t.Errorf("expected bot density %f, got %f", want, got)
	}
}

func TestCrossSourceDivergenceActivatesAboveThreshold(t *testing.T) {
	base := time.Now()
	items := []models.ScoredItem{
		item(models.SourceNews, "x", 0.5, 0.9, base),
		item(models.SourceNews, "x", 0.5, 0.9, base),
		item(models.SourceTwitter, "y", 0.5, -0.9, base),
		item(models.SourceTwitter, "y", 0.5, -0.9, base),
	}
	score, ok := crossSourceDivergence(items)
	if !ok {
		t.Fatal("expected signal with >=2 distinct sources")
	}
	if score <= 0 {
		t.Errorf("expected positive divergence for polarized sources, got %f", score)
	}
}

func TestCrossSourceDivergenceBelowThresholdIsZero(t *testing.T) {
	base := time.Now()
	items := []models.ScoredItem{
		item(models.SourceNews, "x", 0.5, 0.1, base),
		item(models.SourceTwitter, "y", 0.5, 0.15, base),
	}
	score, ok := crossSourceDivergence(items)
	if !ok {
		t.Fatal("expected signal with >=2 distinct sources")
	}
	if score != 0 {
		t.Errorf("expected zero divergence below threshold, got %f", score)
	}
}

func TestTemporalBurstinessFlagsRegularCadence(t *testing.T) {
	base := time.Now()
	items := make([]models.ScoredItem, 0, 10)
	for i := 0; i < 10; i++ {
		items = append(items, item(models.SourceTwitter, "x", 0.5, 0, base.Add(time.Duration(i)*time.Second)))
	}
	score, ok := temporalBurstiness(items)
	if !ok {
		t.Fatal("expected signal with >=3 items")
	}
	if score <= 0.9 {
		t.Errorf("expected near-1 burstiness for perfectly regular cadence, got %f", score)
	}
}

func TestTemporalBurstinessIgnoresIrregularCadence(t *testing.T) {
	base := time.Now()
	gaps := []int{1, 97, 5, 120, 2, 88}
	items := make([]models.ScoredItem, 0, len(gaps)+1)
	cursor := base
	items = append(items, item(models.SourceTwitter, "x", 0.5, 0, cursor))
	for _, g := range gaps {
		cursor = cursor.Add(time.Duration(g) * time.Second)
		items = append(items, item(models.SourceTwitter, "x", 0.5, 0, cursor))
	}
	score, ok := temporalBurstiness(items)
	if !ok {
		t.Fatal("expected signal with >=3 items")
	}
	if score != 0 {
		t.Errorf("expected zero burstiness for irregular cadence, got %f", score)
	}
}

func TestVolumeSpikeNeedsRollingHistory(t *testing.T) {
	d := New()
	if _, ok := d.volumeSpike("BTC", 10); ok {
		t.Fatal("expected no volume-spike signal before any history accrues")
	}
	if _, ok := d.volumeSpike("BTC", 12); ok {
		t.Fatal("expected no volume-spike signal with a single history point")
	}
	score, ok := d.volumeSpike("BTC", 10_000)
	if !ok {
		t.Fatal("expected a volume-spike signal once >=2 history points exist")
	}
	if score <= 0.5 {
		t.Errorf("expected a high volume-spike score for a 1000x jump, got %f", score)
	}
}

func TestDetectCombinesActiveSignalsOnly(t *testing.T) {
	d := New()
	base := time.Now()
	items := []models.ScoredItem{
		item(models.SourceNews, "a", 0.9, 0, base),
		item(models.SourceNews, "b", 0.9, 0, base.Add(time.Second)),
	}
	score, breakdown, err := d.Detect(context.Background(), "BTC", items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := breakdown["volume_spike"]; ok {
		t.Error("did not expect volume_spike on first-ever call with no history")
	}
	if _, ok := breakdown["temporal_burstiness"]; ok {
		t.Error("did not expect temporal_burstiness with fewer than 3 items")
	}
	if score < 0 || score > 1 {
		t.Errorf("expected combined score in [0,1], got %f", score)
	}
}

package scorer

import (
	"context"
	"errors"
	"testing"
)

type stubPrimary struct {
	polarity, confidence float64
	err                  error
}

func (s stubPrimary) Score(_ context.Context, _ string) (float64, float64, error) {
	return s.polarity, s.confidence, s.err
}

func TestEnsembleFusesPrimaryAndFallback(t *testing.T) {
	primary := stubPrimary{polarity: 1.0, confidence: 1.0}
	fallback := NewLexicon()
	e := NewEnsemble(primary, fallback, 0.7, 0.6, nil)

	polarity, confidence, err := e.Score(context.Background(), "neutral text with no lexicon hits")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// fallback polarity/confidence for unrecognized text is (0, 0.1);
	// fused: 0.7*1.0 + 0.3*0 = 0.7
	if polarity != 0.7 {
		t.Errorf("expected fused polarity 0.7, got %f", polarity)
	}
	wantConfidence := 0.7*1.0 + 0.3*0.1
	if confidence != wantConfidence {
		t.Errorf("expected fused confidence %f, got %f", wantConfidence, confidence)
	}
}

func TestEnsembleDegradesOnPrimaryFailure(t *testing.T) {
	primary := stubPrimary{err: errors.New("primary unreachable")}
	fallback := NewLexicon()
	e := NewEnsemble(primary, fallback, 0.7, 0.6, nil)

	polarity, confidence, err := e.Score(context.Background(), "this is bullish")
	if err != nil {
		t.Fatalf("expected degraded mode to swallow the primary error, got %v", err)
	}
	fp, fc := fallback.Score("this is bullish")
	if polarity != fp {
		t.Errorf("expected degraded polarity to equal fallback polarity %f, got %f", fp, polarity)
	}
	wantConfidence := clamp(fc*0.6, 0, 1)
	if confidence != wantConfidence {
		t.Errorf("expected degraded confidence %f, got %f", wantConfidence, confidence)
	}
}

func TestEnsembleClampsFusedValues(t *testing.T) {
	primary := stubPrimary{polarity: 1.0, confidence: 1.0}
	fallback := NewLexicon()
	e := NewEnsemble(primary, fallback, 1.5, 0.6, nil) // misconfigured weight > 1

	polarity, confidence, err := e.Score(context.Background(), "bullish")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if polarity > 1 || polarity < -1 {
		t.Errorf("expected polarity clamped to [-1,1], got %f", polarity)
	}
	if confidence > 1 || confidence < 0 {
		t.Errorf("expected confidence clamped to [0,1], got %f", confidence)
	}
}

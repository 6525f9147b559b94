package scorer

import (
	"math"
	"testing"
)

func TestLexiconScorePositive(t *testing.T) {
	l := NewLexicon()
	polarity, confidence := l.Score("this coin is bullish and strong")
	if polarity <= 0 {
		t.Errorf("expected positive polarity, got %f", polarity)
	}
	if confidence <= 0 {
		t.Errorf("expected nonzero confidence, got %f", confidence)
	}
}

func TestLexiconScoreNegative(t *testing.T) {
	l := NewLexicon()
	polarity, _ := l.Score("total crash, everyone is dumping, it's a scam")
	if polarity >= 0 {
		t.Errorf("expected negative polarity, got %f", polarity)
	}
}

func TestLexiconNegationFlipsPolarity(t *testing.T) {
	l := NewLexicon()
	positive, _ := l.Score("this is good")
	negated, _ := l.Score("this is not good")
	if math.Signbit(positive) == math.Signbit(negated) {
		t.Errorf("expected negation to flip sign: positive=%f negated=%f", positive, negated)
	}
}

func TestLexiconIntensityBoostsMagnitude(t *testing.T) {
	l := NewLexicon()
	plain, _ := l.Score("good")
	intense, _ := l.Score("very good")
	if intense <= plain {
		t.Errorf("expected intensifier to increase magnitude: plain=%f intense=%f", plain, intense)
	}
}

func TestLexiconNoRecognizedTermsLowConfidence(t *testing.T) {
	l := NewLexicon()
	polarity, confidence := l.Score("the quick brown fox jumps over")
	if polarity != 0 {
		t.Errorf("expected zero polarity with no recognized terms, got %f", polarity)
	}
	if confidence != 0.1 {
		t.Errorf("expected fixed low confidence 0.1 for no recognized terms, got %f", confidence)
	}
}

func TestLexiconEmptyTextIsNeutral(t *testing.T) {
	l := NewLexicon()
	polarity, confidence := l.Score("")
	if polarity != 0 || confidence != 0 {
		t.Errorf("expected (0,0) for empty text, got (%f,%f)", polarity, confidence)
	}
}

func TestLexiconPolarityBounded(t *testing.T) {
	l := NewLexicon()
	polarity, confidence := l.Score("bullish moon pump good great gain profit win up strong")
	if polarity < -1 || polarity > 1 {
		t.Errorf("polarity out of bounds: %f", polarity)
	}
	if confidence < 0 || confidence > 1 {
		t.Errorf("confidence out of bounds: %f", confidence)
	}
}

package scorer

import (
	"strings"
	"unicode"
)

// Lexicon is the deterministic fallback scorer: a word-polarity table with
// negation handling and intensity boosts, structured after the rule-based
// branch of the reference NLP analyzer. No network calls, no model
// weights beyond the table itself, so Score is bit-identical for the same
// text and table every time.
type Lexicon struct {
	weights   map[string]float64
	negators  map[string]struct{}
	intensity map[string]float64
}

// NewLexicon builds the fallback scorer with a small default sentiment
// table; callers can extend it via WithWeights for domain-specific terms.
func NewLexicon() *Lexicon {
	l := &Lexicon{
		weights: map[string]float64{
			"bullish": 0.8, "moon": 0.7, "pump": 0.6, "good": 0.4, "great": 0.6,
			"gain": 0.5, "profit": 0.5, "win": 0.5, "up": 0.3, "strong": 0.4,
			"bearish": -0.8, "dump": -0.7, "crash": -0.9, "bad": -0.4, "scam": -0.9,
			"loss": -0.5, "rug": -0.9, "down": -0.3, "weak": -0.4, "fear": -0.5,
		},
		negators:  map[string]struct{}{"not": {}, "no": {}, "never": {}, "n't": {}},
		intensity: map[string]float64{"very": 1.4, "extremely": 1.6, "slightly": 0.6},
	}
	return l
}

// WithWeights merges additional term weights into the table.
func (l *Lexicon) WithWeights(extra map[string]float64) *Lexicon {
	for k, v := range extra {
		l.weights[k] = v
	}
	return l
}

// Score implements the fallback half of the ensemble. Confidence scales
// with the fraction of recognized tokens and an exclamation/caps
// intensity signal, both deterministic functions of the input text.
func (l *Lexicon) Score(text string) (polarity float64, confidence float64) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return 0, 0
	}

	var sum float64
	var hits int
	multiplier := 1.0
	negate := false

	for _, tok := range tokens {
		lower := strings.ToLower(tok)
		if _, ok := l.negators[lower]; ok {
			negate = true
			continue
		}
		if m, ok := l.intensity[lower]; ok {
			multiplier = m
			continue
		}
		if w, ok := l.weights[lower]; ok {
			if negate {
				w = -w
				negate = false
			}
			sum += w * multiplier
			multiplier = 1.0
			hits++
		}
	}

	if hits == 0 {
		return 0, 0.1
	}

	polarity = clamp(sum/float64(hits), -1, 1)
	confidence = clamp(float64(hits)/float64(len(tokens))+intensityBoost(text), 0, 1)
	return polarity, confidence
}

func intensityBoost(text string) float64 {
	excl := strings.Count(text, "!")
	caps := 0
	letters := 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				caps++
			}
		}
	}
	boost := 0.05 * float64(excl)
	if letters > 0 && float64(caps)/float64(letters) > 0.5 {
		boost += 0.1
	}
	if boost > 0.3 {
		boost = 0.3
	}
	return boost
}

func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package scorer

import (
	"context"

	domsvc "sentioracle/internal/domain/service"
	"sentioracle/pkg/logger"
)

// Primary is the opaque transformer classifier half of the ensemble.
type Primary interface {
	Score(ctx context.Context, text string) (polarity, confidence float64, err error)
}

// Ensemble fuses a primary transformer classifier with a deterministic
// lexicon fallback per the fusion rule:
//
//	polarity   = w*p_primary + (1-w)*p_fallback
//	confidence = w*c_primary + (1-w)*c_fallback
//
// On primary failure w is forced to 0 for that call and confidence is
// scaled by the degraded-mode factor.
type Ensemble struct {
	primary        Primary
	fallback       *Lexicon
	primaryWeight  float64
	degradedFactor float64
	log            *logger.Logger
}

// NewEnsemble builds the Scorer. primaryWeight is w (default 0.7 at the
// config layer); degradedFactor is applied to confidence when the
// primary is unavailable (default 0.6).
func NewEnsemble(primary Primary, fallback *Lexicon, primaryWeight, degradedFactor float64, log *logger.Logger) *Ensemble {
	return &Ensemble{
		primary:        primary,
		fallback:       fallback,
		primaryWeight:  primaryWeight,
		degradedFactor: degradedFactor,
		log:            log,
	}
}

// Score implements domain/service.Scorer.
func (e *Ensemble) Score(ctx context.Context, text string) (float64, float64, error) {
	fp, fc := e.fallback.Score(text)

	w := e.primaryWeight
	pp, pc, err := e.primary.Score(ctx, text)
	if err != nil {
		if e.log != nil {
			e.log.Warn("scorer primary unavailable, degraded mode", logger.Error(err))
		}
		w = 0
		polarity := fp
		confidence := clamp(fc*e.degradedFactor, 0, 1)
		return polarity, confidence, nil
	}

	polarity := w*pp + (1-w)*fp
	confidence := w*pc + (1-w)*fc
	return clamp(polarity, -1, 1), clamp(confidence, 0, 1), nil
}

var _ domsvc.Scorer = (*Ensemble)(nil)

package scorer

import (
	"context"
	"fmt"
	"time"
)

// PrimaryHTTP is the opaque transformer classifier, reached as an HTTP
// call to an external model-serving microservice — the same shape as the
// teacher's HTTPEdgeScorer/HTTPAnomalyDetector.
type PrimaryHTTP struct {
	base *httpServiceBase
}

// NewPrimaryHTTP builds the primary scorer client.
func NewPrimaryHTTP(baseURL string, timeout time.Duration) *PrimaryHTTP {
	return &PrimaryHTTP{base: newHTTPServiceBase(baseURL, timeout)}
}

type primaryRequest struct {
	Text string `json:"text"`
}

type primaryResponse struct {
	Polarity   float64 `json:"polarity"`
	Confidence float64 `json:"confidence"`
}

// Score calls the remote classifier. Errors here trigger the ensemble's
// degraded-mode fallback in Ensemble.Score.
func (p *PrimaryHTTP) Score(ctx context.Context, text string) (float64, float64, error) {
	var resp primaryResponse
	if err := p.base.postJSON(ctx, "/score", primaryRequest{Text: text}, &resp); err != nil {
		return 0, 0, fmt.Errorf("primary scorer: %w", err)
	}
	if resp.Polarity < -1 {
		resp.Polarity = -1
	} else if resp.Polarity > 1 {
		resp.Polarity = 1
	}
	if resp.Confidence < 0 {
		resp.Confidence = 0
	} else if resp.Confidence > 1 {
		resp.Confidence = 1
	}
	return resp.Polarity, resp.Confidence, nil
}

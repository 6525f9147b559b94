// Package middleware holds the bounded-queue backpressure stage that
// sits between Dedup and Aggregator: a worker pool scores Items
// concurrently, buffering under load and dropping rather than blocking
// once the buffer is full, the same shape as the teacher's realtime
// trade pipeline adapted from a single-processor retry buffer to a
// fan-out worker pool.
package middleware

import (
	"context"
	"runtime"
	"sync"

	"sentioracle/internal/domain/models"
	domrepo "sentioracle/internal/domain/repository"
	domsvc "sentioracle/internal/domain/service"
)

// DefaultBufferSize is the default bounded-queue capacity between
// pipeline stages.
const DefaultBufferSize = 1024

// ScoringPipeline fans deduplicated Items out to a worker pool running
// Scorer.Score, collecting ScoredItems for the Aggregator. Enqueue is
// non-blocking: once the buffer is full, new items are dropped and
// counted rather than stalling the Collector stage feeding it.
type ScoringPipeline struct {
	scorer  domsvc.Scorer
	metrics domrepo.Metrics
	workers int
	bufSize int
	stage   string

	in  chan models.Item
	out chan models.ScoredItem
}

// PipelineOption configures a ScoringPipeline.
type PipelineOption func(*ScoringPipeline)

// WithWorkers overrides the worker pool size (default min(cpu, 8)).
func WithWorkers(n int) PipelineOption {
	return func(p *ScoringPipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithBufferSize overrides the bounded-queue capacity.
func WithBufferSize(n int) PipelineOption {
	return func(p *ScoringPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// NewScoringPipeline builds a pipeline bound to one Scorer. stage names
// the queue for metrics (e.g. "score").
func NewScoringPipeline(scorer domsvc.Scorer, metrics domrepo.Metrics, stage string, opts ...PipelineOption) *ScoringPipeline {
	p := &ScoringPipeline{
		scorer:  scorer,
		metrics: metrics,
		workers: defaultWorkerCount(),
		bufSize: DefaultBufferSize,
		stage:   stage,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.in = make(chan models.Item, p.bufSize)
	p.out = make(chan models.ScoredItem, p.bufSize)
	return p
}

func defaultWorkerCount() int {
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Enqueue offers an Item to the pipeline, dropping it if the buffer is
// full. Returns false when dropped.
func (p *ScoringPipeline) Enqueue(it models.Item) bool {
	select {
	case p.in <- it:
		p.metrics.SetQueueDepth(p.stage, len(p.in))
		return true
	default:
		p.metrics.RecordQueueDrop(p.stage)
		return false
	}
}

// Out returns the channel of scored items; callers range over it until
// Close is observed (the channel closes once all workers exit after
// Run's context is cancelled and the input channel drains).
func (p *ScoringPipeline) Out() <-chan models.ScoredItem { return p.out }

// Run starts the worker pool and blocks until ctx is cancelled and all
// in-flight work has drained, then closes Out().
func (p *ScoringPipeline) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go func() {
			defer wg.Done()
			p.worker(ctx)
		}()
	}
	wg.Wait()
	close(p.out)
}

// CloseInput stops accepting new items; workers drain whatever remains
// buffered before Run returns.
func (p *ScoringPipeline) CloseInput() { close(p.in) }

func (p *ScoringPipeline) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case it, ok := <-p.in:
			if !ok {
				return
			}
			polarity, confidence, err := p.scorer.Score(ctx, it.Text)
			if err != nil {
				p.metrics.RecordError("scoring_pipeline_score")
				continue
			}
			scored := models.ScoredItem{Item: it, Polarity: polarity, Confidence: confidence}
			select {
			case p.out <- scored:
			case <-ctx.Done():
				return
			}
		}
	}
}

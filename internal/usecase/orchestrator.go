package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sentioracle/internal/domain/models"
	domrepo "sentioracle/internal/domain/repository"
	domsvc "sentioracle/internal/domain/service"
	"sentioracle/internal/middleware"
	"sentioracle/internal/service/dedup"
	"sentioracle/pkg/logger"
)

// CycleEpsilon is the safety margin subtracted from the period when
// computing a cycle's deadline D = now + P - epsilon.
const CycleEpsilon = 10 * time.Second

// VetoThresholdDefault is T in spec.md's manipulation veto rule.
const VetoThresholdDefault = 0.7

// Orchestrator drives one cohort's fixed-period cycle: fan out to
// Collectors, dedup, score, aggregate, screen for manipulation, and hand
// the survivors to the Submitter as one job. Modeled on the teacher's
// pkg/server.App lifecycle (start components, block, ordered shutdown)
// and its ticker-driven collector loop, but cycle-scoped rather than
// stream-scoped: each tick is one self-contained unit of work that is
// either fully processed or dropped, never queued.
type Orchestrator struct {
	cohort  string
	assets  []string
	period  time.Duration

	collectors     []domsvc.Collector
	dedup          *dedup.Index
	dedupCompanion *dedup.RedisCompanion
	scorer         domsvc.Scorer
	aggregator *Aggregator
	detector   domsvc.ManipulationDetector
	submitter  domsvc.Submitter

	vetoThreshold float64
	chainID       int64
	contractAddr  string
	gasCeiling    uint64
	scoreWorkers  int
	scoreBufSize  int

	publisher  domrepo.Publisher
	metrics    domrepo.Metrics
	cycleStore domrepo.CycleMetricsStore
	log        *logger.Logger

	mu      sync.Mutex
	running bool
}

// Config collects an Orchestrator's construction parameters.
type Config struct {
	Cohort        string
	Assets        []string
	Period        time.Duration
	VetoThreshold float64
	ChainID       int64
	ContractAddr  string
	GasCeiling    uint64
	ScoreWorkers  int
	ScoreBufSize  int
}

// New builds an Orchestrator for one cohort. publisher and cycleStore may
// be nil: both are optional fan-out/audit surfaces, not required for
// correctness of the pipeline itself.
func New(
	cfg Config,
	collectors []domsvc.Collector,
	dedupIdx *dedup.Index,
	scorer domsvc.Scorer,
	aggregator *Aggregator,
	detector domsvc.ManipulationDetector,
	submitter domsvc.Submitter,
	publisher domrepo.Publisher,
	metrics domrepo.Metrics,
	cycleStore domrepo.CycleMetricsStore,
	log *logger.Logger,
) *Orchestrator {
	threshold := cfg.VetoThreshold
	if threshold <= 0 {
		threshold = VetoThresholdDefault
	}
	return &Orchestrator{
		cohort:        cfg.Cohort,
		assets:        cfg.Assets,
		period:        cfg.Period,
		collectors:    collectors,
		dedup:         dedupIdx,
		scorer:        scorer,
		aggregator:    aggregator,
		detector:      detector,
		submitter:     submitter,
		vetoThreshold: threshold,
		chainID:       cfg.ChainID,
		contractAddr:  cfg.ContractAddr,
		gasCeiling:    cfg.GasCeiling,
		scoreWorkers:  cfg.ScoreWorkers,
		scoreBufSize:  cfg.ScoreBufSize,
		publisher:     publisher,
		metrics:       metrics,
		cycleStore:    cycleStore,
		log:           log,
	}
}

// SetDedupCompanion attaches a durable Redis-backed mirror of the
// in-memory dedup Index. Optional: when set, every newly-seen item id is
// also written through to Redis so a process restart can rehydrate
// instead of re-scoring a full horizon's worth of items.
func (o *Orchestrator) SetDedupCompanion(c *dedup.RedisCompanion) { o.dedupCompanion = c }

// Run blocks, firing one cycle per period-aligned tick, until ctx is
// cancelled. A cycle still in flight when the next tick fires is left
// to finish on its own goroutine; the tick that found it busy is
// dropped rather than queued, per spec.md's "coalesce, never queue"
// late-cycle rule.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.period)
	defer ticker.Stop()

	o.log.Info("orchestrator started", logger.String("cohort", o.cohort), logger.Duration("period", o.period))

	for {
		select {
		case <-ctx.Done():
			o.log.Info("orchestrator stopping", logger.String("cohort", o.cohort))
			return
		case tick := <-ticker.C:
			if !o.tryBeginCycle() {
				o.log.Warn("late cycle dropped", logger.String("cohort", o.cohort))
				o.metrics.RecordError("cycle_coalesced")
				continue
			}
			go func(start time.Time) {
				defer o.endCycle()
				o.runCycle(ctx, start)
			}(tick)
		}
	}
}

func (o *Orchestrator) tryBeginCycle() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return false
	}
	o.running = true
	return true
}

func (o *Orchestrator) endCycle() {
	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
}

// runCycle executes one full collect->score->aggregate->screen->submit
// pass, bounded by a deadline D = now + P - epsilon.
func (o *Orchestrator) runCycle(parent context.Context, start time.Time) {
	deadline := start.Add(o.period).Add(-CycleEpsilon)
	cycleCtx, cancel := context.WithDeadline(parent, deadline)
	defer cancel()

	cycleStart := time.Now()
	windowStart := start.Add(-o.period)
	windowEnd := start

	items := o.collect(cycleCtx, windowStart, windowEnd)
	items = o.dedupFilter(cycleCtx, items, start)
	scored := o.score(cycleCtx, items)
	perAsset := groupByAsset(scored)
	samples := o.aggregate(perAsset, windowEnd)
	surviving, vetoed := o.screen(cycleCtx, samples, perAsset)

	broadcasts := 0
	if len(surviving) > 0 {
		job := models.SubmissionJob{
			Samples:       surviving,
			ChainID:       o.chainID,
			ContractAddr:  o.contractAddr,
			GasCeiling:    o.gasCeiling,
			CycleDeadline: deadline.Unix(),
		}
		hashes, err := o.submitter.Submit(cycleCtx, job)
		if err != nil {
			o.log.Error("submit failed", logger.String("cohort", o.cohort), logger.Error(err))
			o.metrics.RecordError("submit_failed")
		}
		broadcasts = len(hashes)
		o.publish(cycleCtx, surviving, hashes)
	}

	o.metrics.RecordCycle(o.cohort, time.Since(cycleStart).Seconds())
	if o.cycleStore != nil {
		if err := o.cycleStore.RecordCycle(cycleCtx, o.cohort, start, len(samples), vetoed, broadcasts); err != nil {
			o.log.Warn("cycle metrics store append failed", logger.Error(err))
		}
	}

	if cycleCtx.Err() != nil {
		o.log.Warn("cycle timed out before settling", logger.String("cohort", o.cohort))
		o.metrics.RecordError("cycle_timeout")
	}
}

// collect fans out to every registered Collector concurrently; a
// collector's error is logged and the source is skipped for this cycle
// rather than failing the whole cycle.
func (o *Orchestrator) collect(ctx context.Context, windowStart, windowEnd time.Time) []models.Item {
	var (
		mu  sync.Mutex
		all []models.Item
		wg  sync.WaitGroup
	)
	wg.Add(len(o.collectors))
	for _, c := range o.collectors {
		go func(c domsvc.Collector) {
			defer wg.Done()
			items, _, err := c.Collect(ctx, windowStart, windowEnd, o.assets)
			if err != nil {
				o.log.Warn("collector failed", logger.String("source", string(c.Source())), logger.Error(err))
				o.metrics.RecordError("collector_failed")
				return
			}
			mu.Lock()
			all = append(all, items...)
			mu.Unlock()
		}(c)
	}
	wg.Wait()
	return all
}

func (o *Orchestrator) dedupFilter(ctx context.Context, items []models.Item, now time.Time) []models.Item {
	if o.dedup == nil {
		return items
	}
	out := make([]models.Item, 0, len(items))
	for _, it := range items {
		if o.dedup.SeenOrMark(it.ID, now) {
			continue
		}
		out = append(out, it)
		if o.dedupCompanion != nil {
			if _, err := o.dedupCompanion.MarkIfNew(ctx, it.ID); err != nil {
				o.log.Warn("dedup companion write-through failed", logger.Error(err))
			}
		}
	}
	o.metrics.SetDedupSize(o.dedup.Len())
	return out
}

// score runs the shared scoring worker pool over this cycle's items and
// collects every successfully scored item before returning, so the
// pipeline stays a per-cycle pass rather than a steady-state stream.
func (o *Orchestrator) score(ctx context.Context, items []models.Item) []models.ScoredItem {
	pipeline := middleware.NewScoringPipeline(o.scorer, o.metrics, "score",
		middleware.WithWorkers(o.scoreWorkers), middleware.WithBufferSize(o.scoreBufSize))

	done := make(chan struct{})
	go func() {
		pipeline.Run(ctx)
		close(done)
	}()

	for _, it := range items {
		if !pipeline.Enqueue(it) {
			o.log.Warn("scoring queue full, item dropped", logger.String("id", it.ID))
		}
	}
	pipeline.CloseInput()

	var scored []models.ScoredItem
	for s := range pipeline.Out() {
		scored = append(scored, s)
	}
	<-done
	return scored
}

func groupByAsset(scored []models.ScoredItem) map[string][]models.ScoredItem {
	perAsset := make(map[string][]models.ScoredItem)
	for _, s := range scored {
		for _, tag := range s.AssetTags {
			perAsset[tag] = append(perAsset[tag], s)
		}
	}
	return perAsset
}

func (o *Orchestrator) aggregate(perAsset map[string][]models.ScoredItem, windowEnd time.Time) []models.AssetSample {
	samples := make([]models.AssetSample, 0, len(o.assets))
	for _, asset := range o.assets {
		items, ok := perAsset[asset]
		if !ok {
			continue
		}
		sample, ok := o.aggregator.Aggregate(asset, items, windowEnd)
		if !ok {
			continue
		}
		samples = append(samples, sample)
		o.metrics.RecordSamplesEmitted(asset, int(sample.SampleSize))
	}
	return samples
}

// screen runs the Manipulation Detector over each asset's current-cycle
// items, attaching and vetoing per spec.md's T=0.7 threshold rule.
func (o *Orchestrator) screen(ctx context.Context, samples []models.AssetSample, perAsset map[string][]models.ScoredItem) (surviving []models.AssetSample, vetoed int) {
	for _, sample := range samples {
		score, breakdown, err := o.detector.Detect(ctx, sample.Asset, perAsset[sample.Asset])
		if err != nil {
			o.log.Warn("manipulation detector failed, submitting unscreened", logger.String("asset", sample.Asset), logger.Error(err))
			surviving = append(surviving, sample)
			continue
		}
		sample.ManipulationScore = score
		if score > o.vetoThreshold {
			vetoed++
			o.metrics.RecordManipulationVeto(sample.Asset)
			o.log.Warn("sample vetoed for manipulation",
				logger.String("asset", sample.Asset), logger.Any("breakdown", breakdown))
			continue
		}
		surviving = append(surviving, sample)
	}
	return surviving, vetoed
}

func (o *Orchestrator) publish(ctx context.Context, samples []models.AssetSample, hashes []string) {
	if o.publisher == nil {
		return
	}
	for i, sample := range samples {
		if i >= len(hashes) {
			break
		}
		if err := o.publisher.PublishUpdate(ctx, sample.Asset, sample, hashes[i]); err != nil {
			o.log.Warn("publish failed", logger.String("asset", sample.Asset), logger.Error(err))
			o.metrics.RecordError(fmt.Sprintf("publish_failed_%s", sample.Asset))
		}
	}
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain/repository.Metrics using Prometheus.
type Recorder struct {
	errorsTotal        *prometheus.CounterVec
	cycleDuration      *prometheus.HistogramVec
	samplesEmitted     *prometheus.CounterVec
	manipulationVetoes *prometheus.CounterVec
	submitSkipped      *prometheus.CounterVec
	broadcasts         *prometheus.CounterVec
	dedupSize          prometheus.Gauge
	nonceGap           *prometheus.GaugeVec
	queueDepth         *prometheus.GaugeVec
	queueDrops         *prometheus.CounterVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentioracle_errors_total",
				Help: "Total number of errors encountered, by kind",
			},
			[]string{"kind"},
		),
		cycleDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentioracle_cycle_duration_seconds",
				Help:    "Duration of a full collect-score-aggregate-submit cycle",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"cohort"},
		),
		samplesEmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentioracle_samples_emitted_total",
				Help: "Total AssetSamples produced by the aggregator, by asset",
			},
			[]string{"asset"},
		),
		manipulationVetoes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentioracle_manipulation_vetoes_total",
				Help: "Total samples vetoed by the manipulation detector, by asset",
			},
			[]string{"asset"},
		),
		submitSkipped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentioracle_submit_skipped_total",
				Help: "Total samples skipped before broadcast, by asset and reason",
			},
			[]string{"asset", "reason"},
		),
		broadcasts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentioracle_broadcasts_total",
				Help: "Total on-chain update transactions broadcast, by asset",
			},
			[]string{"asset"},
		),
		dedupSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sentioracle_dedup_index_size",
				Help: "Current number of entries held in the dedup index",
			},
		),
		nonceGap: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sentioracle_nonce_gap",
				Help: "Local next-nonce minus chain pending nonce, by signer address",
			},
			[]string{"signer"},
		),
		queueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sentioracle_queue_depth",
				Help: "Current depth of a bounded pipeline queue, by stage",
			},
			[]string{"stage"},
		),
		queueDrops: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentioracle_queue_drops_total",
				Help: "Total items dropped from a bounded pipeline queue, by stage",
			},
			[]string{"stage"},
		),
	}
}

// RecordError implements domain/repository.Metrics.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordCycle implements domain/repository.Metrics.
func (r *Recorder) RecordCycle(cohort string, seconds float64) {
	r.cycleDuration.WithLabelValues(cohort).Observe(seconds)
}

// RecordSamplesEmitted implements domain/repository.Metrics.
func (r *Recorder) RecordSamplesEmitted(asset string, n int) {
	r.samplesEmitted.WithLabelValues(asset).Add(float64(n))
}

// RecordManipulationVeto implements domain/repository.Metrics.
func (r *Recorder) RecordManipulationVeto(asset string) {
	r.manipulationVetoes.WithLabelValues(asset).Inc()
}

// RecordSubmitSkipped implements domain/repository.Metrics.
func (r *Recorder) RecordSubmitSkipped(asset, reason string) {
	r.submitSkipped.WithLabelValues(asset, reason).Inc()
}

// RecordBroadcast implements domain/repository.Metrics.
func (r *Recorder) RecordBroadcast(asset string) {
	r.broadcasts.WithLabelValues(asset).Inc()
}

// SetDedupSize implements domain/repository.Metrics.
func (r *Recorder) SetDedupSize(n int) {
	r.dedupSize.Set(float64(n))
}

// SetNonceGap implements domain/repository.Metrics.
func (r *Recorder) SetNonceGap(signer string, gap int64) {
	r.nonceGap.WithLabelValues(signer).Set(float64(gap))
}

// SetQueueDepth implements domain/repository.Metrics.
func (r *Recorder) SetQueueDepth(stage string, n int) {
	r.queueDepth.WithLabelValues(stage).Set(float64(n))
}

// RecordQueueDrop implements domain/repository.Metrics.
func (r *Recorder) RecordQueueDrop(stage string) {
	r.queueDrops.WithLabelValues(stage).Inc()
}

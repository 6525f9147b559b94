package repository

import (
	"context"
	"time"

	"sentioracle/internal/domain/models"
)

// Metrics records counters/gauges/histograms for every observable surface
// named in the error taxonomy and the pipeline stages.
type Metrics interface {
	RecordError(kind string)
	RecordCycle(cohort string, seconds float64)
	RecordSamplesEmitted(asset string, n int)
	RecordManipulationVeto(asset string)
	RecordSubmitSkipped(asset, reason string)
	RecordBroadcast(asset string)
	SetDedupSize(n int)
	SetNonceGap(signer string, gap int64)
	SetQueueDepth(stage string, n int)
	RecordQueueDrop(stage string)
}

// TxLogStore persists the Submitter's transaction-watcher log so that a
// restart can reconcile in-flight nonces instead of re-broadcasting blind.
type TxLogStore interface {
	Init(ctx context.Context) error
	Append(ctx context.Context, rec models.TxRecord) error
	// Recent returns up to limit records at or after since, newest first.
	// A zero since returns the most recent records with no lower bound.
	Recent(ctx context.Context, signer string, since time.Time, limit int) ([]models.TxRecord, error)
	Close() error
}

// CycleMetricsStore persists one audit row per completed cycle: counts,
// timings, and manipulation-signal breakdowns, for offline review.
type CycleMetricsStore interface {
	Init(ctx context.Context) error
	RecordCycle(ctx context.Context, cohort string, startedAt time.Time, samples int, vetoed int, broadcasts int) error
	Close() error
}

// Publisher fans out confirmed on-chain updates to downstream consumers.
type Publisher interface {
	PublishUpdate(ctx context.Context, asset string, sample models.AssetSample, txHash string) error
	Close() error
}

// CredentialStore resolves per-source collector credentials and signer key
// material, loaded at init and optionally re-read on a reload signal.
type CredentialStore interface {
	CollectorCredential(ctx context.Context, source models.Source) (string, error)
	SignerKey(ctx context.Context) ([]byte, error)
}

package service

import (
	"context"
	"time"

	"sentioracle/internal/domain/models"
)

// Collector fetches a bounded batch of items for the given assets over a
// half-open time window. Implementations MUST NOT call Scorer or persist
// results — they are pure sources. See internal/services/collectors.
type Collector interface {
	Source() models.Source
	Collect(ctx context.Context, windowStart, windowEnd time.Time, assets []string) (items []models.Item, nextCursor string, err error)
}

// Scorer maps text to a calibrated (polarity, confidence) pair. A
// concrete ensemble lives in internal/service/scorer.
type Scorer interface {
	Score(ctx context.Context, text string) (polarity float64, confidence float64, err error)
}

// ManipulationDetector computes a manipulation_score in [0,1] for one
// asset's current-cycle item batch, given up to K prior cycles of
// rolling history.
type ManipulationDetector interface {
	Detect(ctx context.Context, asset string, items []models.ScoredItem) (score float64, breakdown map[string]float64, err error)
}

// Signer abstracts an ECDSA producer: local in-memory key or remote
// HSM/KMS. Never returns key material; digest is the 32-byte hash of the
// canonical transaction encoding.
type Signer interface {
	Address() string
	Sign(ctx context.Context, digest [32]byte) (r, s [32]byte, v byte, err error)
}

// ChainClient is the narrow JSON-RPC + ABI surface the Submitter needs.
type ChainClient interface {
	ChainID(ctx context.Context) (int64, error)
	PendingNonce(ctx context.Context, address string) (uint64, error)
	GasPrice(ctx context.Context) (uint64, error)
	EstimateGas(ctx context.Context, to string, data []byte) (uint64, error)
	SendRawTransaction(ctx context.Context, raw []byte) (txHash string, err error)
	TransactionReceipt(ctx context.Context, txHash string) (confirmed bool, blockNum uint64, reverted bool, err error)
	Call(ctx context.Context, to string, data []byte) ([]byte, error)
	EncodeUpdateSentiment(asset string, scoreFP int64, sampleSize uint32, confidenceBP uint16) ([]byte, error)
	EncodeBatchUpdateSentiment(assets []string, scoresFP []int64, sampleSizes []uint32, confidencesBP []uint16) ([]byte, error)
}

// Submitter assembles surviving AssetSamples into a SubmissionJob, signs,
// broadcasts, and waits for confirmation.
type Submitter interface {
	Submit(ctx context.Context, job models.SubmissionJob) (txHashes []string, err error)
}

// Package submitter turns surviving AssetSamples into signed, broadcast,
// confirmed on-chain transactions: batching, nonce discipline, gas
// planning and local rate-limit/circuit-breaker pre-checks that mirror
// the oracle contract's own invariants so a doomed call never burns gas.
package submitter

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"sentioracle/internal/domain/models"
	"sentioracle/internal/domain/repository"
	domsvc "sentioracle/internal/domain/service"
	"sentioracle/pkg/logger"
)

// BatchSize is B, the on-chain batch element cap.
const BatchSize = 50

// GasMultiplier is applied to the raw gas estimate before capping at the
// configured ceiling.
const GasMultiplier = 1.2

// GasBumpFactor is the per-retry gas price increase on UNDERPRICED.
const GasBumpFactor = 1.10

// ConfirmationsRequired is N, the confirmation depth. waitForConfirmation
// does not consult it: the first receipt reported as confirmed counts as
// CONFIRMED, whatever the number of blocks above it.
const ConfirmationsRequired = 2

// MinUpdateInterval mirrors the on-chain MIN_UPDATE_INTERVAL; submitting
// sooner locally is pointless since the contract would revert it.
const MinUpdateInterval = 240

// MaxUnderpricedBumps bounds how many times one nonce is resubmitted at
// higher gas before the transaction is marked DROPPED.
const MaxUnderpricedBumps = 5

// ConfirmPollInterval is how often TransactionReceipt is polled.
const ConfirmPollInterval = 2 * time.Second

// Config holds the Submitter's tunables; all carry the spec's defaults.
type Config struct {
	MaxScoreChangeFP int64 // default 2e17
	GasCeilingWei    uint64
}

// Submitter implements domain/service.Submitter.
type Submitter struct {
	chain   domsvc.ChainClient
	signer  domsvc.Signer
	metrics repository.Metrics
	txLog   repository.TxLogStore
	log     *logger.Logger
	cfg     Config

	nonces *nonceManager

	lastAccepted map[string]acceptedState
}

type acceptedState struct {
	ts      int64
	scoreFP int64
}

// New builds a Submitter bound to one signer/chain pair.
func New(chain domsvc.ChainClient, signer domsvc.Signer, metrics repository.Metrics, txLog repository.TxLogStore, log *logger.Logger, cfg Config) *Submitter {
	return &Submitter{
		chain:        chain,
		signer:       signer,
		metrics:      metrics,
		txLog:        txLog,
		log:          log,
		cfg:          cfg,
		nonces:       newNonceManager(signer.Address()),
		lastAccepted: make(map[string]acceptedState),
	}
}

// Reconcile reads the current on-chain pending nonce for the signer
// address. Must be called once before the first Submit, and again after
// any NONCE_GAP/stall detection.
func (s *Submitter) Reconcile(ctx context.Context) error {
	return s.nonces.reconcile(ctx, s.chain)
}

// Submit implements domain/service.Submitter: pre-check, batch, sign,
// broadcast and confirm every surviving sample, in as few on-chain calls
// as the batch cap allows.
func (s *Submitter) Submit(ctx context.Context, job models.SubmissionJob) ([]string, error) {
	surviving := s.applyLocalPreChecks(job.Samples)
	if len(surviving) == 0 {
		return nil, nil
	}

	var txHashes []string
	for start := 0; start < len(surviving); start += BatchSize {
		end := start + BatchSize
		if end > len(surviving) {
			end = len(surviving)
		}
		batch := surviving[start:end]

		hash, err := s.submitBatch(ctx, job, batch)
		if err != nil {
			s.metrics.RecordError("submit_batch_failed")
			s.log.Error("submit batch failed", logger.Error(err), logger.Int("batch_size", len(batch)))
			continue
		}
		txHashes = append(txHashes, hash)
		for _, sample := range batch {
			s.lastAccepted[sample.Asset] = acceptedState{ts: sample.WindowEndTS, scoreFP: sample.ScoreFP}
			s.metrics.RecordBroadcast(sample.Asset)
		}
	}
	return txHashes, nil
}

// applyLocalPreChecks mirrors the contract's rate-limit and
// circuit-breaker checks so a doomed call is skipped before it ever
// reaches the chain.
func (s *Submitter) applyLocalPreChecks(samples []models.AssetSample) []models.AssetSample {
	maxChange := s.cfg.MaxScoreChangeFP
	if maxChange == 0 {
		maxChange = models.ScaleFP / 5 // 2e17 when ScaleFP = 1e18
	}

	out := make([]models.AssetSample, 0, len(samples))
	for _, sample := range samples {
		prev, seen := s.lastAccepted[sample.Asset]
		if seen {
			if sample.WindowEndTS < prev.ts+MinUpdateInterval {
				s.metrics.RecordSubmitSkipped(sample.Asset, "rate_limit")
				continue
			}
			delta := sample.ScoreFP - prev.scoreFP
			if delta < 0 {
				delta = -delta
			}
			if delta > maxChange {
				s.metrics.RecordSubmitSkipped(sample.Asset, "circuit_breaker")
				continue
			}
		}
		out = append(out, sample)
	}
	return out
}

// submitBatch signs and broadcasts one ≤BatchSize call, retrying on
// UNDERPRICED with a bumped gas price at the same nonce, and polling for
// a confirmed receipt until the cycle deadline.
func (s *Submitter) submitBatch(ctx context.Context, job models.SubmissionJob, batch []models.AssetSample) (string, error) {
	data, err := s.encodeBatch(batch)
	if err != nil {
		return "", fmt.Errorf("submitter: encode: %w", err)
	}

	nonce, err := s.nonces.allocate()
	if err != nil {
		return "", fmt.Errorf("submitter: %w", err)
	}

	gasLimit, err := s.estimateGas(ctx, job.ContractAddr, data)
	if err != nil {
		return "", fmt.Errorf("submitter: gas estimate: %w", err)
	}
	gasPrice, err := s.chain.GasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("submitter: gas price: %w", err)
	}

	ceiling := job.GasCeiling
	if ceiling == 0 {
		ceiling = s.cfg.GasCeilingWei
	}

	var txHash string
	for attempt := 0; attempt < MaxUnderpricedBumps; attempt++ {
		price := bumpedPrice(gasPrice, attempt, ceiling)
		raw, err := s.signTransaction(ctx, job.ChainID, job.ContractAddr, nonce, gasLimit, price, data)
		if err != nil {
			return "", fmt.Errorf("submitter: sign: %w", err)
		}

		s.logRecord(ctx, models.TxRecord{Nonce: nonce, GasPrice: price, Status: models.TxPendingBroadcast, Assets: assetNames(batch), Attempt: attempt})

		hash, err := s.chain.SendRawTransaction(ctx, raw)
		if err != nil {
			if isUnderpriced(err) {
				continue
			}
			if isNonceGap(err) {
				s.metrics.RecordError("nonce_gap")
				s.log.Warn("nonce gap detected, reconciling", logger.Error(err), logger.Uint64("nonce", nonce))
				if rerr := s.nonces.reconcile(ctx, s.chain); rerr != nil {
					return "", fmt.Errorf("submitter: nonce reconcile: %w", rerr)
				}
				nonce, err = s.nonces.allocate()
				if err != nil {
					return "", fmt.Errorf("submitter: %w", err)
				}
				continue
			}
			return "", fmt.Errorf("submitter: broadcast: %w", err)
		}
		txHash = hash

		status, err := s.waitForConfirmation(ctx, hash, job.CycleDeadline)
		if err != nil {
			return "", fmt.Errorf("submitter: confirm: %w", err)
		}
		s.logRecord(ctx, models.TxRecord{Hash: hash, Nonce: nonce, GasPrice: price, Status: status, Assets: assetNames(batch), Attempt: attempt})

		switch status {
		case models.TxConfirmed:
			return txHash, nil
		case models.TxReverted:
			s.metrics.RecordError("tx_reverted")
			return txHash, nil
		case models.TxDropped:
			continue // resubmit at bumped gas, same nonce
		}
	}
	return txHash, fmt.Errorf("submitter: exhausted underpriced bumps for nonce %d", nonce)
}

func (s *Submitter) encodeBatch(batch []models.AssetSample) ([]byte, error) {
	if len(batch) == 1 {
		sample := batch[0]
		return s.chain.EncodeUpdateSentiment(sample.Asset, sample.ScoreFP, uint32(sample.SampleSize), uint16(sample.ConfidenceBP))
	}
	assets := make([]string, len(batch))
	scores := make([]int64, len(batch))
	sizes := make([]uint32, len(batch))
	confs := make([]uint16, len(batch))
	for i, sample := range batch {
		assets[i] = sample.Asset
		scores[i] = sample.ScoreFP
		sizes[i] = uint32(sample.SampleSize)
		confs[i] = uint16(sample.ConfidenceBP)
	}
	return s.chain.EncodeBatchUpdateSentiment(assets, scores, sizes, confs)
}

func (s *Submitter) estimateGas(ctx context.Context, contractAddr string, data []byte) (uint64, error) {
	raw, err := s.chain.EstimateGas(ctx, contractAddr, data)
	if err != nil {
		s.log.Warn("gas estimation failed, using fallback", logger.Error(err))
		raw = 150_000
	}
	return uint64(float64(raw) * GasMultiplier), nil
}

// signTransaction builds a legacy transaction targeting the oracle
// contract, hands its EIP-155 signing hash to the Signer, and reattaches
// the signature, returning the RLP-encoded signed transaction.
func (s *Submitter) signTransaction(ctx context.Context, chainID int64, contractAddr string, nonce, gasLimit, gasPrice uint64, data []byte) ([]byte, error) {
	to := common.HexToAddress(contractAddr)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: new(big.Int).SetUint64(gasPrice),
		Gas:      gasLimit,
		To:       &to,
		Value:    big.NewInt(0),
		Data:     data,
	})

	chainSigner := types.NewEIP155Signer(big.NewInt(chainID))
	digestHash := chainSigner.Hash(tx)
	var digest [32]byte
	copy(digest[:], digestHash.Bytes())

	r, sVal, v, err := s.signer.Sign(ctx, digest)
	if err != nil {
		return nil, fmt.Errorf("signer unavailable: %w", err)
	}

	sig := make([]byte, 65)
	copy(sig[0:32], r[:])
	copy(sig[32:64], sVal[:])
	sig[64] = v

	signedTx, err := tx.WithSignature(chainSigner, sig)
	if err != nil {
		return nil, fmt.Errorf("apply signature: %w", err)
	}
	return signedTx.MarshalBinary()
}

// waitForConfirmation polls until a receipt is reported confirmed, the
// cycle deadline is hit, or ctx is cancelled. The first confirmed receipt
// counts as CONFIRMED; the number of blocks above its block is not
// checked. A receipt never observed by the deadline counts as DROPPED.
func (s *Submitter) waitForConfirmation(ctx context.Context, txHash string, cycleDeadline int64) (models.TxStatus, error) {
	deadline := time.Unix(cycleDeadline, 0)
	ticker := time.NewTicker(ConfirmPollInterval)
	defer ticker.Stop()

	for {
		confirmed, _, reverted, err := s.chain.TransactionReceipt(ctx, txHash)
		if err != nil {
			return "", err
		}
		if confirmed {
			if reverted {
				return models.TxReverted, nil
			}
			return models.TxConfirmed, nil
		}
		if time.Now().After(deadline) {
			return models.TxDropped, nil
		}
		select {
		case <-ctx.Done():
			return models.TxDropped, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Submitter) logRecord(ctx context.Context, rec models.TxRecord) {
	if s.txLog == nil {
		return
	}
	if err := s.txLog.Append(ctx, rec); err != nil {
		s.log.Warn("tx log append failed", logger.Error(err))
	}
}

func bumpedPrice(base uint64, attempt int, ceiling uint64) uint64 {
	price := base
	for i := 0; i < attempt; i++ {
		price = uint64(float64(price) * GasBumpFactor)
	}
	if ceiling > 0 && price > ceiling {
		price = ceiling
	}
	return price
}

func assetNames(batch []models.AssetSample) []string {
	out := make([]string, len(batch))
	for i, s := range batch {
		out[i] = s.Asset
	}
	return out
}

// isUnderpriced detects the RPC's "replacement transaction underpriced" /
// "transaction underpriced" family of errors by substring, the same
// loose detection the reference submitter's retry branch uses since
// error shapes vary across RPC providers.
func isUnderpriced(err error) bool {
	msg := err.Error()
	return containsFold(msg, "underpriced") || containsFold(msg, "replacement transaction")
}

// isNonceGap detects the RPC's NONCE_GAP family of errors: the locally
// tracked nonce has fallen out of sync with the chain's actual pending
// nonce (a missed broadcast, a reorg, or a restart before reconciling).
func isNonceGap(err error) bool {
	msg := err.Error()
	return containsFold(msg, "nonce too low") || containsFold(msg, "nonce_gap") || containsFold(msg, "invalid nonce")
}

func containsFold(haystack, needle string) bool {
	h, n := []rune(haystack), []rune(needle)
	if len(n) == 0 || len(n) > len(h) {
		return len(n) == 0
	}
	lower := func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}
	for i := 0; i+len(n) <= len(h); i++ {
		match := true
		for j := range n {
			if lower(h[i+j]) != lower(n[j]) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

var _ domsvc.Submitter = (*Submitter)(nil)

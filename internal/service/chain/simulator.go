package chain

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/core/types"

	"sentioracle/internal/domain/models"
	domsvc "sentioracle/internal/domain/service"
)

// MinUpdateInterval is the contract-enforced minimum seconds between
// accepted updates of the same asset.
const MinUpdateInterval = 240

// DefaultMaxScoreChange is the default circuit-breaker bound on
// |score_fp - prev_score_fp|.
const DefaultMaxScoreChange = 2 * 100_000_000_000_000_000 // 2e17

// DefaultGasLimit is the Simulator's base gas estimate, to which
// EstimateGas adds 16 gas per calldata byte. It has the same value as the
// literal fallback the Submitter uses when EstimateGas fails.
const DefaultGasLimit = 150_000

// MaxBatchSize is the contract's per-call element cap.
const MaxBatchSize = 50

// zeroAddress is the canonical all-zero EVM address, never a valid asset.
const zeroAddress = "0x0000000000000000000000000000000000000000"

// Simulator implements domsvc.ChainClient entirely in-process, enforcing
// the oracle contract's bounds/rate-limit/circuit-breaker/history
// invariants without a real RPC endpoint. Useful for exercising the
// Submitter's state machine and the six canonical scenarios without a
// network dependency.
type Simulator struct {
	mu sync.Mutex

	chainID         int64
	nonces          map[string]uint64
	circuitBreaker  bool
	maxScoreChange  int64
	whitelisted     map[string]bool
	whitelistOn     bool
	lastScore       map[string]int64
	lastUpdateTS    map[string]int64
	history         map[string]*models.CircularHistory
	receipts        map[string]simReceipt
	totalUpdates    map[string]int64
	blockNumber     uint64
	now             func() int64
}

type simReceipt struct {
	confirmed bool
	reverted  bool
	blockNum  uint64
}

// NewSimulator builds a Simulator with the circuit breaker enabled and no
// whitelist restriction, matching the contract's documented defaults.
func NewSimulator(chainID int64, nowFn func() int64) *Simulator {
	return &Simulator{
		chainID:        chainID,
		nonces:         make(map[string]uint64),
		circuitBreaker: true,
		maxScoreChange: DefaultMaxScoreChange,
		whitelisted:    make(map[string]bool),
		lastScore:      make(map[string]int64),
		lastUpdateTS:   make(map[string]int64),
		history:        make(map[string]*models.CircularHistory),
		receipts:       make(map[string]simReceipt),
		totalUpdates:   make(map[string]int64),
		now:            nowFn,
	}
}

// SetWhitelistEnabled toggles the admin whitelist gate.
func (s *Simulator) SetWhitelistEnabled(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.whitelistOn = on
}

// Whitelist marks an asset as tradeable.
func (s *Simulator) Whitelist(asset string, status bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.whitelisted[asset] = status
}

// SetCircuitBreakerEnabled toggles the circuit breaker check.
func (s *Simulator) SetCircuitBreakerEnabled(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.circuitBreaker = on
}

// ChainID implements domsvc.ChainClient.
func (s *Simulator) ChainID(_ context.Context) (int64, error) { return s.chainID, nil }

// PendingNonce implements domsvc.ChainClient.
func (s *Simulator) PendingNonce(_ context.Context, address string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonces[address], nil
}

// GasPrice implements domsvc.ChainClient with a fixed nominal price;
// callers exercising gas-ceiling logic should override via a wrapper.
func (s *Simulator) GasPrice(_ context.Context) (uint64, error) { return 30_000_000_000, nil }

// EstimateGas implements domsvc.ChainClient.
func (s *Simulator) EstimateGas(_ context.Context, _ string, data []byte) (uint64, error) {
	return DefaultGasLimit + uint64(len(data))*16, nil
}

// Call implements domsvc.ChainClient. The simulator supports no raw
// contract reads: every Call returns an error. Tests read simulated state
// through LastScore and History instead.
func (s *Simulator) Call(_ context.Context, _ string, _ []byte) ([]byte, error) {
	return nil, fmt.Errorf("chain: simulator does not support raw Call")
}

// EncodeUpdateSentiment implements domsvc.ChainClient.
func (s *Simulator) EncodeUpdateSentiment(asset string, scoreFP int64, sampleSize uint32, confidenceBP uint16) ([]byte, error) {
	return EncodeUpdateSentiment(asset, scoreFP, sampleSize, confidenceBP)
}

// EncodeBatchUpdateSentiment implements domsvc.ChainClient.
func (s *Simulator) EncodeBatchUpdateSentiment(assets []string, scoresFP []int64, sampleSizes []uint32, confidencesBP []uint16) ([]byte, error) {
	return EncodeBatchUpdateSentiment(assets, scoresFP, sampleSizes, confidencesBP)
}

// simCall is the decoded form of one updateSentiment/batchUpdateSentiment
// call, shared by SendRawTransaction (decoded from a real signed
// transaction) and SubmitEncoded (passed directly by tests).
type simCall struct {
	assets        []string
	scoresFP      []int64
	sampleSizes   []uint32
	confidencesBP []uint16
}

// SendRawTransaction implements domsvc.ChainClient by decoding the
// RLP-encoded signed transaction the Submitter produced, recovering the
// sender via the EIP-155 signature, and applying the ABI-decoded call
// against simulated contract state — the same invariants (whitelist,
// rate-limit, circuit-breaker, history) a real chain would enforce, with
// no mempool or EVM underneath.
func (s *Simulator) SendRawTransaction(_ context.Context, raw []byte) (string, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return "", fmt.Errorf("chain: simulator decode raw tx: %w", err)
	}
	chainSigner := types.NewEIP155Signer(big.NewInt(s.chainID))
	sender, err := types.Sender(chainSigner, tx)
	if err != nil {
		return "", fmt.Errorf("chain: simulator recover sender: %w", err)
	}
	call, err := DecodeCall(tx.Data())
	if err != nil {
		return "", fmt.Errorf("chain: simulator decode call: %w", err)
	}
	return s.apply(sender.Hex(), simCall{
		assets:        call.Assets,
		scoresFP:      call.ScoresFP,
		sampleSizes:   call.SampleSizes,
		confidencesBP: call.ConfidencesBP,
	})
}

// SubmitEncoded applies one updateSentiment/batchUpdateSentiment call
// directly against the simulated contract state, bypassing signature
// recovery. Used by tests that want to drive the contract invariants
// without going through the Submitter's signing path.
func (s *Simulator) SubmitEncoded(sender string, call simCall) (string, error) {
	return s.apply(sender, call)
}

// apply enforces the whitelist, rate-limit and circuit-breaker
// invariants for every element of one call and, if all pass, commits the
// updates and returns a deterministic pseudo tx hash. Either every
// element is applied or none are: a single failing element reverts the
// whole call, matching the on-chain single-update semantics (batch mode
// per-element skip is a Submitter-side pre-check, not a contract-level
// partial commit).
func (s *Simulator) apply(sender string, call simCall) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(call.assets) > MaxBatchSize {
		return "", fmt.Errorf("chain: batch size %d exceeds max %d", len(call.assets), MaxBatchSize)
	}

	now := s.now()
	for i, asset := range call.assets {
		if asset == "" || asset == zeroAddress {
			return "", fmt.Errorf("chain: asset %s is the zero address", asset)
		}
		if call.scoresFP[i] > models.ScaleFP || call.scoresFP[i] < -models.ScaleFP {
			return "", fmt.Errorf("chain: asset %s score_fp %d out of range [-%d, %d]", asset, call.scoresFP[i], models.ScaleFP, models.ScaleFP)
		}
		if call.confidencesBP[i] > models.BasisPointsScale {
			return "", fmt.Errorf("chain: asset %s confidence_bp %d exceeds %d", asset, call.confidencesBP[i], models.BasisPointsScale)
		}
		if call.sampleSizes[i] < 1 {
			return "", fmt.Errorf("chain: asset %s sample_size must be >= 1", asset)
		}
		if s.whitelistOn && !s.whitelisted[asset] {
			return "", fmt.Errorf("chain: asset %s not whitelisted", asset)
		}
		if last, ok := s.lastUpdateTS[asset]; ok && now < last+MinUpdateInterval {
			return "", fmt.Errorf("chain: asset %s rate-limited, %ds remaining", asset, last+MinUpdateInterval-now)
		}
		if s.circuitBreaker {
			if prev, ok := s.lastScore[asset]; ok && prev != 0 {
				delta := call.scoresFP[i] - prev
				if delta < 0 {
					delta = -delta
				}
				if delta > s.maxScoreChange {
					return "", fmt.Errorf("chain: asset %s circuit breaker tripped (delta %d > %d)", asset, delta, s.maxScoreChange)
				}
			}
		}
	}

	for i, asset := range call.assets {
		s.lastScore[asset] = call.scoresFP[i]
		s.lastUpdateTS[asset] = now
		s.totalUpdates[asset]++

		hist, ok := s.history[asset]
		if !ok {
			hist = &models.CircularHistory{}
			s.history[asset] = hist
		}
		hist.Push(models.OracleEntry{
			Score:      call.scoresFP[i],
			Timestamp:  uint64(now),
			SampleSize: call.sampleSizes[i],
			Confidence: call.confidencesBP[i],
		})
	}

	s.nonces[sender]++
	s.blockNumber++
	hash := pseudoHash(sender, s.nonces[sender])
	s.receipts[hash] = simReceipt{confirmed: true, reverted: false, blockNum: s.blockNumber}
	return hash, nil
}

// TransactionReceipt implements domsvc.ChainClient.
func (s *Simulator) TransactionReceipt(_ context.Context, txHash string) (bool, uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.receipts[txHash]
	if !ok {
		return false, 0, false, nil
	}
	return r.confirmed, r.blockNum, r.reverted, nil
}

// LastScore exposes the simulated on-chain last_score for test assertions.
func (s *Simulator) LastScore(asset string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.lastScore[asset]
	return v, ok
}

// History exposes the simulated circular history for test assertions.
func (s *Simulator) History(asset string) []models.OracleEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	hist, ok := s.history[asset]
	if !ok {
		return nil
	}
	return hist.Last(hist.Len())
}

func pseudoHash(sender string, nonce uint64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	return fmt.Sprintf("0xsim%s%x", sender, buf)
}

var _ domsvc.ChainClient = (*Simulator)(nil)

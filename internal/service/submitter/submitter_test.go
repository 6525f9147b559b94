package submitter

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/core/types"

	"sentioracle/internal/domain/models"
	"sentioracle/internal/service/chain"
	"sentioracle/internal/service/signer"
	"sentioracle/pkg/logger"
)

// testAsset is deliberately all-decimal-digit hex so EIP-55 checksum
// re-casing on the simulator's decode path never changes it.
var testAsset = "0x" + strings.Repeat("0", 36) + "1234"
var testContract = "0x" + strings.Repeat("0", 38) + "01"
var testPrivateKey = strings.Repeat("0", 63) + "f"

// bumpAsset is a second whitelisted asset used only to advance the chain's
// nonce for the signer out-of-band, unrelated to testAsset's rate limit.
var bumpAsset = "0x" + strings.Repeat("0", 36) + "9999"

type fakeMetrics struct {
	skipped    map[string]string
	broadcasts []string
	errors     []string
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{skipped: make(map[string]string)}
}

func (f *fakeMetrics) RecordError(kind string)                       { f.errors = append(f.errors, kind) }
func (f *fakeMetrics) RecordCycle(string, float64)                   {}
func (f *fakeMetrics) RecordSamplesEmitted(string, int)               {}
func (f *fakeMetrics) RecordManipulationVeto(string)                 {}
func (f *fakeMetrics) RecordSubmitSkipped(asset, reason string)      { f.skipped[asset] = reason }
func (f *fakeMetrics) RecordBroadcast(asset string)                  { f.broadcasts = append(f.broadcasts, asset) }
func (f *fakeMetrics) SetDedupSize(int)                              {}
func (f *fakeMetrics) SetNonceGap(string, int64)                     {}
func (f *fakeMetrics) SetQueueDepth(string, int)                     {}
func (f *fakeMetrics) RecordQueueDrop(string)                        {}

type fakeTxLog struct {
	records []models.TxRecord
}

func (f *fakeTxLog) Init(context.Context) error { return nil }
func (f *fakeTxLog) Append(_ context.Context, rec models.TxRecord) error {
	f.records = append(f.records, rec)
	return nil
}
func (f *fakeTxLog) Recent(context.Context, string, time.Time, int) ([]models.TxRecord, error) {
	return nil, nil
}
func (f *fakeTxLog) Close() error                                                   { return nil }

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stdout"})
	if err != nil {
		t.Fatalf("failed to build test logger: %v", err)
	}
	return log
}

func newHarness(t *testing.T, clock *int64) (*Submitter, *chain.Simulator, *fakeMetrics) {
	t.Helper()
	sim := chain.NewSimulator(13, func() int64 { return *clock })
	sim.Whitelist(testAsset, true)
	sim.SetWhitelistEnabled(true)

	local, err := signer.NewLocal(testPrivateKey)
	if err != nil {
		t.Fatalf("failed to build local signer: %v", err)
	}

	metrics := newFakeMetrics()
	txLog := &fakeTxLog{}
	log := testLogger(t)

	sub := New(sim, local, metrics, txLog, log, Config{MaxScoreChangeFP: chain.DefaultMaxScoreChange, GasCeilingWei: 100_000_000_000})
	if err := sub.Reconcile(context.Background()); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	return sub, sim, metrics
}

// flakyChain wraps a real Simulator, returning each of failures in order
// on successive SendRawTransaction calls before delegating to the
// Simulator, so tests can force UNDERPRICED/NONCE_GAP branches the
// Simulator itself never produces on its own.
type flakyChain struct {
	*chain.Simulator
	failures []error
	calls    int
}

func (f *flakyChain) SendRawTransaction(ctx context.Context, raw []byte) (string, error) {
	if f.calls < len(f.failures) {
		err := f.failures[f.calls]
		f.calls++
		return "", err
	}
	f.calls++
	return f.Simulator.SendRawTransaction(ctx, raw)
}

func newFlakyHarness(t *testing.T, clock *int64, failures []error) (*Submitter, *flakyChain, *fakeMetrics, *fakeTxLog) {
	t.Helper()
	sim := chain.NewSimulator(13, func() int64 { return *clock })
	sim.Whitelist(testAsset, true)
	sim.Whitelist(bumpAsset, true)
	sim.SetWhitelistEnabled(true)

	local, err := signer.NewLocal(testPrivateKey)
	if err != nil {
		t.Fatalf("failed to build local signer: %v", err)
	}

	flaky := &flakyChain{Simulator: sim, failures: failures}
	metrics := newFakeMetrics()
	txLog := &fakeTxLog{}
	log := testLogger(t)

	sub := New(flaky, local, metrics, txLog, log, Config{MaxScoreChangeFP: chain.DefaultMaxScoreChange, GasCeilingWei: 100_000_000_000})
	if err := sub.Reconcile(context.Background()); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	return sub, flaky, metrics, txLog
}

// bumpSenderNonce signs and sends one updateSentiment call against asset
// directly through the Simulator, advancing its internal nonce counter
// for the signer derived from privHex without going through a Submitter,
// simulating a broadcast the local nonce tracker never learned about.
func bumpSenderNonce(t *testing.T, sim *chain.Simulator, chainID int64, privHex, asset string) {
	t.Helper()
	key, err := gethcrypto.HexToECDSA(privHex)
	if err != nil {
		t.Fatalf("failed to parse private key: %v", err)
	}
	data, err := chain.EncodeUpdateSentiment(asset, 1, 1, 1)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	unsignedTx := types.NewTx(&types.LegacyTx{
		Nonce:    0,
		GasPrice: big.NewInt(0),
		Gas:      200_000,
		To:       nil,
		Value:    big.NewInt(0),
		Data:     data,
	})
	chainSigner := types.NewEIP155Signer(big.NewInt(chainID))
	signedTx, err := types.SignTx(unsignedTx, chainSigner, key)
	if err != nil {
		t.Fatalf("failed to sign bump tx: %v", err)
	}
	raw, err := signedTx.MarshalBinary()
	if err != nil {
		t.Fatalf("failed to marshal bump tx: %v", err)
	}
	if _, err := sim.SendRawTransaction(context.Background(), raw); err != nil {
		t.Fatalf("bump tx failed: %v", err)
	}
}

func TestSubmitterRetriesUnderpricedBroadcast(t *testing.T) {
	clock := int64(0)
	sub, flaky, _, txLog := newFlakyHarness(t, &clock, []error{
		fmt.Errorf("replacement transaction underpriced"),
		fmt.Errorf("transaction underpriced"),
	})

	job := models.SubmissionJob{
		Samples: []models.AssetSample{
			{Asset: testAsset, ScoreFP: 300_000_000_000_000_000, ConfidenceBP: 8000, SampleSize: 20, WindowEndTS: clock},
		},
		ChainID:       13,
		ContractAddr:  testContract,
		GasCeiling:    100_000_000_000,
		CycleDeadline: time.Now().Add(time.Minute).Unix(),
	}

	hashes, err := sub.Submit(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hashes) != 1 {
		t.Fatalf("expected 1 tx hash after underpriced retries, got %d", len(hashes))
	}
	if flaky.calls != 3 {
		t.Fatalf("expected 3 broadcast attempts (2 underpriced + 1 success), got %d", flaky.calls)
	}

	var prices []uint64
	for _, rec := range txLog.records {
		if rec.Status == models.TxPendingBroadcast {
			prices = append(prices, rec.GasPrice)
		}
	}
	if len(prices) != 3 {
		t.Fatalf("expected 3 pending-broadcast records, got %d", len(prices))
	}
	for i := 1; i < len(prices); i++ {
		if prices[i] <= prices[i-1] {
			t.Errorf("expected attempt %d gas price (%d) to exceed attempt %d (%d)", i, prices[i], i-1, prices[i-1])
		}
	}
}

func TestSubmitterResyncsOnNonceGap(t *testing.T) {
	clock := int64(0)
	sub, flaky, metrics, txLog := newFlakyHarness(t, &clock, []error{
		fmt.Errorf("nonce too low"),
	})

	bumpSenderNonce(t, flaky.Simulator, 13, testPrivateKey, bumpAsset)

	job := models.SubmissionJob{
		Samples: []models.AssetSample{
			{Asset: testAsset, ScoreFP: 300_000_000_000_000_000, ConfidenceBP: 8000, SampleSize: 20, WindowEndTS: clock},
		},
		ChainID:       13,
		ContractAddr:  testContract,
		GasCeiling:    100_000_000_000,
		CycleDeadline: time.Now().Add(time.Minute).Unix(),
	}

	hashes, err := sub.Submit(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hashes) != 1 {
		t.Fatalf("expected 1 tx hash after nonce-gap resync, got %d", len(hashes))
	}
	if flaky.calls != 2 {
		t.Fatalf("expected 2 broadcast attempts (1 nonce-gap + 1 success), got %d", flaky.calls)
	}

	foundGapError := false
	for _, kind := range metrics.errors {
		if kind == "nonce_gap" {
			foundGapError = true
		}
	}
	if !foundGapError {
		t.Fatalf("expected a nonce_gap error to be recorded, got %v", metrics.errors)
	}

	var nonces []uint64
	for _, rec := range txLog.records {
		if rec.Status == models.TxPendingBroadcast {
			nonces = append(nonces, rec.Nonce)
		}
	}
	if len(nonces) != 2 {
		t.Fatalf("expected 2 pending-broadcast records, got %d", len(nonces))
	}
	if nonces[0] != 0 {
		t.Errorf("expected first attempt to use the stale local nonce 0, got %d", nonces[0])
	}
	if nonces[1] != 1 {
		t.Errorf("expected retry to use the reconciled nonce 1, got %d", nonces[1])
	}
}

func TestSubmitterSubmitsAndConfirmsSample(t *testing.T) {
	clock := int64(0)
	sub, sim, metrics := newHarness(t, &clock)

	job := models.SubmissionJob{
		Samples: []models.AssetSample{
			{Asset: testAsset, ScoreFP: 300_000_000_000_000_000, ConfidenceBP: 8000, SampleSize: 20, WindowEndTS: clock},
		},
		ChainID:       13,
		ContractAddr:  testContract,
		GasCeiling:    100_000_000_000,
		CycleDeadline: time.Now().Add(time.Minute).Unix(),
	}

	hashes, err := sub.Submit(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hashes) != 1 {
		t.Fatalf("expected 1 tx hash, got %d", len(hashes))
	}
	if len(metrics.broadcasts) != 1 || metrics.broadcasts[0] != testAsset {
		t.Errorf("expected a broadcast metric for %s, got %v", testAsset, metrics.broadcasts)
	}

	score, ok := sim.LastScore(testAsset)
	if !ok || score != 300_000_000_000_000_000 {
		t.Errorf("expected score to be recorded on-chain, got %d ok=%v", score, ok)
	}
}

func TestSubmitterSkipsRateLimitedSample(t *testing.T) {
	clock := int64(0)
	sub, _, metrics := newHarness(t, &clock)

	job := models.SubmissionJob{
		Samples: []models.AssetSample{
			{Asset: testAsset, ScoreFP: 100_000_000_000_000_000, ConfidenceBP: 8000, SampleSize: 5, WindowEndTS: clock},
		},
		ChainID:       13,
		ContractAddr:  testContract,
		GasCeiling:    100_000_000_000,
		CycleDeadline: time.Now().Add(time.Minute).Unix(),
	}
	if _, err := sub.Submit(context.Background(), job); err != nil {
		t.Fatalf("unexpected error on first submit: %v", err)
	}

	job.Samples[0].WindowEndTS = clock + 1 // well inside MinUpdateInterval
	hashes, err := sub.Submit(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error on second submit: %v", err)
	}
	if len(hashes) != 0 {
		t.Fatalf("expected the rate-limited sample to be skipped locally, got %d hashes", len(hashes))
	}
	if metrics.skipped[testAsset] != "rate_limit" {
		t.Errorf("expected rate_limit skip reason, got %q", metrics.skipped[testAsset])
	}
}

func TestSubmitterSkipsCircuitBreakerTrippedSample(t *testing.T) {
	clock := int64(0)
	sub, _, metrics := newHarness(t, &clock)

	job := models.SubmissionJob{
		Samples: []models.AssetSample{
			{Asset: testAsset, ScoreFP: 0, ConfidenceBP: 8000, SampleSize: 5, WindowEndTS: clock},
		},
		ChainID:       13,
		ContractAddr:  testContract,
		GasCeiling:    100_000_000_000,
		CycleDeadline: time.Now().Add(time.Minute).Unix(),
	}
	if _, err := sub.Submit(context.Background(), job); err != nil {
		t.Fatalf("unexpected error on first submit: %v", err)
	}

	clock += MinUpdateInterval
	job.Samples[0].WindowEndTS = clock
	job.Samples[0].ScoreFP = chain.DefaultMaxScoreChange + 1_000
	hashes, err := sub.Submit(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error on second submit: %v", err)
	}
	if len(hashes) != 0 {
		t.Fatalf("expected the circuit-breaker-tripped sample to be skipped locally, got %d hashes", len(hashes))
	}
	if metrics.skipped[testAsset] != "circuit_breaker" {
		t.Errorf("expected circuit_breaker skip reason, got %q", metrics.skipped[testAsset])
	}
}

func TestSubmitterBatchesAboveBatchSize(t *testing.T) {
	clock := int64(0)
	sub, sim, _ := newHarness(t, &clock)

	samples := make([]models.AssetSample, BatchSize+3)
	for i := range samples {
		suffix := fmt.Sprintf("%04d", i+1000)
		asset := "0x" + strings.Repeat("0", 36) + suffix
		sim.Whitelist(asset, true)
		samples[i] = models.AssetSample{Asset: asset, ScoreFP: int64(i), ConfidenceBP: 5000, SampleSize: 1, WindowEndTS: clock}
	}

	job := models.SubmissionJob{
		Samples:       samples,
		ChainID:       13,
		ContractAddr:  testContract,
		GasCeiling:    100_000_000_000,
		CycleDeadline: time.Now().Add(time.Minute).Unix(),
	}
	hashes, err := sub.Submit(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hashes) != 2 {
		t.Fatalf("expected 2 on-chain calls for a %d-sample job, got %d", len(samples), len(hashes))
	}
}

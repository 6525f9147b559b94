package chain

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"sentioracle/internal/domain/models"
)

func fixedClock(t int64) func() int64 {
	return func() int64 { return t }
}

func TestSimulatorAppliesUpdateAndRecordsHistory(t *testing.T) {
	clock := int64(1_000_000)
	s := NewSimulator(1, func() int64 { return clock })

	_, err := s.SubmitEncoded("0xsender", simCall{
		assets:        []string{testAsset1},
		scoresFP:      []int64{500_000_000_000_000_000},
		sampleSizes:   []uint32{10},
		confidencesBP: []uint16{9000},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	score, ok := s.LastScore(testAsset1)
	if !ok || score != 500_000_000_000_000_000 {
		t.Errorf("expected last score recorded, got %d ok=%v", score, ok)
	}
	hist := s.History(testAsset1)
	if len(hist) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(hist))
	}
	if hist[0].SampleSize != 10 || hist[0].Confidence != 9000 {
		t.Errorf("unexpected history entry: %+v", hist[0])
	}
}

func TestSimulatorEnforcesWhitelist(t *testing.T) {
	s := NewSimulator(1, fixedClock(0))
	s.SetWhitelistEnabled(true)

	_, err := s.SubmitEncoded("0xsender", simCall{
		assets:        []string{testAsset1},
		scoresFP:      []int64{1},
		sampleSizes:   []uint32{1},
		confidencesBP: []uint16{1},
	})
	if err == nil {
		t.Fatal("expected whitelist rejection for an unlisted asset")
	}

	s.Whitelist(testAsset1, true)
	_, err = s.SubmitEncoded("0xsender", simCall{
		assets:        []string{testAsset1},
		scoresFP:      []int64{1},
		sampleSizes:   []uint32{1},
		confidencesBP: []uint16{1},
	})
	if err != nil {
		t.Fatalf("expected whitelisted asset to be accepted, got %v", err)
	}
}

func TestSimulatorEnforcesRateLimit(t *testing.T) {
	clock := int64(0)
	s := NewSimulator(1, func() int64 { return clock })

	call := simCall{
		assets:        []string{testAsset1},
		scoresFP:      []int64{1},
		sampleSizes:   []uint32{1},
		confidencesBP: []uint16{1},
	}
	if _, err := s.SubmitEncoded("0xsender", call); err != nil {
		t.Fatalf("unexpected error on first update: %v", err)
	}

	clock += MinUpdateInterval - 1
	if _, err := s.SubmitEncoded("0xsender", call); err == nil {
		t.Fatal("expected rate-limit rejection just under the interval")
	}

	clock += 2
	if _, err := s.SubmitEncoded("0xsender", call); err != nil {
		t.Fatalf("expected update past the interval to succeed, got %v", err)
	}
}

func TestSimulatorEnforcesCircuitBreaker(t *testing.T) {
	clock := int64(0)
	s := NewSimulator(1, func() int64 { return clock })

	if _, err := s.SubmitEncoded("0xsender", simCall{
		assets:        []string{testAsset1},
		scoresFP:      []int64{100_000_000_000_000_000},
		sampleSizes:   []uint32{1},
		confidencesBP: []uint16{1},
	}); err != nil {
		t.Fatalf("unexpected error on first update: %v", err)
	}

	clock += MinUpdateInterval
	_, err := s.SubmitEncoded("0xsender", simCall{
		assets:        []string{testAsset1},
		scoresFP:      []int64{100_000_000_000_000_000 + DefaultMaxScoreChange + 1},
		sampleSizes:   []uint32{1},
		confidencesBP: []uint16{1},
	})
	if err == nil {
		t.Fatal("expected circuit breaker to trip on an oversized score delta")
	}
}

func TestSimulatorRejectsOversizedBatch(t *testing.T) {
	s := NewSimulator(1, fixedClock(0))
	assets := make([]string, MaxBatchSize+1)
	scores := make([]int64, MaxBatchSize+1)
	sizes := make([]uint32, MaxBatchSize+1)
	confs := make([]uint16, MaxBatchSize+1)
	for i := range assets {
		assets[i] = testAsset1
	}
	_, err := s.SubmitEncoded("0xsender", simCall{assets: assets, scoresFP: scores, sampleSizes: sizes, confidencesBP: confs})
	if err == nil {
		t.Fatal("expected rejection of a batch exceeding MaxBatchSize")
	}
}

func TestSimulatorRejectsOutOfRangeScore(t *testing.T) {
	s := NewSimulator(1, fixedClock(0))
	_, err := s.SubmitEncoded("0xsender", simCall{
		assets:        []string{testAsset1},
		scoresFP:      []int64{models.ScaleFP + 1},
		sampleSizes:   []uint32{1},
		confidencesBP: []uint16{1},
	})
	if err == nil {
		t.Fatal("expected rejection of score_fp exceeding ScaleFP")
	}

	_, err = s.SubmitEncoded("0xsender", simCall{
		assets:        []string{testAsset1},
		scoresFP:      []int64{-models.ScaleFP - 1},
		sampleSizes:   []uint32{1},
		confidencesBP: []uint16{1},
	})
	if err == nil {
		t.Fatal("expected rejection of score_fp below -ScaleFP")
	}
}

func TestSimulatorRejectsOutOfRangeConfidence(t *testing.T) {
	s := NewSimulator(1, fixedClock(0))
	_, err := s.SubmitEncoded("0xsender", simCall{
		assets:        []string{testAsset1},
		scoresFP:      []int64{1},
		sampleSizes:   []uint32{1},
		confidencesBP: []uint16{models.BasisPointsScale + 1},
	})
	if err == nil {
		t.Fatal("expected rejection of confidence_bp exceeding BasisPointsScale")
	}
}

func TestSimulatorRejectsZeroSampleSize(t *testing.T) {
	s := NewSimulator(1, fixedClock(0))
	_, err := s.SubmitEncoded("0xsender", simCall{
		assets:        []string{testAsset1},
		scoresFP:      []int64{1},
		sampleSizes:   []uint32{0},
		confidencesBP: []uint16{1},
	})
	if err == nil {
		t.Fatal("expected rejection of sample_size 0")
	}
}

func TestSimulatorRejectsZeroAddressAsset(t *testing.T) {
	s := NewSimulator(1, fixedClock(0))
	_, err := s.SubmitEncoded("0xsender", simCall{
		assets:        []string{zeroAddress},
		scoresFP:      []int64{1},
		sampleSizes:   []uint32{1},
		confidencesBP: []uint16{1},
	})
	if err == nil {
		t.Fatal("expected rejection of the zero address as an asset")
	}
}

func TestSimulatorSendRawTransactionDecodesSignedTx(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	s := NewSimulator(7, fixedClock(0))
	s.Whitelist(testAsset1, true)
	s.SetWhitelistEnabled(true)

	data, err := EncodeUpdateSentiment(testAsset1, 250_000_000_000_000_000, 5, 7000)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	legacyTx := &types.LegacyTx{
		Nonce:    0,
		GasPrice: big.NewInt(0),
		Gas:      200_000,
		To:       nil,
		Value:    big.NewInt(0),
		Data:     data,
	}
	unsignedTx := types.NewTx(legacyTx)
	signer := types.NewEIP155Signer(big.NewInt(7))
	signedTx, err := types.SignTx(unsignedTx, signer, key)
	if err != nil {
		t.Fatalf("failed to sign tx: %v", err)
	}
	raw, err := signedTx.MarshalBinary()
	if err != nil {
		t.Fatalf("failed to marshal signed tx: %v", err)
	}

	txHash, err := s.SendRawTransaction(context.Background(), raw)
	if err != nil {
		t.Fatalf("SendRawTransaction failed: %v", err)
	}
	if txHash == "" {
		t.Fatal("expected a non-empty tx hash")
	}

	score, ok := s.LastScore(testAsset1)
	if !ok || score != 250_000_000_000_000_000 {
		t.Errorf("expected decoded score to be applied, got %d ok=%v", score, ok)
	}

	confirmed, _, reverted, err := s.TransactionReceipt(context.Background(), txHash)
	if err != nil {
		t.Fatalf("unexpected receipt error: %v", err)
	}
	if !confirmed || reverted {
		t.Errorf("expected confirmed, non-reverted receipt, got confirmed=%v reverted=%v", confirmed, reverted)
	}
}

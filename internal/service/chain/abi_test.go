package chain

import (
	"testing"
)

const testAsset1 = "0x0000000000000000000000000000000000000001"
const testAsset2 = "0x0000000000000000000000000000000000000002"

func TestEncodeDecodeUpdateSentimentRoundTrip(t *testing.T) {
	data, err := EncodeUpdateSentiment(testAsset1, -500_000_000_000_000_000, 42, 8500)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := DecodeCall(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Method != "updateSentiment" {
		t.Errorf("expected method updateSentiment, got %s", decoded.Method)
	}
	if len(decoded.Assets) != 1 || decoded.Assets[0] != testAsset1 {
		t.Errorf("expected asset %s, got %v", testAsset1, decoded.Assets)
	}
	if decoded.ScoresFP[0] != -500_000_000_000_000_000 {
		t.Errorf("expected score -5e17, got %d", decoded.ScoresFP[0])
	}
	if decoded.SampleSizes[0] != 42 {
		t.Errorf("expected sample size 42, got %d", decoded.SampleSizes[0])
	}
	if decoded.ConfidencesBP[0] != 8500 {
		t.Errorf("expected confidence_bp 8500, got %d", decoded.ConfidencesBP[0])
	}
}

func TestEncodeDecodeBatchUpdateSentimentRoundTrip(t *testing.T) {
	assets := []string{testAsset1, testAsset2}
	scores := []int64{100, -200}
	sizes := []uint32{5, 6}
	confs := []uint16{100, 200}

	data, err := EncodeBatchUpdateSentiment(assets, scores, sizes, confs)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := DecodeCall(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Method != "batchUpdateSentiment" {
		t.Errorf("expected method batchUpdateSentiment, got %s", decoded.Method)
	}
	if len(decoded.Assets) != 2 {
		t.Fatalf("expected 2 decoded assets, got %d", len(decoded.Assets))
	}
	for i := range assets {
		if decoded.ScoresFP[i] != scores[i] {
			t.Errorf("asset %d: expected score %d, got %d", i, scores[i], decoded.ScoresFP[i])
		}
		if decoded.SampleSizes[i] != sizes[i] {
			t.Errorf("asset %d: expected sample size %d, got %d", i, sizes[i], decoded.SampleSizes[i])
		}
		if decoded.ConfidencesBP[i] != confs[i] {
			t.Errorf("asset %d: expected confidence %d, got %d", i, confs[i], decoded.ConfidencesBP[i])
		}
	}
}

func TestEncodeBatchRejectsMismatchedLengths(t *testing.T) {
	_, err := EncodeBatchUpdateSentiment([]string{testAsset1}, []int64{1, 2}, []uint32{1}, []uint16{1})
	if err == nil {
		t.Fatal("expected an error for mismatched slice lengths")
	}
}

func TestEncodeRejectsInvalidAddress(t *testing.T) {
	_, err := EncodeUpdateSentiment("not-an-address", 1, 1, 1)
	if err == nil {
		t.Fatal("expected an error for an invalid asset address")
	}
}

func TestDecodeCallRejectsShortData(t *testing.T) {
	_, err := DecodeCall([]byte{0x01, 0x02})
	if err == nil {
		t.Fatal("expected an error for call data shorter than a selector")
	}
}

func TestDecodeCallRejectsUnknownSelector(t *testing.T) {
	_, err := DecodeCall([]byte{0xde, 0xad, 0xbe, 0xef})
	if err == nil {
		t.Fatal("expected an error for an unrecognized selector")
	}
}

// Package chain is the narrow JSON-RPC + ABI surface the Submitter needs
// to talk to the oracle contract: encode the write-path calls, decode
// receipts, recover nonces and gas prices. An in-process Simulator
// (simulator.go) implements the same interface for dependency-free
// testing of the contract invariants.
package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// oracleABI is the write-path surface per the canonical address+int128
// variant: updateSentiment(address,int128,uint32,uint16) and
// batchUpdateSentiment(address[],int128[],uint32[],uint16[]).
const oracleABIJSON = `[
	{
		"type": "function",
		"name": "updateSentiment",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "asset", "type": "address"},
			{"name": "score", "type": "int128"},
			{"name": "sampleSize", "type": "uint32"},
			{"name": "confidence", "type": "uint16"}
		],
		"outputs": []
	},
	{
		"type": "function",
		"name": "batchUpdateSentiment",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "assets", "type": "address[]"},
			{"name": "scores", "type": "int128[]"},
			{"name": "sampleSizes", "type": "uint32[]"},
			{"name": "confidences", "type": "uint16[]"}
		],
		"outputs": []
	},
	{
		"type": "event",
		"name": "SentimentUpdated",
		"inputs": [
			{"name": "asset", "type": "address", "indexed": true},
			{"name": "score", "type": "int128", "indexed": false},
			{"name": "timestamp", "type": "uint64", "indexed": false},
			{"name": "confidence", "type": "uint16", "indexed": false},
			{"name": "sampleSize", "type": "uint32", "indexed": false}
		],
		"anonymous": false
	},
	{
		"type": "event",
		"name": "CircuitBreakerTriggered",
		"inputs": [
			{"name": "asset", "type": "address", "indexed": true},
			{"name": "reasonCode", "type": "uint8", "indexed": false}
		],
		"anonymous": false
	},
	{
		"type": "event",
		"name": "TokenWhitelisted",
		"inputs": [
			{"name": "asset", "type": "address", "indexed": true},
			{"name": "status", "type": "bool", "indexed": false}
		],
		"anonymous": false
	}
]`

var parsedOracleABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(oracleABIJSON))
	if err != nil {
		panic(fmt.Sprintf("chain: invalid embedded ABI: %v", err))
	}
	parsedOracleABI = parsed
}

// EncodeUpdateSentiment packs a call to updateSentiment.
func EncodeUpdateSentiment(asset string, scoreFP int64, sampleSize uint32, confidenceBP uint16) ([]byte, error) {
	addr, err := parseAddress(asset)
	if err != nil {
		return nil, err
	}
	return parsedOracleABI.Pack("updateSentiment", addr, big.NewInt(scoreFP), sampleSize, confidenceBP)
}

// EncodeBatchUpdateSentiment packs a call to batchUpdateSentiment. All
// slices must be the same length; this mirrors the per-element contract
// invariant enforced on-chain.
func EncodeBatchUpdateSentiment(assets []string, scoresFP []int64, sampleSizes []uint32, confidencesBP []uint16) ([]byte, error) {
	if len(assets) != len(scoresFP) || len(assets) != len(sampleSizes) || len(assets) != len(confidencesBP) {
		return nil, fmt.Errorf("chain: mismatched batch slice lengths")
	}
	addrs := make([]common.Address, len(assets))
	for i, a := range assets {
		addr, err := parseAddress(a)
		if err != nil {
			return nil, err
		}
		addrs[i] = addr
	}
	scores := make([]*big.Int, len(scoresFP))
	for i, s := range scoresFP {
		scores[i] = big.NewInt(s)
	}
	return parsedOracleABI.Pack("batchUpdateSentiment", addrs, scores, sampleSizes, confidencesBP)
}

func parseAddress(asset string) (common.Address, error) {
	if !common.IsHexAddress(asset) {
		return common.Address{}, fmt.Errorf("chain: %q is not a valid asset address", asset)
	}
	return common.HexToAddress(asset), nil
}

// DecodedCall is the decoded form of one updateSentiment/
// batchUpdateSentiment call, used by Simulator to apply a submitted raw
// transaction's payload against simulated contract state without a real
// EVM.
type DecodedCall struct {
	Method        string
	Assets        []string
	ScoresFP      []int64
	SampleSizes   []uint32
	ConfidencesBP []uint16
}

// DecodeCall dispatches on the 4-byte selector and unpacks either
// write-path method into a DecodedCall.
func DecodeCall(data []byte) (DecodedCall, error) {
	if len(data) < 4 {
		return DecodedCall{}, fmt.Errorf("chain: call data too short")
	}
	method, err := parsedOracleABI.MethodById(data[:4])
	if err != nil {
		return DecodedCall{}, fmt.Errorf("chain: unknown selector: %w", err)
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return DecodedCall{}, fmt.Errorf("chain: unpack %s: %w", method.Name, err)
	}
	switch method.Name {
	case "updateSentiment":
		return DecodedCall{
			Method:        method.Name,
			Assets:        []string{values[0].(common.Address).Hex()},
			ScoresFP:      []int64{values[1].(*big.Int).Int64()},
			SampleSizes:   []uint32{values[2].(uint32)},
			ConfidencesBP: []uint16{values[3].(uint16)},
		}, nil
	case "batchUpdateSentiment":
		addrs := values[0].([]common.Address)
		scores := values[1].([]*big.Int)
		assets := make([]string, len(addrs))
		scoresFP := make([]int64, len(scores))
		for i, a := range addrs {
			assets[i] = a.Hex()
		}
		for i, s := range scores {
			scoresFP[i] = s.Int64()
		}
		return DecodedCall{
			Method:        method.Name,
			Assets:        assets,
			ScoresFP:      scoresFP,
			SampleSizes:   values[2].([]uint32),
			ConfidencesBP: values[3].([]uint16),
		}, nil
	default:
		return DecodedCall{}, fmt.Errorf("chain: unsupported method %s", method.Name)
	}
}

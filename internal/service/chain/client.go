package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	domsvc "sentioracle/internal/domain/service"
)

// Client wraps an ethclient connection with the oracle's narrow
// ChainClient surface. All addresses/hashes cross this boundary as hex
// strings so the rest of the pipeline never imports go-ethereum types
// directly.
type Client struct {
	eth             *ethclient.Client
	contractAddress common.Address
}

// Dial connects to a JSON-RPC endpoint and targets the given oracle
// contract address.
func Dial(ctx context.Context, rpcURL, contractAddress string) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}
	if !common.IsHexAddress(contractAddress) {
		return nil, fmt.Errorf("chain: invalid contract address %q", contractAddress)
	}
	return &Client{eth: eth, contractAddress: common.HexToAddress(contractAddress)}, nil
}

// ChainID implements domain/service.ChainClient.
func (c *Client) ChainID(ctx context.Context) (int64, error) {
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain: chain id: %w", err)
	}
	return id.Int64(), nil
}

// PendingNonce implements domain/service.ChainClient, reading the
// mempool-inclusive nonce so the signer-address invariant of no two
// in-flight transactions sharing a nonce can be reconciled on startup.
func (c *Client) PendingNonce(ctx context.Context, address string) (uint64, error) {
	n, err := c.eth.PendingNonceAt(ctx, common.HexToAddress(address))
	if err != nil {
		return 0, fmt.Errorf("chain: pending nonce: %w", err)
	}
	return n, nil
}

// GasPrice implements domain/service.ChainClient.
func (c *Client) GasPrice(ctx context.Context) (uint64, error) {
	price, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain: gas price: %w", err)
	}
	return price.Uint64(), nil
}

// EstimateGas implements domain/service.ChainClient.
func (c *Client) EstimateGas(ctx context.Context, to string, data []byte) (uint64, error) {
	addr := common.HexToAddress(to)
	gas, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{To: &addr, Data: data})
	if err != nil {
		return 0, fmt.Errorf("chain: estimate gas: %w", err)
	}
	return gas, nil
}

// SendRawTransaction implements domain/service.ChainClient. raw is the
// RLP-encoded signed transaction produced by the Submitter after calling
// a Signer.
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte) (string, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return "", fmt.Errorf("chain: decode raw tx: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, tx); err != nil {
		return "", fmt.Errorf("chain: send raw tx: %w", err)
	}
	return tx.Hash().Hex(), nil
}

// TransactionReceipt implements domain/service.ChainClient. A receipt
// that does not yet exist is reported as unconfirmed, not an error, so
// the Submitter's confirmation poll can distinguish "still pending" from
// a genuine RPC failure.
func (c *Client) TransactionReceipt(ctx context.Context, txHash string) (bool, uint64, bool, error) {
	receipt, err := c.eth.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if err == ethereum.NotFound {
			return false, 0, false, nil
		}
		return false, 0, false, fmt.Errorf("chain: receipt: %w", err)
	}
	reverted := receipt.Status == types.ReceiptStatusFailed
	return true, receipt.BlockNumber.Uint64(), reverted, nil
}

// Call implements domain/service.ChainClient for read-only contract
// calls (e.g. reading last_score for the circuit-breaker pre-check).
func (c *Client) Call(ctx context.Context, to string, data []byte) ([]byte, error) {
	addr := common.HexToAddress(to)
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: call: %w", err)
	}
	return out, nil
}

// EncodeUpdateSentiment implements domain/service.ChainClient.
func (c *Client) EncodeUpdateSentiment(asset string, scoreFP int64, sampleSize uint32, confidenceBP uint16) ([]byte, error) {
	return EncodeUpdateSentiment(asset, scoreFP, sampleSize, confidenceBP)
}

// EncodeBatchUpdateSentiment implements domain/service.ChainClient.
func (c *Client) EncodeBatchUpdateSentiment(assets []string, scoresFP []int64, sampleSizes []uint32, confidencesBP []uint16) ([]byte, error) {
	return EncodeBatchUpdateSentiment(assets, scoresFP, sampleSizes, confidencesBP)
}

// ContractAddress returns the configured oracle contract address.
func (c *Client) ContractAddress() string { return c.contractAddress.Hex() }

// Close releases the underlying RPC connection.
func (c *Client) Close() { c.eth.Close() }

var _ domsvc.ChainClient = (*Client)(nil)

// Package signer provides the two ECDSA signing backends the Submitter
// can drive: an in-process key for development and a remote HSM/KMS-style
// endpoint for production, mirroring the reference LocalKeyManager /
// AWSKMSKeyManager split.
package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	domsvc "sentioracle/internal/domain/service"
)

// Local signs with an in-memory secp256k1 key. Development only;
// construction logs nothing.
type Local struct {
	key     *ecdsa.PrivateKey
	address string
}

// NewLocal parses a hex-encoded private key (with or without 0x prefix)
// and derives the signer address.
func NewLocal(hexKey string) (*Local, error) {
	hexKey = strings.TrimPrefix(hexKey, "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("signer: invalid private key: %w", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	return &Local{key: key, address: addr.Hex()}, nil
}

// Address implements domain/service.Signer.
func (l *Local) Address() string { return l.address }

// Sign implements domain/service.Signer. r, s, v follow the secp256k1
// recoverable-signature convention (v in {0,1}).
func (l *Local) Sign(_ context.Context, digest [32]byte) ([32]byte, [32]byte, byte, error) {
	sig, err := crypto.Sign(digest[:], l.key)
	if err != nil {
		return [32]byte{}, [32]byte{}, 0, fmt.Errorf("signer: sign: %w", err)
	}
	var r, s [32]byte
	copy(r[:], sig[0:32])
	copy(s[:], sig[32:64])
	return r, s, sig[64], nil
}

var _ domsvc.Signer = (*Local)(nil)

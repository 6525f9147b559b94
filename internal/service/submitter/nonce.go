package submitter

import (
	"context"
	"fmt"
	"sync"
)

// nonceManager serializes nonce allocation per signer address, the same
// lock-then-reconcile shape as the reference submitter's _nonce_lock.
// Invariant: two concurrently in-flight transactions never share a
// nonce.
type nonceManager struct {
	mu      sync.Mutex
	address string
	next    uint64
	synced  bool
}

func newNonceManager(address string) *nonceManager {
	return &nonceManager{address: address}
}

// reconcile reads the on-chain pending nonce and resets local state to
// it. Called on startup and whenever a NONCE_GAP or stall is detected.
func (n *nonceManager) reconcile(ctx context.Context, chain pendingNoncer) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	pending, err := chain.PendingNonce(ctx, n.address)
	if err != nil {
		return fmt.Errorf("nonce: reconcile: %w", err)
	}
	n.next = pending
	n.synced = true
	return nil
}

// allocate returns the next nonce to use and advances local state. Must
// only be called after a successful reconcile.
func (n *nonceManager) allocate() (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.synced {
		return 0, fmt.Errorf("nonce: not reconciled")
	}
	nonce := n.next
	n.next++
	return nonce, nil
}

// gap reports the difference between the locally tracked next nonce and
// the chain's current pending nonce; a nonzero gap signals a missed or
// dropped broadcast. Nothing in the package calls it, so SetNonceGap is
// not fed from it.
func (n *nonceManager) gap(ctx context.Context, chain pendingNoncer) (int64, error) {
	n.mu.Lock()
	local := n.next
	n.mu.Unlock()
	pending, err := chain.PendingNonce(ctx, n.address)
	if err != nil {
		return 0, err
	}
	return int64(local) - int64(pending), nil
}

type pendingNoncer interface {
	PendingNonce(ctx context.Context, address string) (uint64, error)
}

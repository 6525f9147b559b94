package models

// TxStatus is the Submitter's per-transaction state machine position.
type TxStatus string

const (
	TxPendingSign      TxStatus = "PENDING_SIGN"
	TxPendingBroadcast TxStatus = "PENDING_BROADCAST"
	TxPendingConfirm   TxStatus = "PENDING_CONFIRM"
	TxConfirmed        TxStatus = "CONFIRMED"
	TxReverted         TxStatus = "REVERTED"
	TxDropped          TxStatus = "DROPPED"
)

// TxRecord tracks one submitted transaction through its lifecycle.
type TxRecord struct {
	Hash     string
	Nonce    uint64
	GasPrice uint64
	Status   TxStatus
	Assets   []string
	Attempt  int
}

// GasEstimate is the Submitter's gas-planning output for one call.
type GasEstimate struct {
	Limit      uint64
	PriceWei   uint64
	CeilingWei uint64
}

package events

import (
	"math/big"

	"viewledger/core/types"
	"viewledger/crypto"
)

const (
	// TypeTransfer is emitted for native balance movements.
	TypeTransfer = "transfer.native"
)

// Transfer records a native value movement between two identities. Reason
// names the ledger step that caused it (e.g. "creator_payout", "refund").
type Transfer struct {
	From   [20]byte
	To     [20]byte
	Amount *big.Int
	Reason string
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	kv := []string{
		"from", crypto.FormatIdentity(e.From),
		"to", crypto.FormatIdentity(e.To),
		"amount", formatAmount(e.Amount),
	}
	if e.Reason != "" {
		kv = append(kv, "reason", e.Reason)
	}
	return types.NewEvent(TypeTransfer, kv...)
}

package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"lukechampine.com/blake3"
)

// TxType defines the purpose of a transaction.
type TxType byte

const (
	TxTypeUpload       TxType = 0x01 // Creator registers a content reference and price
	TxTypeUnlock       TxType = 0x02 // Viewer pays for a permanent access grant
	TxTypeDeactivate   TxType = 0x03 // Creator stops further unlocks
	TxTypeWithdrawFees TxType = 0x04 // Owner withdraws accumulated platform fees
)

// String returns the stable label used in logs and metrics.
func (t TxType) String() string {
	switch t {
	case TxTypeUpload:
		return "upload"
	case TxTypeUnlock:
		return "unlock"
	case TxTypeDeactivate:
		return "deactivate"
	case TxTypeWithdrawFees:
		return "withdraw_fees"
	default:
		return fmt.Sprintf("0x%02x", byte(t))
	}
}

// Payable reports whether the transaction type accepts an attached value.
func (t TxType) Payable() bool {
	return t == TxTypeUnlock
}

// Transaction is a single ledger transition request. From is the
// authenticated caller; Value is the native payment attached to the call.
type Transaction struct {
	Type       TxType   `json:"type"`
	From       [20]byte `json:"from"`
	Nonce      uint64   `json:"nonce"`
	Value      *big.Int `json:"value,omitempty"`
	VideoID    uint64   `json:"videoId,omitempty"`
	ContentRef string   `json:"contentRef,omitempty"`
	Price      *big.Int `json:"price,omitempty"`
}

// Hash returns the blake3 digest of the canonical JSON encoding.
func (tx *Transaction) Hash() ([32]byte, error) {
	b, err := json.Marshal(tx)
	if err != nil {
		return [32]byte{}, err
	}
	return blake3.Sum256(b), nil
}

// HashHex returns the 0x-prefixed transaction hash, or an empty string when
// the transaction cannot be encoded.
func (tx *Transaction) HashHex() string {
	hash, err := tx.Hash()
	if err != nil {
		return ""
	}
	return "0x" + hex.EncodeToString(hash[:])
}

// AttachedValue returns a copy of Value, treating nil as zero.
func (tx *Transaction) AttachedValue() *big.Int {
	if tx == nil || tx.Value == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(tx.Value)
}

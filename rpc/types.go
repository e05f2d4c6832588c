package rpc

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"viewledger/core/types"
	"viewledger/crypto"
	"viewledger/native/paywall"
)

const (
	maxEventsLimit = 1000
)

type videoResult struct {
	ID            uint64 `json:"id"`
	Creator       string `json:"creator"`
	ContentRef    string `json:"contentRef,omitempty"`
	Price         string `json:"price"`
	TotalEarnings string `json:"totalEarnings"`
	ViewCount     uint64 `json:"viewCount"`
	CreatedAt     int64  `json:"createdAt"`
	Status        string `json:"status"`
	HasAccess     *bool  `json:"hasAccess,omitempty"`
	UnlockedAt    int64  `json:"unlockedAt,omitempty"`
}

type txResult struct {
	TxHash string `json:"txHash"`
	Height uint64 `json:"height"`
}

type uploadResult struct {
	txResult
	ID uint64 `json:"id"`
}

type unlockResult struct {
	txResult
	ID             uint64 `json:"id"`
	Viewer         string `json:"viewer"`
	Creator        string `json:"creator"`
	Paid           string `json:"paid"`
	PlatformFee    string `json:"platformFee"`
	CreatorEarning string `json:"creatorEarning"`
	Refund         string `json:"refund"`
}

type deactivateResult struct {
	txResult
	ID uint64 `json:"id"`
}

type withdrawResult struct {
	txResult
	Owner  string `json:"owner"`
	Amount string `json:"amount"`
}

type balanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

type attributeResult struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type eventResult struct {
	Seq        uint64            `json:"seq"`
	Height     uint64            `json:"height"`
	TxHash     string            `json:"txHash"`
	Timestamp  int64             `json:"timestamp"`
	Type       string            `json:"type"`
	Attributes []attributeResult `json:"attributes"`
}

func formatAddress(addr [20]byte) string {
	return crypto.FormatIdentity(addr)
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatVideoView(view *paywall.VideoView) videoResult {
	access := view.HasAccess
	return videoResult{
		ID:            view.ID,
		Creator:       formatAddress(view.Creator),
		ContentRef:    view.ContentRef,
		Price:         bigString(view.Price),
		TotalEarnings: bigString(view.TotalEarnings),
		ViewCount:     view.ViewCount,
		CreatedAt:     view.CreatedAt,
		Status:        view.Status.String(),
		HasAccess:     &access,
		UnlockedAt:    view.UnlockedAt,
	}
}

func formatVideoSummary(summary paywall.VideoSummary) videoResult {
	return videoResult{
		ID:            summary.ID,
		Creator:       formatAddress(summary.Creator),
		Price:         bigString(summary.Price),
		TotalEarnings: bigString(summary.TotalEarnings),
		ViewCount:     summary.ViewCount,
		CreatedAt:     summary.CreatedAt,
		Status:        summary.Status.String(),
	}
}

func formatTx(hash [32]byte, height uint64) txResult {
	return txResult{TxHash: common.Hash(hash).Hex(), Height: height}
}

func formatEventRecord(rec *types.EventRecord) eventResult {
	out := eventResult{
		Seq:        rec.Seq,
		Height:     rec.Height,
		TxHash:     common.Hash(rec.TxHash).Hex(),
		Timestamp:  rec.Timestamp,
		Attributes: []attributeResult{},
	}
	if rec.Event != nil {
		out.Type = rec.Event.Type
		for _, attr := range rec.Event.Attributes {
			out.Attributes = append(out.Attributes, attributeResult{Key: attr.Key, Value: attr.Value})
		}
	}
	return out
}

// parseAmount parses a non-negative decimal amount that must fit in 256 bits.
func parseAmount(amount string) (*big.Int, error) {
	trimmed := strings.TrimSpace(amount)
	if trimmed == "" {
		return nil, fmt.Errorf("amount is required")
	}
	value, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", trimmed, err)
	}
	return value.ToBig(), nil
}

func decodeBech32(addr string) ([20]byte, error) {
	return crypto.ParseIdentity(strings.TrimSpace(addr))
}

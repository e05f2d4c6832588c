package types

import (
	"math/big"
	"testing"
)

func TestTransactionHashCoversPayload(t *testing.T) {
	base := Transaction{Type: TxTypeUnlock, VideoID: 1, Value: big.NewInt(1500)}
	other := base
	other.Value = big.NewInt(1501)

	h1, err := base.Hash()
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := other.Hash()
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 == h2 {
		t.Fatalf("expected different hashes for different values")
	}
	again, _ := base.Hash()
	if again != h1 {
		t.Fatalf("hash not deterministic")
	}
}

func TestEventAttributesKeepOrder(t *testing.T) {
	evt := NewEvent("paywall.video.unlocked", "id", "1", "viewer", "v", "creator", "c")
	keys := evt.Keys()
	want := []string{"id", "viewer", "creator"}
	if len(keys) != len(want) {
		t.Fatalf("unexpected key count %d", len(keys))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("key %d: want %s got %s", i, want[i], keys[i])
		}
	}
	if v, ok := evt.Attr("viewer"); !ok || v != "v" {
		t.Fatalf("unexpected viewer attribute %q", v)
	}
	if TxTypeWithdrawFees.String() != "withdraw_fees" || !TxTypeUnlock.Payable() || TxTypeUpload.Payable() {
		t.Fatalf("unexpected tx type metadata")
	}
}

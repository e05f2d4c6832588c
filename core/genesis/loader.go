package genesis

import (
	"fmt"

	"viewledger/core/state"
	"viewledger/crypto"
	"viewledger/native/bank"
)

// Apply writes the genesis owner and allocations into mgr. The caller commits
// the resulting trie.
func Apply(spec *Spec, mgr *state.Manager) error {
	if spec == nil {
		return fmt.Errorf("genesis spec must not be nil")
	}
	if mgr == nil {
		return fmt.Errorf("state manager must not be nil")
	}
	if err := mgr.PaywallSetOwner(spec.OwnerAddress()); err != nil {
		return fmt.Errorf("set owner: %w", err)
	}
	ledger := bank.NewLedger(mgr)
	for _, alloc := range spec.Allocations() {
		if err := ledger.Credit(alloc.Address, alloc.Amount); err != nil {
			return fmt.Errorf("alloc %s: %w", crypto.FormatIdentity(alloc.Address), err)
		}
	}
	return nil
}

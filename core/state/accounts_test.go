package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"viewledger/core/types"
)

func TestAccountDefaultsToZero(t *testing.T) {
	mgr := newTestManager(t)
	acc, err := mgr.GetAccount([]byte{0x01})
	require.NoError(t, err)
	require.Zero(t, acc.Balance.Sign())
	require.Zero(t, acc.Nonce)
}

func TestAccountRoundTrip(t *testing.T) {
	mgr := newTestManager(t)
	addr := []byte{0x01, 0x02}
	require.NoError(t, mgr.PutAccount(addr, &types.Account{Nonce: 3, Balance: big.NewInt(500)}))

	acc, err := mgr.GetAccount(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(3), acc.Nonce)
	require.Equal(t, int64(500), acc.Balance.Int64())
}

func TestPutAccountRejectsInvalidBalances(t *testing.T) {
	mgr := newTestManager(t)
	addr := []byte{0x01}
	require.Error(t, mgr.PutAccount(addr, &types.Account{Balance: big.NewInt(-1)}))

	huge := new(big.Int).Lsh(big.NewInt(1), 256)
	require.Error(t, mgr.PutAccount(addr, &types.Account{Balance: huge}))
	require.Error(t, mgr.PutAccount(nil, &types.Account{}))
	require.Error(t, mgr.PutAccount(addr, nil))
}

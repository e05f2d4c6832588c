package state

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"viewledger/core/types"
	"viewledger/native/paywall"
	"viewledger/storage"
	"viewledger/storage/trie"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	require.NoError(t, err)
	return NewManager(tr)
}

func TestKVGetListMissingKeyYieldsEmptySlice(t *testing.T) {
	mgr := newTestManager(t)
	require.NoError(t, mgr.KVPut([]byte("index"), []uint64{3, 1}))

	var list []uint64
	require.NoError(t, mgr.KVGetList([]byte("index"), &list))
	require.Equal(t, []uint64{3, 1}, list)

	var empty []uint64
	require.NoError(t, mgr.KVGetList([]byte("missing"), &empty))
	require.NotNil(t, empty)
	require.Empty(t, empty)
}

func TestKVRejectsEmptyKey(t *testing.T) {
	mgr := newTestManager(t)
	require.Error(t, mgr.KVPut(nil, uint64(1)))
	_, err := mgr.KVGet(nil, nil)
	require.Error(t, err)
}

func TestPaywallVideoRoundTrip(t *testing.T) {
	mgr := newTestManager(t)
	video := &paywall.Video{
		ID:            7,
		Creator:       [20]byte{0xaa},
		ContentRef:    "ipfs://cid",
		Price:         big.NewInt(1000),
		TotalEarnings: big.NewInt(940),
		ViewCount:     1,
		CreatedAt:     1_700_000_000,
		Status:        paywall.VideoStatusDeactivated,
	}
	require.NoError(t, mgr.PaywallVideoPut(video))

	got, ok, err := mgr.PaywallVideoGet(7)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, video, got)

	_, ok, err = mgr.PaywallVideoGet(8)
	require.NoError(t, err)
	require.False(t, ok)

	require.Error(t, mgr.PaywallVideoPut(&paywall.Video{}))
}

func TestPaywallCountersAndIndexes(t *testing.T) {
	mgr := newTestManager(t)

	next, err := mgr.PaywallNextID()
	require.NoError(t, err)
	require.Equal(t, uint64(1), next)
	require.NoError(t, mgr.PaywallSetNextID(4))
	require.Error(t, mgr.PaywallSetNextID(3))

	creator := [20]byte{0x01}
	for _, id := range []uint64{1, 3, 2} {
		require.NoError(t, mgr.PaywallCreatorAppend(creator, id))
	}
	ids, err := mgr.PaywallCreatorVideos(creator)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 3, 2}, ids)

	viewer := [20]byte{0x02}
	granted, err := mgr.PaywallGrantExists(1, viewer)
	require.NoError(t, err)
	require.False(t, granted)
	require.NoError(t, mgr.PaywallGrantPut(1, viewer, 99))
	granted, err = mgr.PaywallGrantExists(1, viewer)
	require.NoError(t, err)
	require.True(t, granted)
	at, ok, err := mgr.PaywallGrantAt(1, viewer)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(99), at)

	balance, err := mgr.PaywallPlatformBalance()
	require.NoError(t, err)
	require.Zero(t, balance.Sign())
	require.NoError(t, mgr.PaywallSetPlatformBalance(big.NewInt(60)))
	balance, err = mgr.PaywallPlatformBalance()
	require.NoError(t, err)
	require.Equal(t, int64(60), balance.Int64())
	require.Error(t, mgr.PaywallSetPlatformBalance(big.NewInt(-1)))
}

func TestPaywallOwnerIsSetOnce(t *testing.T) {
	mgr := newTestManager(t)
	_, ok, err := mgr.PaywallOwner()
	require.NoError(t, err)
	require.False(t, ok)

	owner := [20]byte{0x0f}
	require.NoError(t, mgr.PaywallSetOwner(owner))
	require.NoError(t, mgr.PaywallSetOwner(owner))
	err = mgr.PaywallSetOwner([20]byte{0x10})
	require.True(t, errors.Is(err, ErrOwnerAlreadySet))

	got, ok, err := mgr.PaywallOwner()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, owner, got)
}

func TestEventLogAppendsInOrder(t *testing.T) {
	mgr := newTestManager(t)
	for i := 0; i < 3; i++ {
		rec := &types.EventRecord{
			Height:    uint64(i + 1),
			Timestamp: 100,
			Event:     types.NewEvent("paywall.video.uploaded", "id", string(rune('1'+i))),
		}
		seq, err := mgr.AppendEvent(rec)
		require.NoError(t, err)
		require.Equal(t, uint64(i+1), seq)
		require.Equal(t, seq, rec.Seq)
	}

	page, err := mgr.EventsAfter(1, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, uint64(2), page[0].Seq)
	require.Equal(t, []string{"id"}, page[0].Event.Keys())
	v, _ := page[1].Event.Attr("id")
	require.Equal(t, "3", v)

	limited, err := mgr.EventsAfter(0, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)

	_, err = mgr.AppendEvent(&types.EventRecord{})
	require.Error(t, err)
}

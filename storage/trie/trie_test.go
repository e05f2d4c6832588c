package trie

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"viewledger/storage"
)

func TestTrieCommitFlushPersistsData(t *testing.T) {
	dir := t.TempDir()

	db1, err := storage.NewLevelDB(dir)
	require.NoError(t, err)

	tr, err := NewTrie(db1, nil)
	require.NoError(t, err)

	key := crypto.Keccak256Hash([]byte("key"))
	value := []byte("value")

	require.NoError(t, tr.Update(key.Bytes(), value))
	root, err := tr.Commit(common.Hash{}, 1)
	require.NoError(t, err)

	db1.Close()

	db2, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()

	restored, err := NewTrie(db2, root.Bytes())
	require.NoError(t, err)

	got, err := restored.Get(key.Bytes())
	require.NoError(t, err)
	require.Equal(t, value, got)
}

func TestTrieCopyIsolatesMutations(t *testing.T) {
	tr, err := NewTrie(storage.NewMemDB(), nil)
	require.NoError(t, err)

	key := crypto.Keccak256Hash([]byte("video:1"))
	require.NoError(t, tr.Update(key.Bytes(), []byte("a")))
	root, err := tr.Commit(common.Hash{}, 1)
	require.NoError(t, err)

	working := tr.Copy()
	require.NoError(t, working.Update(key.Bytes(), []byte("b")))

	got, err := tr.Get(key.Bytes())
	require.NoError(t, err)
	require.Equal(t, []byte("a"), got)
	require.Equal(t, root, tr.Root())

	workingRoot, err := working.Commit(root, 2)
	require.NoError(t, err)
	require.NotEqual(t, root, workingRoot)
}

func TestTrieDroppedCopyLeavesCommittedState(t *testing.T) {
	tr, err := NewTrie(storage.NewMemDB(), nil)
	require.NoError(t, err)

	key := crypto.Keccak256Hash([]byte("grant"))
	require.NoError(t, tr.Update(key.Bytes(), []byte{1}))
	root, err := tr.Commit(common.Hash{}, 1)
	require.NoError(t, err)

	failed := tr.Copy()
	require.NoError(t, failed.Update(key.Bytes(), []byte{2}))

	require.Equal(t, root, tr.Root())
	got, err := tr.Get(key.Bytes())
	require.NoError(t, err)
	require.Equal(t, []byte{1}, got)
}

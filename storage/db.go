package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// Database is a generic interface for a key-value store.
// The ledger runs against either the in-memory backend (tests, dev) or LevelDB.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Delete(key []byte) error
	// TrieDB exposes the trie node database layered over the same backend so
	// committed state roots survive restarts.
	TrieDB() *triedb.Database
	Close()
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	mu     sync.RWMutex
	data   map[string][]byte
	once   sync.Once
	trieDB *triedb.Database
}

func NewMemDB() *MemDB {
	return &MemDB{
		data: make(map[string][]byte),
	}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrNotFound, key)
	}
	return append([]byte(nil), value...), nil
}

func (db *MemDB) Has(key []byte) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.data[string(key)]
	return ok, nil
}

func (db *MemDB) Delete(key []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.data, string(key))
	return nil
}

// TrieDB lazily builds a trie database over a private memorydb instance.
func (db *MemDB) TrieDB() *triedb.Database {
	db.once.Do(func() {
		db.trieDB = triedb.NewDatabase(rawdb.NewDatabase(memorydb.New()), triedb.HashDefaults)
	})
	return db.trieDB
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {}

// --- Persistent DB ---

// LevelDB is a persistent key-value store using LevelDB. Trie nodes share the
// same file through an ethdb adapter.
type LevelDB struct {
	db     *leveldb.DB
	once   sync.Once
	trieDB *triedb.Database
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("%w: %x", ErrNotFound, key)
	}
	return value, err
}

// Has reports whether the key exists.
func (ldb *LevelDB) Has(key []byte) (bool, error) {
	return ldb.db.Has(key, nil)
}

// Delete removes the key.
func (ldb *LevelDB) Delete(key []byte) error {
	return ldb.db.Delete(key, nil)
}

// TrieDB returns the trie node database stored alongside the ledger keys.
func (ldb *LevelDB) TrieDB() *triedb.Database {
	ldb.once.Do(func() {
		ldb.trieDB = triedb.NewDatabase(rawdb.NewDatabase(&kvStore{db: ldb.db}), triedb.HashDefaults)
	})
	return ldb.trieDB
}

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	if ldb.trieDB != nil {
		_ = ldb.trieDB.Close()
	}
	ldb.db.Close()
}

// kvStore adapts a goleveldb handle to go-ethereum's ethdb.KeyValueStore.
type kvStore struct {
	db *leveldb.DB
}

var _ ethdb.KeyValueStore = (*kvStore)(nil)

func (s *kvStore) Has(key []byte) (bool, error) { return s.db.Has(key, nil) }

func (s *kvStore) Get(key []byte) ([]byte, error) {
	value, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

func (s *kvStore) Put(key []byte, value []byte) error { return s.db.Put(key, value, nil) }

func (s *kvStore) Delete(key []byte) error { return s.db.Delete(key, nil) }

func (s *kvStore) DeleteRange(start, end []byte) error {
	batch := new(leveldb.Batch)
	it := s.db.NewIterator(&util.Range{Start: start, Limit: end}, nil)
	defer it.Release()
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
	}
	if err := it.Error(); err != nil {
		return err
	}
	return s.db.Write(batch, nil)
}

func (s *kvStore) Stat() (string, error) { return s.db.GetProperty("leveldb.stats") }

func (s *kvStore) SyncKeyValue() error { return nil }

func (s *kvStore) Compact(start []byte, limit []byte) error {
	return s.db.CompactRange(util.Range{Start: start, Limit: limit})
}

func (s *kvStore) NewBatch() ethdb.Batch { return &kvBatch{db: s.db, b: new(leveldb.Batch)} }

func (s *kvStore) NewBatchWithSize(int) ethdb.Batch { return s.NewBatch() }

func (s *kvStore) NewIterator(prefix []byte, start []byte) ethdb.Iterator {
	return &kvIterator{it: s.db.NewIterator(bytesPrefixRange(prefix, start), nil)}
}

// Close is a no-op; the owning LevelDB closes the handle.
func (s *kvStore) Close() error { return nil }

func bytesPrefixRange(prefix, start []byte) *util.Range {
	r := util.BytesPrefix(prefix)
	r.Start = append(r.Start, start...)
	return r
}

type kvBatch struct {
	db   *leveldb.DB
	b    *leveldb.Batch
	size int
}

func (b *kvBatch) Put(key, value []byte) error {
	b.b.Put(key, value)
	b.size += len(key) + len(value)
	return nil
}

func (b *kvBatch) Delete(key []byte) error {
	b.b.Delete(key)
	b.size += len(key)
	return nil
}

func (b *kvBatch) DeleteRange(start, end []byte) error {
	it := b.db.NewIterator(&util.Range{Start: start, Limit: end}, nil)
	defer it.Release()
	for it.Next() {
		b.b.Delete(append([]byte(nil), it.Key()...))
		b.size += len(it.Key())
	}
	return it.Error()
}

func (b *kvBatch) ValueSize() int { return b.size }

func (b *kvBatch) Write() error { return b.db.Write(b.b, nil) }

func (b *kvBatch) Reset() {
	b.b.Reset()
	b.size = 0
}

func (b *kvBatch) Replay(w ethdb.KeyValueWriter) error {
	return b.b.Replay(&replayer{w: w})
}

type replayer struct {
	w   ethdb.KeyValueWriter
	err error
}

func (r *replayer) Put(key, value []byte) {
	if r.err != nil {
		return
	}
	r.err = r.w.Put(key, value)
}

func (r *replayer) Delete(key []byte) {
	if r.err != nil {
		return
	}
	r.err = r.w.Delete(key)
}

type kvIterator struct {
	it iterator.Iterator
}

func (i *kvIterator) Next() bool    { return i.it.Next() }
func (i *kvIterator) Error() error  { return i.it.Error() }
func (i *kvIterator) Key() []byte   { return i.it.Key() }
func (i *kvIterator) Value() []byte { return i.it.Value() }
func (i *kvIterator) Release()      { i.it.Release() }

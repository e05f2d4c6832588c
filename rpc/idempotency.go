package rpc

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"viewledger/crypto"
)

var bucketIdempotency = []byte("idempotency")

// IdempotencyRecord stores the response cached for an idempotency key.
type IdempotencyRecord struct {
	StatusCode  int       `json:"statusCode"`
	Body        []byte    `json:"body"`
	Fingerprint string    `json:"fingerprint"`
	StoredAt    time.Time `json:"storedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// IdempotencyStore caches mutating responses in a bbolt file so a retried
// submission replays the original outcome instead of applying twice.
type IdempotencyStore struct {
	db  *bolt.DB
	ttl time.Duration

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewIdempotencyStore(path string, ttl time.Duration) (*IdempotencyStore, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketIdempotency)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &IdempotencyStore{db: db, ttl: ttl, locks: make(map[string]*keyLock)}, nil
}

// Close releases the underlying Bolt database handle.
func (s *IdempotencyStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the cached response for key when it has not expired. Expired
// entries are deleted on read.
func (s *IdempotencyStore) Get(key string, now time.Time) (IdempotencyRecord, bool, error) {
	var record IdempotencyRecord
	found := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketIdempotency)
		raw := bucket.Get([]byte(key))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &record); err != nil {
			return err
		}
		if now.After(record.ExpiresAt) {
			record = IdempotencyRecord{}
			return bucket.Delete([]byte(key))
		}
		found = true
		return nil
	})
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return record, found, nil
}

// Put stores record under key with the store's TTL.
func (s *IdempotencyStore) Put(key string, record IdempotencyRecord, now time.Time) error {
	record.StoredAt = now
	record.ExpiresAt = now.Add(s.ttl)
	return s.db.Update(func(tx *bolt.Tx) error {
		payload, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketIdempotency).Put([]byte(key), payload)
	})
}

// Prune deletes every expired entry and returns how many were removed.
func (s *IdempotencyStore) Prune(now time.Time) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketIdempotency)
		var expired [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			var record IdempotencyRecord
			if err := json.Unmarshal(v, &record); err != nil || now.After(record.ExpiresAt) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		removed = len(expired)
		return nil
	})
	return removed, err
}

// lock serialises concurrent requests carrying the same key so only one of
// them executes.
func (s *IdempotencyStore) lock(key string) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

func scopeIdempotencyKey(caller [20]byte, method, key string) string {
	return crypto.FormatIdentity(caller) + "|" + method + "|" + key
}

func requestFingerprint(req *RPCRequest) string {
	h := sha256.New()
	h.Write([]byte(req.Method))
	for _, p := range req.Params {
		h.Write([]byte{0})
		var compact bytes.Buffer
		if err := json.Compact(&compact, p); err != nil {
			h.Write(p)
			continue
		}
		h.Write(compact.Bytes())
	}
	return hex.EncodeToString(h.Sum(nil))
}

// withResponseID rewrites the id of a cached response envelope to match the
// replaying request.
func withResponseID(body []byte, id interface{}) []byte {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return body
	}
	encodedID, err := json.Marshal(id)
	if err != nil {
		return body
	}
	envelope["id"] = encodedID
	out, err := json.Marshal(envelope)
	if err != nil {
		return body
	}
	return append(out, '\n')
}

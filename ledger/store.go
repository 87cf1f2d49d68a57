package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/psm-labs/solpay"
)

// HistoryLimit is the number of subscriptions kept, newest first.
const HistoryLimit = 50

var (
	bucketSubscriptions = []byte("subscriptions")
	bucketCurrent       = []byte("current")

	keyHistory = []byte("history")
	keyCurrent = []byte("current")

	// ErrNotFound is returned when the subscription to update does not exist.
	ErrNotFound = errors.New("subscription not found")
)

// Store persists the subscription history and the current slot.
type Store interface {
	// History returns stored subscriptions, newest first.
	History() ([]solpay.Subscription, error)
	// Current returns the current slot, or nil when empty.
	Current() (*solpay.Subscription, error)
	// Save pushes sub onto the history (capped) and overwrites the current slot.
	Save(sub solpay.Subscription) error
	// AttachNFT sets NFTMint on the entry with signature, in history and in
	// the current slot.
	AttachNFT(signature, mint string) error
	Close() error
}

// BoltStore is a Store in a bbolt file. The file is opened for each
// transaction: reads share a read-only lock and writes hold the exclusive
// lock only while they run, so several processes can use one store.
type BoltStore struct {
	path    string
	options bolt.Options
}

// NewBoltStore creates the store at path if needed. options may be nil;
// a zero Timeout waits one second for the file lock.
func NewBoltStore(path string, options *bolt.Options) (*BoltStore, error) {
	s := &BoltStore{path: path}
	if options != nil {
		s.options = *options
	}
	if s.options.Timeout == 0 {
		s.options.Timeout = time.Second
	}
	if err := s.update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketSubscriptions, bucketCurrent} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the database file.
func (s *BoltStore) Path() string {
	return s.path
}

// Close is a no-op; no handle outlives a transaction.
func (s *BoltStore) Close() error {
	return nil
}

func (s *BoltStore) open(readOnly bool) (*bolt.DB, error) {
	options := s.options
	options.ReadOnly = readOnly
	db, err := bolt.Open(s.path, 0o600, &options)
	if err != nil {
		return nil, fmt.Errorf("open subscription store %s: %w", s.path, err)
	}
	return db, nil
}

func (s *BoltStore) view(fn func(tx *bolt.Tx) error) error {
	db, err := s.open(true)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.View(fn)
}

func (s *BoltStore) update(fn func(tx *bolt.Tx) error) error {
	db, err := s.open(false)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Update(fn)
}

func (s *BoltStore) History() ([]solpay.Subscription, error) {
	var out []solpay.Subscription
	err := s.view(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketSubscriptions)
		if bucket == nil {
			return nil
		}
		raw := bucket.Get(keyHistory)
		if raw == nil {
			return nil
		}
		return json.Unmarshal(raw, &out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) Current() (*solpay.Subscription, error) {
	var out *solpay.Subscription
	err := s.view(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketCurrent)
		if bucket == nil {
			return nil
		}
		raw := bucket.Get(keyCurrent)
		if raw == nil {
			return nil
		}
		var sub solpay.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return err
		}
		out = &sub
		return nil
	})
	return out, err
}

func (s *BoltStore) Save(sub solpay.Subscription) error {
	return s.update(func(tx *bolt.Tx) error {
		history := tx.Bucket(bucketSubscriptions)
		var existing []solpay.Subscription
		if raw := history.Get(keyHistory); raw != nil {
			// unreadable history is replaced
			if err := json.Unmarshal(raw, &existing); err != nil {
				existing = nil
			}
		}
		encoded, err := json.Marshal(pushFront(existing, sub))
		if err != nil {
			return err
		}
		if err := history.Put(keyHistory, encoded); err != nil {
			return err
		}
		return putCurrent(tx, sub)
	})
}

func (s *BoltStore) AttachNFT(signature, mint string) error {
	return s.update(func(tx *bolt.Tx) error {
		history := tx.Bucket(bucketSubscriptions)
		var existing []solpay.Subscription
		if raw := history.Get(keyHistory); raw != nil {
			if err := json.Unmarshal(raw, &existing); err != nil {
				return err
			}
		}
		updated, ok := attach(existing, signature, mint)
		if !ok {
			return ErrNotFound
		}
		encoded, err := json.Marshal(existing)
		if err != nil {
			return err
		}
		if err := history.Put(keyHistory, encoded); err != nil {
			return err
		}

		if raw := tx.Bucket(bucketCurrent).Get(keyCurrent); raw != nil {
			var current solpay.Subscription
			if err := json.Unmarshal(raw, &current); err == nil && current.Signature != signature {
				return nil
			}
		}
		return putCurrent(tx, updated)
	})
}

func putCurrent(tx *bolt.Tx, sub solpay.Subscription) error {
	encoded, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketCurrent).Put(keyCurrent, encoded)
}

func pushFront(history []solpay.Subscription, sub solpay.Subscription) []solpay.Subscription {
	out := make([]solpay.Subscription, 0, len(history)+1)
	out = append(out, sub)
	out = append(out, history...)
	if len(out) > HistoryLimit {
		out = out[:HistoryLimit]
	}
	return out
}

// attach sets the mint on the newest entry with signature, in place.
func attach(history []solpay.Subscription, signature, mint string) (solpay.Subscription, bool) {
	for i := range history {
		if history[i].Signature == signature {
			history[i].NFTMint = mint
			return history[i], true
		}
	}
	return solpay.Subscription{}, false
}

// MemoryStore is a Store kept in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	history []solpay.Subscription
	current *solpay.Subscription
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) History() ([]solpay.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]solpay.Subscription(nil), s.history...), nil
}

func (s *MemoryStore) Current() (*solpay.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, nil
	}
	sub := *s.current
	return &sub, nil
}

func (s *MemoryStore) Save(sub solpay.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = pushFront(s.history, sub)
	s.current = &sub
	return nil
}

func (s *MemoryStore) AttachNFT(signature, mint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated, ok := attach(s.history, signature, mint)
	if !ok {
		return ErrNotFound
	}
	if s.current == nil || s.current.Signature == signature {
		s.current = &updated
	}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

var (
	_ Store = (*BoltStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

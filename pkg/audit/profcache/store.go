package profcache

import (
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned when no cached profile exists for a host.
var ErrNotFound = errors.New("profile not found in cache")

// Store wraps Badger for profile cache operations.
type Store struct {
	db *badger.DB
}

// OpenStore opens or creates a cache store at the given path.
func OpenStore(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable badger logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get retrieves a cached entry by host.
func (s *Store) Get(host string) (*cachedProfile, error) {
	var entry cachedProfile

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(host))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		return item.Value(entry.decode)
	})

	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Put stores a cached entry with the given time-to-live. Badger expires the
// key on its own after ttl; the cache layer additionally validates age
// against its injected clock.
func (s *Store) Put(host string, entry *cachedProfile, ttl time.Duration) error {
	value, err := entry.encode()
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(host), value).WithTTL(ttl)
		return txn.SetEntry(e)
	})
}

// Delete removes a cached entry.
func (s *Store) Delete(host string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(host))
	})
}

// DeleteAll removes every cached entry.
func (s *Store) DeleteAll() error {
	return s.db.DropAll()
}

// Count returns the number of live entries in the store.
func (s *Store) Count() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

package storage

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// BadgerTier is a DurableTier backed by an embedded BadgerDB instance.
// Badger holds an exclusive lock on its directory, so this tier does not
// support cross-process convergence; it suits single-process deployments
// (a kiosk terminal, a daemon) and, in-memory, tests. Use FileTier plus
// Watcher when multiple clients share state.
type BadgerTier struct {
	db *badger.DB
}

var _ DurableTier = (*BadgerTier)(nil)

// NewBadgerTier opens a badger-backed tier at dir.
func NewBadgerTier(dir string) (*BadgerTier, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}

	return &BadgerTier{db: db}, nil
}

// NewInMemoryBadgerTier opens a badger-backed tier with no disk
// persistence. Used in tests.
func NewInMemoryBadgerTier() (*BadgerTier, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}

	return &BadgerTier{db: db}, nil
}

// Get reads the value for key.
func (t *BadgerTier) Get(key string) (string, error) {
	var value string
	err := t.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return "", ErrNotFound
		}
		return "", classifyBadgerError(err)
	}
	return value, nil
}

// Set writes the value for key.
func (t *BadgerTier) Set(key, value string) error {
	err := t.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	return classifyBadgerError(err)
}

// Remove deletes the entry for key. Removing an absent key is not an
// error.
func (t *BadgerTier) Remove(key string) error {
	err := t.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	return classifyBadgerError(err)
}

// Keys lists stored keys carrying the given prefix.
func (t *BadgerTier) Keys(prefix string) ([]string, error) {
	var keys []string
	err := t.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, classifyBadgerError(err)
	}
	return keys, nil
}

// Close closes the underlying database.
func (t *BadgerTier) Close() error {
	return t.db.Close()
}

// classifyBadgerError maps badger failures onto the tier sentinels.
func classifyBadgerError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, badger.ErrTxnTooBig):
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	case errors.Is(err, badger.ErrDBClosed):
		return fmt.Errorf("%w: %v", ErrRestricted, err)
	}

	return err
}

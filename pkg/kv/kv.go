// Package kv persists small pieces of channel state (poll offsets,
// greeted users, session tokens) in BadgerDB.
package kv

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// ErrNotFound is returned when a key has no value.
var ErrNotFound = errors.New("kv: key not found")

type KV struct {
	db       *badger.DB
	closed   bool
	closedMu sync.RWMutex
}

// Options for the store.
type Options struct {
	Dir        string // data directory, ignored in memory mode
	SyncWrites bool
	MemoryMode bool // in-memory only, used by tests
}

// Open opens a store. Badger's own logger is silenced; the store logs
// a single line on open.
func Open(opt Options) (*KV, error) {
	opts := badger.DefaultOptions(opt.Dir)
	opts.SyncWrites = opt.SyncWrites
	opts.Logger = nil

	if opt.MemoryMode {
		opts.InMemory = true
		opts.Dir = ""
		opts.ValueDir = ""
	} else {
		opts.Compression = options.ZSTD
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger failed: %w", err)
	}

	log.Printf("[KV] Opened: %s (memory: %v)", opt.Dir, opt.MemoryMode)
	return &KV{db: db}, nil
}

// OpenDir opens a persistent store at dir with default options.
func OpenDir(dir string) (*KV, error) {
	return Open(Options{Dir: dir})
}

// OpenMemory opens an in-memory store.
func OpenMemory() (*KV, error) {
	return Open(Options{MemoryMode: true})
}

// Close closes the store. Safe to call twice.
func (k *KV) Close() error {
	k.closedMu.Lock()
	defer k.closedMu.Unlock()

	if k.closed {
		return nil
	}
	k.closed = true
	return k.db.Close()
}

func (k *KV) guard() error {
	if k.closed {
		return fmt.Errorf("kv: store is closed")
	}
	return nil
}

// Set stores a key-value pair.
func (k *KV) Set(key, value string) error {
	k.closedMu.RLock()
	defer k.closedMu.RUnlock()
	if err := k.guard(); err != nil {
		return err
	}

	return k.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
}

// Get returns the value for key, or ErrNotFound.
func (k *KV) Get(key string) (string, error) {
	k.closedMu.RLock()
	defer k.closedMu.RUnlock()
	if err := k.guard(); err != nil {
		return "", err
	}

	var result string
	err := k.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		result = string(val)
		return nil
	})
	return result, err
}

// SetInt stores an integer value.
func (k *KV) SetInt(key string, value int64) error {
	return k.Set(key, strconv.FormatInt(value, 10))
}

// GetInt returns an integer value. Missing keys return 0 without error,
// which matches how poll offsets start.
func (k *KV) GetInt(key string) (int64, error) {
	s, err := k.Get(key)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(s, 10, 64)
}

// Delete removes a key. Deleting a missing key is not an error.
func (k *KV) Delete(key string) error {
	k.closedMu.RLock()
	defer k.closedMu.RUnlock()
	if err := k.guard(); err != nil {
		return err
	}

	return k.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Exists reports whether a key has a value.
func (k *KV) Exists(key string) (bool, error) {
	k.closedMu.RLock()
	defer k.closedMu.RUnlock()
	if err := k.guard(); err != nil {
		return false, err
	}

	exists := false
	err := k.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	return exists, err
}

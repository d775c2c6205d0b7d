// Package hashcache persists (path, size, mtime) -> TTH lookups in a
// BadgerDB bucket so the refresh builder can skip re-hashing a file whose
// size and modification time have not changed since it was last indexed.
//
// Key Namespace:
//
// Data Type   Prefix   Key Format            Value
// =========================================================
// Entry       "h:"     h:<sha256(path)>      entry (JSON)
package hashcache

import (
	"crypto/sha256"
	"encoding/json"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/dcwire/aircore/pkg/tth"
)

const prefixEntry = "h:"

func keyEntry(path string) []byte {
	sum := sha256.Sum256([]byte(path))
	return append([]byte(prefixEntry), sum[:]...)
}

// entry is the value stored for a cached path.
type entry struct {
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
	TTH     tth.Sum   `json:"tth"`
}

// Cache is a BadgerDB-backed (path, size, mtime) -> TTH lookup table, used
// by the refresh builder to avoid rehashing files unchanged since their
// last scan.
type Cache struct {
	db *badger.DB
}

// Open opens (creating if necessary) a hash cache at dir. The caller must
// Close it on shutdown.
func Open(dir string) (*Cache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Lookup returns the cached TTH for path if its size and modTime still
// match what was recorded the last time it was hashed. A false second
// return means the caller must hash the file itself.
func (c *Cache) Lookup(path string, size int64, modTime time.Time) (tth.Sum, bool) {
	var found entry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyEntry(path))
		if err == badger.ErrKeyNotFound {
			return err
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &found)
		})
	})
	if err != nil {
		return tth.Sum{}, false
	}
	if found.Size != size || !found.ModTime.Equal(modTime) {
		return tth.Sum{}, false
	}
	return found.TTH, true
}

// Store records the TTH computed for path at its current size and modTime,
// so the next refresh that sees the same (size, modTime) pair can skip
// rehashing.
func (c *Cache) Store(path string, size int64, modTime time.Time, sum tth.Sum) error {
	e := entry{Size: size, ModTime: modTime, TTH: sum}
	val, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyEntry(path), val)
	})
}

// Forget removes any cached entry for path, used when a file is deleted
// from its share root so a later file at the same path can't be served a
// stale hash if it happens to match size and mtime by coincidence within
// filesystem timestamp resolution.
func (c *Cache) Forget(path string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(keyEntry(path))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

// Package storage defines the engine contract and its two implementations:
// an in-memory sharded map and an embedded badger tree. All operations are
// single-key atomic; absence is reported through the ok return, never as an
// error.
package storage

import (
	"iter"

	"tablekv/internal/types"
)

// Storage is the engine contract. Tables are created on first write and
// never implicitly deleted.
type Storage interface {
	// Get returns the value stored under (table, key).
	Get(table, key string) (types.Value, bool, error)
	// Set stores value under (table, key) and returns the previous value.
	Set(table, key string, value types.Value) (types.Value, bool, error)
	// Contains reports whether (table, key) is present.
	Contains(table, key string) (bool, error)
	// Del removes (table, key) and returns the removed value.
	Del(table, key string) (types.Value, bool, error)
	// GetAll returns every pair in the table, unordered.
	GetAll(table string) ([]types.KvPair, error)
	// Iter returns a lazy sequence over the table's pairs.
	Iter(table string) (iter.Seq[types.KvPair], error)
}

// Closer is implemented by engines holding external resources.
type Closer interface {
	Close() error
}

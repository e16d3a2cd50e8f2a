package storage

import (
	"encoding/binary"
	"iter"
	"sync"

	"github.com/zeebo/blake3"

	"tablekv/internal/types"
)

const shardCount = 16

// memShard guards one slice of a table's key space. Reads take the shared
// lock; writes lock only their shard.
type memShard struct {
	mu      sync.RWMutex
	entries map[string]types.Value
}

type memTable struct {
	shards [shardCount]*memShard
}

func newMemTable() *memTable {
	t := &memTable{}
	for i := range t.shards {
		t.shards[i] = &memShard{entries: make(map[string]types.Value)}
	}
	return t
}

// shardFor hashes the key with BLAKE3 and maps the first 4 bytes onto a
// shard index.
func (t *memTable) shardFor(key string) *memShard {
	h := blake3.New()
	h.Write([]byte(key))
	sum := h.Sum(nil)
	return t.shards[binary.BigEndian.Uint32(sum[:4])%shardCount]
}

// MemStore is the in-memory engine: a table registry over sharded maps.
type MemStore struct {
	mu     sync.RWMutex
	tables map[string]*memTable
}

func NewMemStore() *MemStore {
	return &MemStore{tables: make(map[string]*memTable)}
}

func (s *MemStore) table(name string) (*memTable, bool) {
	s.mu.RLock()
	t, ok := s.tables[name]
	s.mu.RUnlock()
	return t, ok
}

func (s *MemStore) tableOrCreate(name string) *memTable {
	if t, ok := s.table(name); ok {
		return t
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[name]; ok {
		return t
	}
	t := newMemTable()
	s.tables[name] = t
	return t
}

func (s *MemStore) Get(table, key string) (types.Value, bool, error) {
	t, ok := s.table(table)
	if !ok {
		return types.Value{}, false, nil
	}
	shard := t.shardFor(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	v, ok := shard.entries[key]
	return v, ok, nil
}

func (s *MemStore) Set(table, key string, value types.Value) (types.Value, bool, error) {
	shard := s.tableOrCreate(table).shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	prev, ok := shard.entries[key]
	shard.entries[key] = value
	return prev, ok, nil
}

func (s *MemStore) Contains(table, key string) (bool, error) {
	_, ok, err := s.Get(table, key)
	return ok, err
}

func (s *MemStore) Del(table, key string) (types.Value, bool, error) {
	t, ok := s.table(table)
	if !ok {
		return types.Value{}, false, nil
	}
	shard := t.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	prev, ok := shard.entries[key]
	if ok {
		delete(shard.entries, key)
	}
	return prev, ok, nil
}

// GetAll snapshots the table shard by shard; concurrent writes to shards not
// yet visited may or may not be observed.
func (s *MemStore) GetAll(table string) ([]types.KvPair, error) {
	t, ok := s.table(table)
	if !ok {
		return nil, nil
	}
	var pairs []types.KvPair
	for _, shard := range t.shards {
		shard.mu.RLock()
		for k, v := range shard.entries {
			pairs = append(pairs, types.Pair(k, v))
		}
		shard.mu.RUnlock()
	}
	return pairs, nil
}

func (s *MemStore) Iter(table string) (iter.Seq[types.KvPair], error) {
	pairs, err := s.GetAll(table)
	if err != nil {
		return nil, err
	}
	return func(yield func(types.KvPair) bool) {
		for _, p := range pairs {
			if !yield(p) {
				return
			}
		}
	}, nil
}

package storage

import (
	"iter"
	"os"
	"strings"

	"github.com/coocood/badger"
	"github.com/pkg/errors"

	"tablekv/internal/types"
)

// BadgerStore is the embedded on-disk engine. Each logical (table, key) maps
// to the composite physical key "{table}:{key}", with '\' and ':' in the table
// name backslash-escaped; values carry the wire encoding of Value. The first
// unescaped ':' always ends the table part and enumeration strips the
// "{table}:" prefix by length, so separator characters inside table names or
// keys are harmless.
type BadgerStore struct {
	db   *badger.DB
	path string
}

// NewBadgerStore opens (or creates) a badger tree at path with synchronous
// writes, so an acknowledged Set is durable.
func NewBadgerStore(path string) (*BadgerStore, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, errors.Wrapf(err, "create engine dir %s", path)
	}
	opts := badger.DefaultOptions
	opts.Dir = path
	opts.ValueDir = path
	opts.SyncWrites = true
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open badger at %s", path)
	}
	return &BadgerStore{db: db, path: path}, nil
}

func (s *BadgerStore) Close() error {
	return errors.Wrap(s.db.Close(), "close badger")
}

var tableEscaper = strings.NewReplacer(`\`, `\\`, `:`, `\:`)

func physicalKey(table, key string) []byte {
	return []byte(tableEscaper.Replace(table) + ":" + key)
}

func tablePrefix(table string) []byte {
	return []byte(tableEscaper.Replace(table) + ":")
}

func decodeValue(raw []byte) (types.Value, error) {
	var v types.Value
	if err := v.Unmarshal(raw); err != nil {
		return types.Value{}, errors.Wrap(err, "decode stored value")
	}
	return v, nil
}

func (s *BadgerStore) Get(table, key string) (types.Value, bool, error) {
	var value types.Value
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(physicalKey(table, key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		raw, err := item.Value()
		if err != nil {
			return err
		}
		if value, err = decodeValue(raw); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return types.Value{}, false, errors.Wrapf(err, "get %s:%s", table, key)
	}
	return value, found, nil
}

func (s *BadgerStore) Set(table, key string, value types.Value) (types.Value, bool, error) {
	data, err := value.Marshal()
	if err != nil {
		return types.Value{}, false, errors.Wrap(err, "encode value")
	}

	var prev types.Value
	hadPrev := false
	err = s.db.Update(func(txn *badger.Txn) error {
		pk := physicalKey(table, key)
		item, err := txn.Get(pk)
		if err == nil {
			raw, err := item.Value()
			if err != nil {
				return err
			}
			if prev, err = decodeValue(raw); err != nil {
				return err
			}
			hadPrev = true
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(pk, data)
	})
	if err != nil {
		return types.Value{}, false, errors.Wrapf(err, "set %s:%s", table, key)
	}
	return prev, hadPrev, nil
}

func (s *BadgerStore) Contains(table, key string) (bool, error) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(physicalKey(table, key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, errors.Wrapf(err, "contains %s:%s", table, key)
	}
	return found, nil
}

func (s *BadgerStore) Del(table, key string) (types.Value, bool, error) {
	var prev types.Value
	hadPrev := false
	err := s.db.Update(func(txn *badger.Txn) error {
		pk := physicalKey(table, key)
		item, err := txn.Get(pk)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		raw, err := item.Value()
		if err != nil {
			return err
		}
		if prev, err = decodeValue(raw); err != nil {
			return err
		}
		hadPrev = true
		return txn.Delete(pk)
	})
	if err != nil {
		return types.Value{}, false, errors.Wrapf(err, "del %s:%s", table, key)
	}
	return prev, hadPrev, nil
}

// GetAll scans the "{table}:" prefix in one read transaction, a point-in-time
// snapshot of the table.
func (s *BadgerStore) GetAll(table string) ([]types.KvPair, error) {
	prefix := tablePrefix(table)
	var pairs []types.KvPair
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.KeyCopy(nil)[len(prefix):])
			raw, err := item.Value()
			if err != nil {
				return err
			}
			value, err := decodeValue(raw)
			if err != nil {
				return err
			}
			pairs = append(pairs, types.Pair(key, value))
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scan table %s", table)
	}
	return pairs, nil
}

// Iter opens its read transaction when iteration starts; the sequence is a
// best-effort scan with respect to writes after that point.
func (s *BadgerStore) Iter(table string) (iter.Seq[types.KvPair], error) {
	prefix := tablePrefix(table)
	return func(yield func(types.KvPair) bool) {
		_ = s.db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				item := it.Item()
				key := string(item.KeyCopy(nil)[len(prefix):])
				raw, err := item.Value()
				if err != nil {
					return err
				}
				value, err := decodeValue(raw)
				if err != nil {
					return err
				}
				if !yield(types.Pair(key, value)) {
					return nil
				}
			}
			return nil
		})
	}, nil
}

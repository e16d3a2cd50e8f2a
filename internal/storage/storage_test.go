package storage

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablekv/internal/types"
)

func engines(t *testing.T) map[string]Storage {
	t.Helper()
	bs, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { bs.Close() })
	return map[string]Storage{
		"memory": NewMemStore(),
		"badger": bs,
	}
}

func sortPairs(pairs []types.KvPair) {
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key < pairs[j].Key })
}

func TestBasicInterface(t *testing.T) {
	for name, store := range engines(t) {
		t.Run(name, func(t *testing.T) {
			table, key := "test_table", "test_key"
			value := types.StringValue("test_value")

			_, ok, err := store.Get(table, key)
			require.NoError(t, err)
			assert.False(t, ok)

			_, ok, err = store.Set(table, key, value)
			require.NoError(t, err)
			assert.False(t, ok)

			got, ok, err := store.Get(table, key)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, value, got)

			exists, err := store.Contains(table, key)
			require.NoError(t, err)
			assert.True(t, exists)

			prev, ok, err := store.Set(table, key, types.IntegerValue(7))
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, value, prev)

			removed, ok, err := store.Del(table, key)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, types.IntegerValue(7), removed)

			_, ok, err = store.Del(table, key)
			require.NoError(t, err)
			assert.False(t, ok)

			exists, err = store.Contains(table, key)
			require.NoError(t, err)
			assert.False(t, exists)
		})
	}
}

func TestGetAll(t *testing.T) {
	for name, store := range engines(t) {
		t.Run(name, func(t *testing.T) {
			_, _, err := store.Set("t2", "k1", types.StringValue("v1"))
			require.NoError(t, err)
			_, _, err = store.Set("t2", "k2", types.StringValue("v2"))
			require.NoError(t, err)

			pairs, err := store.GetAll("t2")
			require.NoError(t, err)
			sortPairs(pairs)
			assert.Equal(t, []types.KvPair{
				types.Pair("k1", types.StringValue("v1")),
				types.Pair("k2", types.StringValue("v2")),
			}, pairs)

			empty, err := store.GetAll("absent")
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestIter(t *testing.T) {
	for name, store := range engines(t) {
		t.Run(name, func(t *testing.T) {
			_, _, err := store.Set("t3", "k1", types.StringValue("v1"))
			require.NoError(t, err)
			_, _, err = store.Set("t3", "k2", types.StringValue("v2"))
			require.NoError(t, err)

			seq, err := store.Iter("t3")
			require.NoError(t, err)

			var pairs []types.KvPair
			for p := range seq {
				pairs = append(pairs, p)
			}
			sortPairs(pairs)
			assert.Equal(t, []types.KvPair{
				types.Pair("k1", types.StringValue("v1")),
				types.Pair("k2", types.StringValue("v2")),
			}, pairs)
		})
	}
}

func TestValueKindsSurvive(t *testing.T) {
	values := []types.Value{
		types.StringValue("text"),
		types.BinaryValue([]byte{1, 2, 3}),
		types.IntegerValue(-99),
		types.FloatValue(0.25),
		types.BoolValue(true),
	}
	for name, store := range engines(t) {
		t.Run(name, func(t *testing.T) {
			for i, v := range values {
				key := fmt.Sprintf("k%d", i)
				_, _, err := store.Set("kinds", key, v)
				require.NoError(t, err)
				got, ok, err := store.Get("kinds", key)
				require.NoError(t, err)
				require.True(t, ok)
				assert.Equal(t, v, got)
			}
		})
	}
}

// Tables whose names contain the composite-key separator must not collide or
// leak entries into each other.
func TestSeparatorInTableName(t *testing.T) {
	for name, store := range engines(t) {
		t.Run(name, func(t *testing.T) {
			_, _, err := store.Set("a:b", "k", types.StringValue("one"))
			require.NoError(t, err)
			_, _, err = store.Set("a", "b:k", types.StringValue("two"))
			require.NoError(t, err)

			got, ok, err := store.Get("a:b", "k")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, types.StringValue("one"), got)

			got, ok, err = store.Get("a", "b:k")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, types.StringValue("two"), got)
		})
	}
}

// The two engines must agree on the outcome of any operation script, up to
// GetAll ordering.
func TestEngineEquivalence(t *testing.T) {
	mem := NewMemStore()
	bs, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	defer bs.Close()

	type op struct {
		kind  string
		table string
		key   string
		value types.Value
	}
	script := []op{
		{"set", "t", "a", types.IntegerValue(1)},
		{"set", "t", "b", types.StringValue("x")},
		{"get", "t", "a", types.Value{}},
		{"set", "t", "a", types.IntegerValue(2)},
		{"del", "t", "b", types.Value{}},
		{"del", "t", "missing", types.Value{}},
		{"contains", "t", "a", types.Value{}},
		{"contains", "t", "b", types.Value{}},
		{"set", "u", "a", types.BoolValue(true)},
		{"getall", "t", "", types.Value{}},
		{"getall", "u", "", types.Value{}},
		{"getall", "empty", "", types.Value{}},
	}

	for i, o := range script {
		switch o.kind {
		case "set":
			v1, ok1, err1 := mem.Set(o.table, o.key, o.value)
			v2, ok2, err2 := bs.Set(o.table, o.key, o.value)
			require.NoError(t, err1, "op %d", i)
			require.NoError(t, err2, "op %d", i)
			assert.Equal(t, ok1, ok2, "op %d", i)
			assert.Equal(t, v1, v2, "op %d", i)
		case "get":
			v1, ok1, err1 := mem.Get(o.table, o.key)
			v2, ok2, err2 := bs.Get(o.table, o.key)
			require.NoError(t, err1, "op %d", i)
			require.NoError(t, err2, "op %d", i)
			assert.Equal(t, ok1, ok2, "op %d", i)
			assert.Equal(t, v1, v2, "op %d", i)
		case "del":
			v1, ok1, err1 := mem.Del(o.table, o.key)
			v2, ok2, err2 := bs.Del(o.table, o.key)
			require.NoError(t, err1, "op %d", i)
			require.NoError(t, err2, "op %d", i)
			assert.Equal(t, ok1, ok2, "op %d", i)
			assert.Equal(t, v1, v2, "op %d", i)
		case "contains":
			ok1, err1 := mem.Contains(o.table, o.key)
			ok2, err2 := bs.Contains(o.table, o.key)
			require.NoError(t, err1, "op %d", i)
			require.NoError(t, err2, "op %d", i)
			assert.Equal(t, ok1, ok2, "op %d", i)
		case "getall":
			p1, err1 := mem.GetAll(o.table)
			p2, err2 := bs.GetAll(o.table)
			require.NoError(t, err1, "op %d", i)
			require.NoError(t, err2, "op %d", i)
			sortPairs(p1)
			sortPairs(p2)
			assert.Equal(t, p1, p2, "op %d", i)
		}
	}
}

func TestBadgerPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	bs, err := NewBadgerStore(dir)
	require.NoError(t, err)
	_, _, err = bs.Set("score", "u1", types.IntegerValue(10))
	require.NoError(t, err)
	require.NoError(t, bs.Close())

	bs, err = NewBadgerStore(dir)
	require.NoError(t, err)
	defer bs.Close()

	got, ok, err := bs.Get("score", "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.IntegerValue(10), got)
}

package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablekv/internal/types"
)

func TestWALAppendReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.wal")
	w, err := OpenWAL(path)
	require.NoError(t, err)

	reqs := []*types.CommandRequest{
		types.NewHset("score", "u1", types.IntegerValue(10)),
		types.NewHdel("score", "u2"),
		types.NewHmset("score", []types.KvPair{types.Pair("u3", types.StringValue("x"))}),
	}
	for _, req := range reqs {
		require.NoError(t, w.Append(req))
	}
	require.NoError(t, w.Close())

	w, err = OpenWAL(path)
	require.NoError(t, err)
	defer w.Close()

	got, err := w.Replay()
	require.NoError(t, err)
	assert.Equal(t, reqs, got)
}

func TestWALCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.wal")
	w, err := OpenWAL(path)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Append(types.NewHset("t", "k", types.StringValue("v"))))
	require.NoError(t, w.Checkpoint())

	got, err := w.Replay()
	require.NoError(t, err)
	assert.Empty(t, got)

	// the log stays usable after a checkpoint
	require.NoError(t, w.Append(types.NewHdel("t", "k")))
	got, err = w.Replay()
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestWALTornTailIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.wal")
	w, err := OpenWAL(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(types.NewHset("t", "k", types.StringValue("v"))))
	require.NoError(t, w.Append(types.NewHdel("t", "k")))
	require.NoError(t, w.Close())

	// chop two bytes off the last record
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-2))

	w, err = OpenWAL(path)
	require.NoError(t, err)
	defer w.Close()

	got, err := w.Replay()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "hset", got[0].CommandName())
}

func TestWALRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-wal")
	require.NoError(t, os.WriteFile(path, []byte("something else entirely"), 0644))

	_, err := OpenWAL(path)
	assert.Error(t, err)
}

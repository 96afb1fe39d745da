package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stratumhq/stratum/pkg/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInitRunAndLoadCheckpointRoundTrip(t *testing.T) {
	s := openTestStore(t)
	const planHash = "abc123"
	require.NoError(t, s.InitRun(planHash, []string{"item-1"}))

	_, found, err := s.LoadCheckpoint(planHash, "item-1")
	require.NoError(t, err)
	assert.False(t, found)

	ckp := Checkpoint{
		ItemID:      "item-1",
		Cursor:      value.Cursor{Values: []value.Value{value.Int64(42)}},
		RowsWritten: 100,
		UpdatedAt:   time.Now(),
	}
	wal := WALEntry{BatchID: "b1", ItemID: "item-1", Cursor: ckp.Cursor, CreatedAt: ckp.UpdatedAt}
	require.NoError(t, s.CommitBatch(planHash, ckp, wal))

	loaded, found, err := s.LoadCheckpoint(planHash, "item-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(100), loaded.RowsWritten)
	assert.Equal(t, int64(42), loaded.Cursor.Values[0].Int)
}

func TestLoadCheckpointUnknownItemErrors(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.InitRun("h", []string{"item-1"}))
	_, _, err := s.LoadCheckpoint("h", "does-not-exist")
	assert.Error(t, err)
}

package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabtext/internal/ot"
	"collabtext/internal/storage"
)

func record(t *testing.T, version int) storage.Record {
	t.Helper()
	op, err := ot.NewInsert(0, "x")
	require.NoError(t, err)
	return storage.Record{
		Op:            op,
		NewVersion:    version,
		ClientID:      "client",
		ClientVersion: version - 1,
		RequestID:     "req",
	}
}

func TestMemoryStoreAppendAndReplay(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()

	for v := 1; v <= 3; v++ {
		pos, err := s.AppendEvent(ctx, "doc", record(t, v))
		require.NoError(t, err)
		assert.Equal(t, int64(v), pos)
	}

	recs, err := s.ReplayEventsSince(ctx, "doc", 0)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, 1, recs[0].NewVersion)
	assert.Equal(t, int64(3), recs[2].LogPos)

	recs, err = s.ReplayEventsSince(ctx, "doc", 2)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 3, recs[0].NewVersion)

	recs, err = s.ReplayEventsSince(ctx, "doc", 3)
	require.NoError(t, err)
	assert.Empty(t, recs)

	recs, err = s.ReplayEventsSince(ctx, "other", 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestMemoryStoreSnapshots(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()

	snap, err := s.LoadLatestSnapshot(ctx, "doc")
	require.NoError(t, err)
	assert.Nil(t, snap)

	want := storage.Snapshot{Content: "abc", Version: 3, LogPos: 3}
	require.NoError(t, s.SaveSnapshot(ctx, "doc", want))

	snap, err = s.LoadLatestSnapshot(ctx, "doc")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, want, *snap)
}

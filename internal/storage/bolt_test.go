package storage_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabtext/internal/ot"
	"collabtext/internal/storage"
)

func TestBoltStoreAppendAndReplay(t *testing.T) {
	ctx := context.Background()
	s, err := storage.NewBoltStore(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer s.Close()

	ins, err := ot.NewInsert(0, "héllo")
	require.NoError(t, err)
	del, err := ot.NewDelete(1, 2)
	require.NoError(t, err)

	pos, err := s.AppendEvent(ctx, "doc", storage.Record{Op: ins, NewVersion: 1, ClientID: "a", RequestID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), pos)

	pos, err = s.AppendEvent(ctx, "doc", storage.Record{Op: del, NewVersion: 2, ClientID: "b", ClientVersion: 1, RequestID: "r2"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), pos)

	recs, err := s.ReplayEventsSince(ctx, "doc", 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, ins, recs[0].Op)
	assert.Equal(t, del, recs[1].Op)
	assert.Equal(t, "b", recs[1].ClientID)
	assert.Equal(t, int64(2), recs[1].LogPos)

	recs, err = s.ReplayEventsSince(ctx, "doc", 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 2, recs[0].NewVersion)

	recs, err = s.ReplayEventsSince(ctx, "missing", 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestBoltStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "events.db")

	s, err := storage.NewBoltStore(path)
	require.NoError(t, err)
	ins, err := ot.NewInsert(0, "abc")
	require.NoError(t, err)
	_, err = s.AppendEvent(ctx, "doc", storage.Record{Op: ins, NewVersion: 1})
	require.NoError(t, err)
	require.NoError(t, s.SaveSnapshot(ctx, "doc", storage.Snapshot{Content: "abc", Version: 1, LogPos: 1}))
	require.NoError(t, s.Close())

	s, err = storage.NewBoltStore(path)
	require.NoError(t, err)
	defer s.Close()

	snap, err := s.LoadLatestSnapshot(ctx, "doc")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, storage.Snapshot{Content: "abc", Version: 1, LogPos: 1}, *snap)

	recs, err := s.ReplayEventsSince(ctx, "doc", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, ins, recs[0].Op)
}

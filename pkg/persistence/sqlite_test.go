package persistence_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mindburn-labs/doccore/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLiteStore(t *testing.T) *persistence.SQLiteEventStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := persistence.NewSQLiteEventStore(db)
	require.NoError(t, store.Init(context.Background()))
	return store
}

func TestSQLiteEventStore_AppendAssignsIncreasingLSN(t *testing.T) {
	store := openSQLiteStore(t)
	ctx := context.Background()

	lsn1, err := store.Append(ctx, persistence.PersistedEvent{DocID: "doc-1", TrID: "tr-1", Timestamp: time.Now()})
	require.NoError(t, err)
	lsn2, err := store.Append(ctx, persistence.PersistedEvent{DocID: "doc-1", TrID: "tr-2", Timestamp: time.Now()})
	require.NoError(t, err)
	assert.Greater(t, lsn2, lsn1)
}

func TestSQLiteEventStore_DuplicateIdempotencyKeyRejected(t *testing.T) {
	store := openSQLiteStore(t)
	ctx := context.Background()

	ev := persistence.PersistedEvent{DocID: "doc-1", TrID: "tr-1", Timestamp: time.Now(), IdempotencyKey: "idem-1"}
	_, err := store.Append(ctx, ev)
	require.NoError(t, err)

	_, err = store.Append(ctx, ev)
	var dup *persistence.DupKeyError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "idem-1", dup.Key)
}

func TestSQLiteEventStore_LoadSinceOrdersAndFilters(t *testing.T) {
	store := openSQLiteStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Append(ctx, persistence.PersistedEvent{DocID: "doc-1", TrID: "tr", Timestamp: time.Now()})
		require.NoError(t, err)
	}
	_, err := store.Append(ctx, persistence.PersistedEvent{DocID: "other-doc", TrID: "tr", Timestamp: time.Now()})
	require.NoError(t, err)

	evs, err := store.LoadSince(ctx, "doc-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, evs, 3)
	assert.True(t, evs[0].LSN < evs[1].LSN && evs[1].LSN < evs[2].LSN)

	evs, err = store.LoadSince(ctx, "doc-1", evs[0].LSN, 0)
	require.NoError(t, err)
	assert.Len(t, evs, 2)
}

func TestSQLiteEventStore_AppendBatchIsAtomic(t *testing.T) {
	store := openSQLiteStore(t)
	ctx := context.Background()

	last, err := store.AppendBatch(ctx, []persistence.PersistedEvent{
		{DocID: "doc-1", TrID: "tr-1", Timestamp: time.Now()},
		{DocID: "doc-1", TrID: "tr-2", Timestamp: time.Now()},
	})
	require.NoError(t, err)
	assert.NotZero(t, last)

	evs, err := store.LoadSince(ctx, "doc-1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, evs, 2)
}

func TestSQLiteEventStore_SnapshotRoundTripAndCompact(t *testing.T) {
	store := openSQLiteStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Append(ctx, persistence.PersistedEvent{DocID: "doc-1", TrID: "tr", Timestamp: time.Now()})
		require.NoError(t, err)
	}
	evs, err := store.LoadSince(ctx, "doc-1", 0, 0)
	require.NoError(t, err)

	_, found, err := store.LatestSnapshot(ctx, "doc-1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.WriteSnapshot(ctx, persistence.Snapshot{
		DocID: "doc-1", UptoLSN: evs[1].LSN, CreatedAt: time.Now(), StateBlob: []byte("snap"), Version: 2,
	}))

	snap, found, err := store.LatestSnapshot(ctx, "doc-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("snap"), snap.StateBlob)

	require.NoError(t, store.Compact(ctx, "doc-1"))
	remaining, err := store.LoadSince(ctx, "doc-1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, remaining, 1, "compact drops all events up to and including the snapshot's upto_lsn")
}

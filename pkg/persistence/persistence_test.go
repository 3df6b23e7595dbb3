package persistence_test

import (
	"context"
	"testing"

	"github.com/mindburn-labs/doccore/pkg/model"
	"github.com/mindburn-labs/doccore/pkg/persistence"
	"github.com/mindburn-labs/doccore/pkg/schema"
	"github.com/mindburn-labs/doccore/pkg/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_AppendAssignsIncreasingLSN(t *testing.T) {
	store := persistence.NewMemoryStore()
	ctx := context.Background()
	lsn1, err := store.Append(ctx, persistence.PersistedEvent{DocID: "doc1"})
	require.NoError(t, err)
	lsn2, err := store.Append(ctx, persistence.PersistedEvent{DocID: "doc1"})
	require.NoError(t, err)
	assert.Less(t, lsn1, lsn2)
}

func TestMemoryStore_DuplicateIdempotencyKeyRejected(t *testing.T) {
	store := persistence.NewMemoryStore()
	ctx := context.Background()
	_, err := store.Append(ctx, persistence.PersistedEvent{DocID: "doc1", IdempotencyKey: "k1"})
	require.NoError(t, err)

	_, err = store.Append(ctx, persistence.PersistedEvent{DocID: "doc1", IdempotencyKey: "k1"})
	require.Error(t, err)
	var dup *persistence.DupKeyError
	require.ErrorAs(t, err, &dup)
}

func TestMemoryStore_LoadSinceOrdersAndFilters(t *testing.T) {
	store := persistence.NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := store.Append(ctx, persistence.PersistedEvent{DocID: "doc1"})
		require.NoError(t, err)
	}

	events, err := store.LoadSince(ctx, "doc1", 1, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, uint64(2), events[0].LSN)
	assert.Equal(t, uint64(3), events[1].LSN)
}

func TestMemoryStore_CompactDropsUpToSnapshot(t *testing.T) {
	store := persistence.NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := store.Append(ctx, persistence.PersistedEvent{DocID: "doc1"})
		require.NoError(t, err)
	}
	require.NoError(t, store.WriteSnapshot(ctx, persistence.Snapshot{DocID: "doc1", UptoLSN: 2}))
	require.NoError(t, store.Compact(ctx, "doc1"))

	events, err := store.LoadSince(ctx, "doc1", 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(3), events[0].LSN)
}

func TestChecksum_OrderIndependentOverMeta(t *testing.T) {
	payload := []byte("steps")
	a := map[string]any{"x": 1, "y": 2}
	b := map[string]any{"y": 2, "x": 1}

	ca, err := persistence.Checksum(payload, a)
	require.NoError(t, err)
	cb, err := persistence.Checksum(payload, b)
	require.NoError(t, err)
	assert.Equal(t, ca, cb, "checksums must agree regardless of map iteration order")
}

func TestChecksum_DifferentPayloadDiffers(t *testing.T) {
	meta := map[string]any{"x": 1}
	c1, err := persistence.Checksum([]byte("a"), meta)
	require.NoError(t, err)
	c2, err := persistence.Checksum([]byte("b"), meta)
	require.NoError(t, err)
	assert.NotEqual(t, c1, c2)
}

func testTx(t *testing.T) *transform.Transaction {
	t.Helper()
	sch, err := schema.Compile(schema.SchemaSpec{
		Nodes: map[string]schema.NodeSpec{"doc": {Content: "paragraph*"}, "paragraph": {}},
	})
	require.NoError(t, err)
	root := &model.Node{ID: model.NewNodeId(), Type: "doc"}
	pool := model.NewPool(root)
	tx := transform.New(pool, sch, 1)
	para := &model.Node{ID: model.NewNodeId(), Type: "paragraph"}
	_, err = tx.Step(&transform.AddNodeStep{Parent: root.ID, Nodes: []transform.NodeTree{{Node: para}}})
	require.NoError(t, err)
	return tx
}

func TestPersistence_PersistTransactionMemoryOnly(t *testing.T) {
	store := persistence.NewMemoryStore()
	p := persistence.New(store, nil, persistence.MemoryOnly, persistence.GroupWindow{}, persistence.DefaultCheckpointCadence(), nil)

	lsn, err := p.PersistTransaction(context.Background(), "doc1", "user1", "", testTx(t))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), lsn)

	events, err := store.LoadSince(context.Background(), "doc1", 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.NotZero(t, events[0].Checksum)
}

func TestPersistence_CheckpointTriggersOnEventCadence(t *testing.T) {
	store := persistence.NewMemoryStore()
	snapshotCalls := 0
	snapFn := func(ctx context.Context, docID string) ([]byte, int64, error) {
		snapshotCalls++
		return []byte("state"), 1, nil
	}
	cadence := persistence.CheckpointCadence{EveryNEvents: 2}
	p := persistence.New(store, nil, persistence.MemoryOnly, persistence.GroupWindow{}, cadence, snapFn)

	ctx := context.Background()
	_, err := p.PersistTransaction(ctx, "doc1", "user1", "", testTx(t))
	require.NoError(t, err)
	assert.Equal(t, 0, snapshotCalls, "cadence of 2 should not fire after the first event")

	_, err = p.PersistTransaction(ctx, "doc1", "user1", "", testTx(t))
	require.NoError(t, err)
	assert.Equal(t, 1, snapshotCalls, "cadence of 2 should fire after the second event")

	snap, ok, err := store.LatestSnapshot(ctx, "doc1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("state"), snap.StateBlob)
}

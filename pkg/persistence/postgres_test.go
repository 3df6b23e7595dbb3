package persistence_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/mindburn-labs/doccore/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresEventStore_AppendReturnsLSN(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := persistence.NewPostgresEventStore(db)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO doccore_events")).
		WithArgs("doc-1", "tr-1", sqlmock.AnyArg(), "", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"lsn"}).AddRow(int64(7)))

	lsn, err := store.Append(context.Background(), persistence.PersistedEvent{
		DocID: "doc-1", TrID: "tr-1", Timestamp: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), lsn)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresEventStore_AppendMapsDuplicateKeyError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := persistence.NewPostgresEventStore(db)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO doccore_events")).
		WithArgs("doc-1", "tr-1", sqlmock.AnyArg(), "", "idem-1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505"})

	_, err = store.Append(context.Background(), persistence.PersistedEvent{
		DocID: "doc-1", TrID: "tr-1", Timestamp: time.Now(), IdempotencyKey: "idem-1",
	})
	var dup *persistence.DupKeyError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "idem-1", dup.Key)
}

func TestPostgresEventStore_LoadSinceScansRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := persistence.NewPostgresEventStore(db)
	rows := sqlmock.NewRows([]string{"lsn", "doc_id", "tr_id", "ts", "actor", "idempotency_key", "payload", "meta", "checksum"}).
		AddRow(int64(1), "doc-1", "tr-1", time.Now(), "bob", nil, []byte("{}"), []byte("{}"), int64(42))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT lsn, doc_id, tr_id, ts, actor, idempotency_key, payload, meta, checksum")).
		WithArgs("doc-1", uint64(0)).
		WillReturnRows(rows)

	evs, err := store.LoadSince(context.Background(), "doc-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, uint64(1), evs[0].LSN)
	assert.Equal(t, "bob", evs[0].Actor)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresEventStore_LatestSnapshotQueryErrorPropagates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := persistence.NewPostgresEventStore(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT doc_id, upto_lsn, created_at, state_blob, blob_ref, version")).
		WithArgs("doc-1").
		WillReturnError(sqlmock.ErrCancelled)

	_, ok, err := store.LatestSnapshot(context.Background(), "doc-1")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestPostgresEventStore_WriteSnapshotUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := persistence.NewPostgresEventStore(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO doccore_snapshots")).
		WithArgs("doc-1", uint64(10), sqlmock.AnyArg(), []byte("snap"), sqlmock.AnyArg(), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.WriteSnapshot(context.Background(), persistence.Snapshot{
		DocID: "doc-1", UptoLSN: 10, CreatedAt: time.Now(), StateBlob: []byte("snap"), Version: 3,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

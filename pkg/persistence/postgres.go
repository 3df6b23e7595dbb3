package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/lib/pq"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS doccore_events (
	lsn BIGSERIAL PRIMARY KEY,
	doc_id TEXT NOT NULL,
	tr_id TEXT NOT NULL,
	ts TIMESTAMPTZ NOT NULL,
	actor TEXT,
	idempotency_key TEXT UNIQUE,
	payload BYTEA,
	meta JSONB,
	checksum BIGINT
);
CREATE INDEX IF NOT EXISTS idx_doccore_events_doc_lsn ON doccore_events (doc_id, lsn);

CREATE TABLE IF NOT EXISTS doccore_snapshots (
	doc_id TEXT PRIMARY KEY,
	upto_lsn BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	state_blob BYTEA,
	blob_ref TEXT,
	version BIGINT
);
`

// PostgresEventStore implements EventStore over database/sql with lib/pq,
// for deployments that need cross-process durability beyond a single
// sqlite file (spec.md §6.1/§6.2).
type PostgresEventStore struct {
	db *sql.DB
}

func NewPostgresEventStore(db *sql.DB) *PostgresEventStore {
	return &PostgresEventStore{db: db}
}

func (p *PostgresEventStore) Init(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, postgresSchema)
	return err
}

func (p *PostgresEventStore) Append(ctx context.Context, ev PersistedEvent) (uint64, error) {
	metaJSON, err := json.Marshal(ev.Meta)
	if err != nil {
		return 0, err
	}
	var lsn uint64
	err = p.db.QueryRowContext(ctx, `
		INSERT INTO doccore_events (doc_id, tr_id, ts, actor, idempotency_key, payload, meta, checksum)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING lsn
	`, ev.DocID, ev.TrID, ev.Timestamp, ev.Actor, nullableText(ev.IdempotencyKey), ev.Payload, metaJSON, ev.Checksum).Scan(&lsn)
	if err != nil {
		return 0, mapPQDupKeyErr(err, ev.IdempotencyKey)
	}
	return lsn, nil
}

func (p *PostgresEventStore) AppendBatch(ctx context.Context, evs []PersistedEvent) (uint64, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var last uint64
	for _, ev := range evs {
		metaJSON, err := json.Marshal(ev.Meta)
		if err != nil {
			return 0, err
		}
		err = tx.QueryRowContext(ctx, `
			INSERT INTO doccore_events (doc_id, tr_id, ts, actor, idempotency_key, payload, meta, checksum)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING lsn
		`, ev.DocID, ev.TrID, ev.Timestamp, ev.Actor, nullableText(ev.IdempotencyKey), ev.Payload, metaJSON, ev.Checksum).Scan(&last)
		if err != nil {
			return 0, mapPQDupKeyErr(err, ev.IdempotencyKey)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return last, nil
}

func (p *PostgresEventStore) LoadSince(ctx context.Context, docID string, fromLSN uint64, limit int) ([]PersistedEvent, error) {
	query := `SELECT lsn, doc_id, tr_id, ts, actor, idempotency_key, payload, meta, checksum
		FROM doccore_events WHERE doc_id = $1 AND lsn > $2 ORDER BY lsn ASC`
	args := []any{docID, fromLSN}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]PersistedEvent, 0)
	for rows.Next() {
		var ev PersistedEvent
		var idemKey sql.NullString
		var metaJSON []byte
		if err := rows.Scan(&ev.LSN, &ev.DocID, &ev.TrID, &ev.Timestamp, &ev.Actor, &idemKey, &ev.Payload, &metaJSON, &ev.Checksum); err != nil {
			return nil, err
		}
		ev.IdempotencyKey = idemKey.String
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &ev.Meta); err != nil {
				return nil, err
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (p *PostgresEventStore) LatestSnapshot(ctx context.Context, docID string) (*Snapshot, bool, error) {
	row := p.db.QueryRowContext(ctx, `SELECT doc_id, upto_lsn, created_at, state_blob, blob_ref, version
		FROM doccore_snapshots WHERE doc_id = $1`, docID)
	var snap Snapshot
	var blobRef sql.NullString
	err := row.Scan(&snap.DocID, &snap.UptoLSN, &snap.CreatedAt, &snap.StateBlob, &blobRef, &snap.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	snap.BlobRef = blobRef.String
	return &snap, true, nil
}

func (p *PostgresEventStore) WriteSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO doccore_snapshots (doc_id, upto_lsn, created_at, state_blob, blob_ref, version)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (doc_id) DO UPDATE SET
			upto_lsn = excluded.upto_lsn, created_at = excluded.created_at,
			state_blob = excluded.state_blob, blob_ref = excluded.blob_ref, version = excluded.version
	`, snap.DocID, snap.UptoLSN, snap.CreatedAt, snap.StateBlob, nullableText(snap.BlobRef), snap.Version)
	return err
}

func (p *PostgresEventStore) Compact(ctx context.Context, docID string) error {
	_, ok, err := p.LatestSnapshot(ctx, docID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	_, err = p.db.ExecContext(ctx, `
		DELETE FROM doccore_events WHERE doc_id = $1 AND lsn <= (SELECT upto_lsn FROM doccore_snapshots WHERE doc_id = $1)
	`, docID)
	return err
}

func mapPQDupKeyErr(err error, key string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" && key != "" {
		return &DupKeyError{Key: key}
	}
	return err
}

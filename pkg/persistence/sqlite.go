package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// sqliteSchema mirrors PersistedEvent/Snapshot; idempotency_key carries a
// UNIQUE constraint so duplicate commits fail at the driver rather than
// needing an app-level dedup pass (spec.md §6.1).
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS events (
	lsn INTEGER PRIMARY KEY AUTOINCREMENT,
	doc_id TEXT NOT NULL,
	tr_id TEXT NOT NULL,
	ts TIMESTAMP NOT NULL,
	actor TEXT,
	idempotency_key TEXT UNIQUE,
	payload BLOB,
	meta TEXT,
	checksum INTEGER
);
CREATE INDEX IF NOT EXISTS idx_events_doc_lsn ON events (doc_id, lsn);

CREATE TABLE IF NOT EXISTS snapshots (
	doc_id TEXT PRIMARY KEY,
	upto_lsn INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL,
	state_blob BLOB,
	blob_ref TEXT,
	version INTEGER
);
`

// SQLiteEventStore implements EventStore over database/sql with the
// modernc.org/sqlite pure-Go driver.
type SQLiteEventStore struct {
	db *sql.DB
}

func NewSQLiteEventStore(db *sql.DB) *SQLiteEventStore {
	return &SQLiteEventStore{db: db}
}

func (s *SQLiteEventStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return err
}

func (s *SQLiteEventStore) Append(ctx context.Context, ev PersistedEvent) (uint64, error) {
	metaJSON, err := json.Marshal(ev.Meta)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO events (doc_id, tr_id, ts, actor, idempotency_key, payload, meta, checksum)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.DocID, ev.TrID, ev.Timestamp, ev.Actor, nullableText(ev.IdempotencyKey), ev.Payload, metaJSON, ev.Checksum)
	if err != nil {
		return 0, mapDupKeyErr(err, ev.IdempotencyKey)
	}
	lsn, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(lsn), nil
}

func (s *SQLiteEventStore) AppendBatch(ctx context.Context, evs []PersistedEvent) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
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
		res, err := tx.ExecContext(ctx, `
			INSERT INTO events (doc_id, tr_id, ts, actor, idempotency_key, payload, meta, checksum)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, ev.DocID, ev.TrID, ev.Timestamp, ev.Actor, nullableText(ev.IdempotencyKey), ev.Payload, metaJSON, ev.Checksum)
		if err != nil {
			return 0, mapDupKeyErr(err, ev.IdempotencyKey)
		}
		lsn, err := res.LastInsertId()
		if err != nil {
			return 0, err
		}
		last = uint64(lsn)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return last, nil
}

func (s *SQLiteEventStore) LoadSince(ctx context.Context, docID string, fromLSN uint64, limit int) ([]PersistedEvent, error) {
	query := `SELECT lsn, doc_id, tr_id, ts, actor, idempotency_key, payload, meta, checksum
		FROM events WHERE doc_id = ? AND lsn > ? ORDER BY lsn ASC`
	args := []any{docID, fromLSN}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
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

func (s *SQLiteEventStore) LatestSnapshot(ctx context.Context, docID string) (*Snapshot, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT doc_id, upto_lsn, created_at, state_blob, blob_ref, version
		FROM snapshots WHERE doc_id = ?`, docID)
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

func (s *SQLiteEventStore) WriteSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (doc_id, upto_lsn, created_at, state_blob, blob_ref, version)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			upto_lsn = excluded.upto_lsn, created_at = excluded.created_at,
			state_blob = excluded.state_blob, blob_ref = excluded.blob_ref, version = excluded.version
	`, snap.DocID, snap.UptoLSN, snap.CreatedAt, snap.StateBlob, nullableText(snap.BlobRef), snap.Version)
	return err
}

func (s *SQLiteEventStore) Compact(ctx context.Context, docID string) error {
	_, ok, err := s.LatestSnapshot(ctx, docID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	_, err = s.db.ExecContext(ctx, `
		DELETE FROM events WHERE doc_id = ? AND lsn <= (SELECT upto_lsn FROM snapshots WHERE doc_id = ?)
	`, docID, docID)
	return err
}

func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func mapDupKeyErr(err error, key string) error {
	if err == nil {
		return nil
	}
	// modernc.org/sqlite surfaces UNIQUE constraint violations as a plain
	// SQLITE_CONSTRAINT error string; there's no typed sentinel to match on.
	if key != "" && containsConstraintViolation(err.Error()) {
		return &DupKeyError{Key: key}
	}
	return fmt.Errorf("sqlite event store: %w", err)
}

func containsConstraintViolation(msg string) bool {
	for _, needle := range []string{"UNIQUE constraint failed", "constraint violation", "SQLITE_CONSTRAINT"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

package persistence

import "context"

// EventStore is the append-only log + snapshot contract (spec.md §6.1).
// `lsn` strictly increases; `idempotency_key` is globally unique;
// `checksum` verifies `payload`.
type EventStore interface {
	Append(ctx context.Context, ev PersistedEvent) (uint64, error)
	AppendBatch(ctx context.Context, evs []PersistedEvent) (uint64, error)
	LoadSince(ctx context.Context, docID string, fromLSN uint64, limit int) ([]PersistedEvent, error)
	LatestSnapshot(ctx context.Context, docID string) (*Snapshot, bool, error)
	WriteSnapshot(ctx context.Context, snap Snapshot) error
	Compact(ctx context.Context, docID string) error
}

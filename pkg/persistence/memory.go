package persistence

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a process-local EventStore, the backing for CommitMode
// MemoryOnly and the default in unit tests (spec.md §6.2).
type MemoryStore struct {
	mu        sync.Mutex
	nextLSN   uint64
	events    map[string][]PersistedEvent // docID -> ordered log
	snapshots map[string]Snapshot
	seenKeys  map[string]struct{} // idempotency_key dedup, global per spec.md §6.1
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:    map[string][]PersistedEvent{},
		snapshots: map[string]Snapshot{},
		seenKeys:  map[string]struct{}{},
	}
}

func (m *MemoryStore) Append(ctx context.Context, ev PersistedEvent) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(ev)
}

func (m *MemoryStore) appendLocked(ev PersistedEvent) (uint64, error) {
	if ev.IdempotencyKey != "" {
		if _, dup := m.seenKeys[ev.IdempotencyKey]; dup {
			return 0, &DupKeyError{Key: ev.IdempotencyKey}
		}
		m.seenKeys[ev.IdempotencyKey] = struct{}{}
	}
	m.nextLSN++
	ev.LSN = m.nextLSN
	m.events[ev.DocID] = append(m.events[ev.DocID], ev)
	return ev.LSN, nil
}

func (m *MemoryStore) AppendBatch(ctx context.Context, evs []PersistedEvent) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last uint64
	for _, ev := range evs {
		lsn, err := m.appendLocked(ev)
		if err != nil {
			return 0, err
		}
		last = lsn
	}
	return last, nil
}

func (m *MemoryStore) LoadSince(ctx context.Context, docID string, fromLSN uint64, limit int) ([]PersistedEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	log := m.events[docID]
	out := make([]PersistedEvent, 0, limit)
	for _, ev := range log {
		if ev.LSN <= fromLSN {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LSN < out[j].LSN })
	return out, nil
}

func (m *MemoryStore) LatestSnapshot(ctx context.Context, docID string) (*Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snapshots[docID]
	if !ok {
		return nil, false, nil
	}
	return &snap, true, nil
}

func (m *MemoryStore) WriteSnapshot(ctx context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snap.DocID] = snap
	return nil
}

// Compact drops events at or below the latest snapshot's upto_lsn.
func (m *MemoryStore) Compact(ctx context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snapshots[docID]
	if !ok {
		return nil
	}
	log := m.events[docID]
	kept := log[:0:0]
	for _, ev := range log {
		if ev.LSN > snap.UptoLSN {
			kept = append(kept, ev)
		}
	}
	m.events[docID] = kept
	return nil
}

// DupKeyError is returned when an idempotency_key has already been
// committed (spec.md §6.1: "idempotency_key is globally unique").
type DupKeyError struct{ Key string }

func (e *DupKeyError) Error() string { return "persistence: duplicate idempotency key " + e.Key }

package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mindburn-labs/doccore/pkg/transform"
)

// CheckpointCadence is the trio of thresholds checkpoint_if_needed checks
// after every commit (spec.md §6.2).
type CheckpointCadence struct {
	EveryNEvents int
	EveryBytes   int64
	EveryMs      int64
}

func DefaultCheckpointCadence() CheckpointCadence {
	return CheckpointCadence{EveryNEvents: 500, EveryBytes: 8 << 20, EveryMs: 60_000}
}

type docCounters struct {
	eventsSinceSnapshot int
	bytesSinceSnapshot  int64
	lastSnapshotAt      time.Time
}

// SnapshotFunc produces the current materialized state for doc_id so
// Persistence can write it out during checkpoint_if_needed. Callers supply
// this rather than Persistence reaching into runtime.Runtime directly,
// keeping the two packages decoupled.
type SnapshotFunc func(ctx context.Context, docID string) ([]byte, int64, error)

// Persistence implements CommitMode-driven durability plus checkpoint
// cadence over an EventStore (spec.md §6.2).
type Persistence struct {
	store    EventStore
	blobs    BlobStore
	blobCut  int // state_blob sizes at or above this go to BlobStore
	mode     CommitMode
	window   GroupWindow
	cadence  CheckpointCadence
	snapshot SnapshotFunc

	mu       sync.Mutex
	counters map[string]*docCounters
	pending  map[string][]PersistedEvent // AsyncDurable group buffer, per doc_id
	flushers map[string]*time.Timer
}

func New(store EventStore, blobs BlobStore, mode CommitMode, window GroupWindow, cadence CheckpointCadence, snapshot SnapshotFunc) *Persistence {
	return &Persistence{
		store:    store,
		blobs:    blobs,
		blobCut:  1 << 20, // 1MiB
		mode:     mode,
		window:   window,
		cadence:  cadence,
		snapshot: snapshot,
		counters: map[string]*docCounters{},
		pending:  map[string][]PersistedEvent{},
		flushers: map[string]*time.Timer{},
	}
}

// PersistTransaction builds a PersistedEvent from tx and commits it per the
// configured CommitMode, returning the assigned lsn (spec.md §6.2
// persist_transaction).
func (p *Persistence) PersistTransaction(ctx context.Context, docID, actor, idempotencyKey string, tx *transform.Transaction) (uint64, error) {
	payload, err := json.Marshal(tx.Steps)
	if err != nil {
		return 0, fmt.Errorf("marshal steps: %w", err)
	}
	meta := tx.Meta
	checksum, err := Checksum(payload, meta)
	if err != nil {
		return 0, fmt.Errorf("checksum: %w", err)
	}
	ev := PersistedEvent{
		TrID:           tx.UUID.String(),
		DocID:          docID,
		Timestamp:      time.Now(),
		Actor:          actor,
		IdempotencyKey: idempotencyKey,
		Payload:        payload,
		Meta:           meta,
		Checksum:       checksum,
	}

	var lsn uint64
	switch p.mode {
	case MemoryOnly, SyncDurable:
		lsn, err = p.store.Append(ctx, ev)
		if err != nil {
			return 0, err
		}
	case AsyncDurable:
		lsn, err = p.enqueueAsync(ctx, ev)
		if err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("unknown commit mode %v", p.mode)
	}

	p.trackCounters(docID, len(payload))
	if err := p.checkpointIfNeeded(ctx, docID); err != nil {
		return lsn, err
	}
	return lsn, nil
}

// enqueueAsync buffers ev and schedules a group flush at window.Milliseconds
// if one isn't already pending for doc_id. The lsn returned is provisional:
// it is ev's 1-based position in doc_id's pending buffer, not an lsn
// assigned by the store — callers needing a durable lsn should use
// SyncDurable.
func (p *Persistence) enqueueAsync(ctx context.Context, ev PersistedEvent) (uint64, error) {
	p.mu.Lock()
	p.pending[ev.DocID] = append(p.pending[ev.DocID], ev)
	pos := uint64(len(p.pending[ev.DocID]))
	if _, scheduled := p.flushers[ev.DocID]; !scheduled {
		docID := ev.DocID
		p.flushers[docID] = time.AfterFunc(time.Duration(p.window.Milliseconds)*time.Millisecond, func() {
			p.flushAsync(context.Background(), docID)
		})
	}
	p.mu.Unlock()
	return pos, nil
}

func (p *Persistence) flushAsync(ctx context.Context, docID string) {
	p.mu.Lock()
	batch := p.pending[docID]
	delete(p.pending, docID)
	delete(p.flushers, docID)
	p.mu.Unlock()
	if len(batch) == 0 {
		return
	}
	if _, err := p.store.AppendBatch(ctx, batch); err != nil {
		// Best-effort group commit; the caller already returned. A future
		// iteration could route this to an error-reporting sink.
		_ = err
	}
}

func (p *Persistence) trackCounters(docID string, payloadBytes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.counters[docID]
	if !ok {
		c = &docCounters{lastSnapshotAt: time.Now()}
		p.counters[docID] = c
	}
	c.eventsSinceSnapshot++
	c.bytesSinceSnapshot += int64(payloadBytes)
}

// checkpointIfNeeded writes a snapshot when any cadence threshold is
// reached (spec.md §6.2 checkpoint_if_needed).
func (p *Persistence) checkpointIfNeeded(ctx context.Context, docID string) error {
	p.mu.Lock()
	c, ok := p.counters[docID]
	if !ok {
		p.mu.Unlock()
		return nil
	}
	due := (p.cadence.EveryNEvents > 0 && c.eventsSinceSnapshot >= p.cadence.EveryNEvents) ||
		(p.cadence.EveryBytes > 0 && c.bytesSinceSnapshot >= p.cadence.EveryBytes) ||
		(p.cadence.EveryMs > 0 && time.Since(c.lastSnapshotAt).Milliseconds() >= p.cadence.EveryMs)
	p.mu.Unlock()
	if !due || p.snapshot == nil {
		return nil
	}
	return p.writeSnapshot(ctx, docID)
}

func (p *Persistence) writeSnapshot(ctx context.Context, docID string) error {
	blob, version, err := p.snapshot(ctx, docID)
	if err != nil {
		return fmt.Errorf("build snapshot: %w", err)
	}
	events, err := p.store.LoadSince(ctx, docID, 0, 0)
	if err != nil {
		return err
	}
	var uptoLSN uint64
	if len(events) > 0 {
		uptoLSN = events[len(events)-1].LSN
	}
	snap := Snapshot{DocID: docID, UptoLSN: uptoLSN, CreatedAt: time.Now(), Version: version}

	if p.blobs != nil && len(blob) >= p.blobCut {
		ref, err := p.blobs.Put(ctx, fmt.Sprintf("%s/%d.snap", docID, uptoLSN), blob)
		if err != nil {
			return fmt.Errorf("offload snapshot blob: %w", err)
		}
		snap.BlobRef = ref
	} else {
		snap.StateBlob = blob
	}

	if err := p.store.WriteSnapshot(ctx, snap); err != nil {
		return err
	}
	if err := p.store.Compact(ctx, docID); err != nil {
		return err
	}

	p.mu.Lock()
	p.counters[docID] = &docCounters{lastSnapshotAt: time.Now()}
	p.mu.Unlock()
	return nil
}

// LoadSnapshotBlob dereferences a Snapshot's state, following BlobRef to
// BlobStore when the inline StateBlob was offloaded.
func (p *Persistence) LoadSnapshotBlob(ctx context.Context, snap *Snapshot) ([]byte, error) {
	if snap.BlobRef == "" {
		return snap.StateBlob, nil
	}
	if p.blobs == nil {
		return nil, fmt.Errorf("snapshot %s references a blob but no BlobStore is configured", snap.DocID)
	}
	return p.blobs.Get(ctx, snap.BlobRef)
}

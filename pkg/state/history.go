package state

import (
	"time"

	"github.com/mindburn-labs/doccore/pkg/transform"
)

// Entry is one undo/redo unit: the state that resulted from a commit, the
// transactions that produced it, and bookkeeping for display (spec.md §3).
type Entry struct {
	State        *State
	Transactions []*transform.Transaction
	Description  string
	Meta         map[string]any
	Timestamp    time.Time
}

// History is a ring-bounded undo/redo stack over Entry (spec.md §3, §4.6).
// Named History rather than the generic HistoryManager[T] of the spec's
// glossary: Go lacks the ergonomic partial-instantiation the original uses,
// and every caller in this module only ever stacks state.Entry.
type History struct {
	past    []*Entry
	present *Entry
	future  []*Entry
	limit   int
}

// NewHistory seeds the stack with an initial entry; limit <= 0 means
// unbounded.
func NewHistory(initial *Entry, limit int) *History {
	return &History{present: initial, limit: limit}
}

// Present returns the current entry.
func (h *History) Present() *Entry { return h.present }

// Push records a new present entry, clearing the redo stack (a fresh branch
// of history begins at every forward commit).
func (h *History) Push(e *Entry) {
	h.past = append(h.past, h.present)
	if h.limit > 0 && len(h.past) > h.limit {
		h.past = h.past[len(h.past)-h.limit:]
	}
	h.present = e
	h.future = nil
}

// Undo moves one entry back, returning the transactions that were undone
// (for external index reaction) and ok=false if there is nothing to undo.
func (h *History) Undo() (*Entry, []*transform.Transaction, bool) {
	if len(h.past) == 0 {
		return nil, nil, false
	}
	undone := h.present.Transactions
	h.future = append([]*Entry{h.present}, h.future...)
	h.present = h.past[len(h.past)-1]
	h.past = h.past[:len(h.past)-1]
	return h.present, undone, true
}

// Redo moves one entry forward, returning the transactions that were redone.
func (h *History) Redo() (*Entry, []*transform.Transaction, bool) {
	if len(h.future) == 0 {
		return nil, nil, false
	}
	redone := h.future[0].Transactions
	h.past = append(h.past, h.present)
	h.present = h.future[0]
	h.future = h.future[1:]
	return h.present, redone, true
}

// Jump moves n entries forward (n > 0) or backward (n < 0), returning the
// final landing entry and the full set of transactions traversed in order,
// or ok=false if n cannot be satisfied against the current stack depths.
func (h *History) Jump(n int) (*Entry, []*transform.Transaction, bool) {
	if n == 0 {
		return h.present, nil, true
	}
	var traversed []*transform.Transaction
	if n < 0 {
		for i := 0; i < -n; i++ {
			e, txs, ok := h.Undo()
			if !ok {
				return nil, nil, false
			}
			_ = e
			traversed = append(traversed, txs...)
		}
	} else {
		for i := 0; i < n; i++ {
			e, txs, ok := h.Redo()
			if !ok {
				return nil, nil, false
			}
			_ = e
			traversed = append(traversed, txs...)
		}
	}
	return h.present, traversed, true
}

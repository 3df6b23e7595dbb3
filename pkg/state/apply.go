package state

import (
	"github.com/mindburn-labs/doccore/pkg/transform"
)

// ApplyResult is returned by Apply: the resulting state plus the full
// ordered list of transactions that were actually committed, including any
// plugins appended during the fixpoint (spec.md §4.4 step 5).
type ApplyResult struct {
	State        *State
	Transactions []*transform.Transaction
}

// Apply runs the full State.apply pipeline for tx: plugin filtering, commit,
// plugin state-field advancement, and the append-transaction fixpoint
// (spec.md §4.4).
func (s *State) Apply(tx *transform.Transaction) (*ApplyResult, error) {
	return s.applyDepth(tx, 0)
}

func (s *State) applyDepth(tx *transform.Transaction, depth int) (*ApplyResult, error) {
	plugins := s.Config.Plugins.Sorted()

	// 1. filter_transaction in plugin order.
	for _, p := range plugins {
		if !p.FilterTransaction(tx, s) {
			return nil, newErr(KindTransactionRejected, tx.ID, p.Key, "transaction rejected by filter_transaction")
		}
	}

	// 2. commit the transform to produce new_doc; build candidate state.
	newDoc := tx.Commit()
	newState := s.withDoc(newDoc, s.Version+1)

	// 3. advance each plugin's state field in order.
	for _, p := range plugins {
		oldValue, _ := s.Field(p.Key)
		newState.fields[p.Key] = p.ApplyState(tx, oldValue, s, newState)
	}

	txs := []*transform.Transaction{tx}
	cur := newState
	prev := s

	// 4. append-transaction fixpoint, depth-bounded.
	for _, p := range plugins {
		appended, ok := p.AppendTransaction(tx, prev, cur)
		if !ok || appended == nil {
			continue
		}
		if depth+1 >= cur.Config.Performance.MaxAppendDepth {
			return nil, newErr(KindAppendFixpointExceeded, tx.ID, p.Key, "append fixpoint exceeded")
		}
		sub, err := cur.applyDepth(appended, depth+1)
		if err != nil {
			return nil, err
		}
		prev = cur
		cur = sub.State
		txs = append(txs, sub.Transactions...)
	}

	return &ApplyResult{State: cur, Transactions: txs}, nil
}

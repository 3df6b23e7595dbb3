package transform

import (
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/mindburn-labs/doccore/pkg/model"
	"github.com/mindburn-labs/doccore/pkg/schema"
)

// LazyDocState tracks whether Transaction.Draft has diverged from BaseDoc
// (spec.md §3 glossary: Original -> Pending -> Computed).
type LazyDocState int

const (
	LazyDocOriginal LazyDocState = iota
	LazyDocPending
	LazyDocComputed
)

var txCounter uint64

// Transaction is an ordered bundle of steps plus metadata, the unit of
// commit (spec.md §3). Steps and InvertSteps always have equal length
// after each successful step (spec.md §3 invariant).
type Transaction struct {
	ID          uint64
	UUID        uuid.UUID
	Meta        map[string]any
	Steps       []Step
	InvertSteps []Step

	baseDoc *model.NodePool
	draft   *Draft
	schema  *schema.Schema
	lazy    LazyDocState
}

// New creates a Transaction from a base document and schema. ID should be
// the next monotonically increasing transaction counter value for the
// owning State (callers typically pass state.Version+1-derived ids; this
// package also exposes a process-local fallback counter for standalone use).
func New(base *model.NodePool, sch *schema.Schema, id uint64) *Transaction {
	if id == 0 {
		id = atomic.AddUint64(&txCounter, 1)
	}
	return &Transaction{
		ID:      id,
		UUID:    uuid.New(),
		Meta:    map[string]any{},
		baseDoc: base,
		schema:  sch,
		lazy:    LazyDocOriginal,
	}
}

// BaseDoc returns the transaction's starting document.
func (tx *Transaction) BaseDoc() *model.NodePool { return tx.baseDoc }

// Doc returns the transaction's current document: the draft if any steps
// have applied, otherwise the unmodified base.
func (tx *Transaction) Doc() *model.NodePool {
	if tx.draft != nil {
		return tx.draft.Pool()
	}
	return tx.baseDoc
}

// ensureDraft lazily clones base_doc into a draft on first mutation
// (spec.md §4.3).
func (tx *Transaction) ensureDraft() *Draft {
	if tx.draft == nil {
		tx.draft = &Draft{pool: tx.baseDoc}
		tx.lazy = LazyDocPending
	}
	return tx.draft
}

// Step applies one step: ensures the draft, applies it, and on success
// pushes the step and its invert (if any) (spec.md §4.3).
func (tx *Transaction) Step(step Step) (StepResult, error) {
	draft := tx.ensureDraft()
	preApply := draft.Pool()
	res, err := step.Apply(draft, tx.schema)
	if err != nil {
		draft.pool = preApply
		return StepResult{}, err
	}
	if res.Failed != nil {
		tx.Rollback()
		return res, nil
	}
	tx.Steps = append(tx.Steps, step)
	if inv, ok := step.Invert(preApply); ok {
		tx.InvertSteps = append(tx.InvertSteps, inv)
	} else {
		tx.InvertSteps = append(tx.InvertSteps, nil)
	}
	return res, nil
}

// ApplyStepsBatch applies steps in order through Step, so inverses are
// captured against the incremental draft state as each step applies
// (spec.md §4.3). It stops at the first hard error, returning it, or at
// the first soft failure, returning it as a *TransformError after Step has
// rolled the transaction back.
func (tx *Transaction) ApplyStepsBatch(steps []Step) error {
	for _, s := range steps {
		res, err := tx.Step(s)
		if err != nil {
			return err
		}
		if res.Failed != nil {
			return &TransformError{Kind: KindStepFailed, Step: s.Name(), Message: *res.Failed}
		}
	}
	return nil
}

// Commit materializes the draft into a new NodePool, promotes it to
// base_doc, marks lazy_doc Computed, and clears the draft. Steps and
// inverses are retained for history (spec.md §4.3).
func (tx *Transaction) Commit() *model.NodePool {
	if tx.draft != nil {
		tx.baseDoc = tx.draft.Pool()
		tx.draft = nil
	}
	tx.lazy = LazyDocComputed
	return tx.baseDoc
}

// Rollback drops the draft, resets lazy_doc to Original, and clears the
// step lists (spec.md §4.3).
func (tx *Transaction) Rollback() {
	tx.draft = nil
	tx.lazy = LazyDocOriginal
	tx.Steps = nil
	tx.InvertSteps = nil
}

// Schema returns the schema this transaction was built against.
func (tx *Transaction) Schema() *schema.Schema { return tx.schema }

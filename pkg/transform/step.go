// Package transform implements the reversible step algebra over a
// copy-on-write draft tree: Transaction, the built-in Step types, batching
// and inversion (spec.md §4.3).
package transform

import (
	"github.com/mindburn-labs/doccore/pkg/model"
	"github.com/mindburn-labs/doccore/pkg/schema"
)

// StepResult is the outcome of applying a Step. Failed set (not nil) is a
// soft failure: Transaction.Step rolls back the draft and aborts the
// enclosing transaction (Transaction.Rollback), but other transactions are
// unaffected (spec.md §7).
type StepResult struct {
	Failed *string
}

func ok() (StepResult, error)                 { return StepResult{}, nil }
func softFail(msg string) (StepResult, error) { return StepResult{Failed: &msg}, nil }

// Step is a reversible atomic operation on a draft tree.
type Step interface {
	// Name identifies the step's concrete type, e.g. "attr_step".
	Name() string
	// Apply mutates draft in place (by replacing its held pool) and
	// reports success/soft-failure/hard-error.
	Apply(draft *Draft, sch *schema.Schema) (StepResult, error)
	// Invert returns, when possible, a step that applied to the
	// post-apply tree reconstructs the pre-apply tree. Returns ok=false
	// if inversion cannot be represented (the step becomes non-undoable).
	Invert(preApply *model.NodePool) (Step, bool)
}

// Draft is the mutable working copy of a tree owned by a Transaction
// between its first step and its commit (spec.md glossary).
type Draft struct {
	pool *model.NodePool
}

// Pool returns the draft's current pool snapshot.
func (d *Draft) Pool() *model.NodePool { return d.pool }

// Replace swaps the draft's held pool for next (used by Step.Apply after a
// successful mutating call against d.pool).
func (d *Draft) Replace(next *model.NodePool) { d.pool = next }

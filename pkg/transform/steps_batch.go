package transform

import (
	"github.com/mindburn-labs/doccore/pkg/model"
	"github.com/mindburn-labs/doccore/pkg/schema"
)

// BatchStep applies Steps sequentially as an atomic sub-sequence: on any
// failure, the inverses collected so far are applied in reverse order
// against the current (incremental) draft state before the failure is
// returned, so the draft ends up byte-equal to its pre-batch state
// (spec.md §4.3, §8 scenario 6, §9 open-question resolution).
type BatchStep struct {
	Steps []Step

	// computedInverses is populated by a successful Apply and consumed by
	// Invert; a BatchStep's inverse depends on the incremental draft
	// state each inner step saw, which only Apply observes.
	computedInverses []Step
	invertible       bool
}

func (s *BatchStep) Name() string { return "batch_step" }

func (s *BatchStep) Apply(draft *Draft, sch *schema.Schema) (StepResult, error) {
	var inverses []Step
	allInvertible := true
	for _, step := range s.Steps {
		preApply := draft.Pool()
		res, err := step.Apply(draft, sch)
		if err != nil {
			rollbackBatch(draft, sch, inverses)
			return StepResult{}, err
		}
		if res.Failed != nil {
			rollbackBatch(draft, sch, inverses)
			return res, nil
		}
		if inv, ok := step.Invert(preApply); ok {
			inverses = append(inverses, inv)
		} else {
			allInvertible = false
		}
	}
	s.computedInverses = inverses
	s.invertible = allInvertible
	return ok()
}

func rollbackBatch(draft *Draft, sch *schema.Schema, inverses []Step) {
	for i := len(inverses) - 1; i >= 0; i-- {
		// Best-effort: rollback inverses were captured against states this
		// batch itself produced, so they are expected to apply cleanly.
		_, _ = inverses[i].Apply(draft, sch)
	}
}

// Invert returns a BatchStep of the per-step inverses in reverse order,
// computed during the preceding successful Apply; if any inner step could
// not be inverted, the whole batch becomes non-undoable.
func (s *BatchStep) Invert(preApply *model.NodePool) (Step, bool) {
	if !s.invertible {
		return nil, false
	}
	reversed := make([]Step, len(s.computedInverses))
	for i, inv := range s.computedInverses {
		reversed[len(s.computedInverses)-1-i] = inv
	}
	return &BatchStep{Steps: reversed}, true
}

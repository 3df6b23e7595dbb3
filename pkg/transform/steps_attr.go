package transform

import (
	"fmt"

	"github.com/mindburn-labs/doccore/pkg/model"
	"github.com/mindburn-labs/doccore/pkg/schema"
)

// AttrStep overwrites specified keys on a node's attrs. Keys undefined in
// the node's type are silently dropped (spec.md §4.3).
type AttrStep struct {
	ID     model.NodeId
	Values model.Attrs
}

func (s *AttrStep) Name() string { return "attr_step" }

func (s *AttrStep) Apply(draft *Draft, sch *schema.Schema) (StepResult, error) {
	node, found := draft.Pool().GetNode(s.ID)
	if !found {
		return softFail(fmt.Sprintf("node %s not found", s.ID))
	}
	nt, declared := sch.Nodes[node.Type]
	if !declared {
		return softFail(fmt.Sprintf("unknown node type %q", node.Type))
	}
	filtered := make(model.Attrs, len(s.Values))
	for k, v := range s.Values {
		if _, declared := nt.Attrs[k]; declared {
			filtered[k] = v
		}
	}
	next, err := draft.Pool().UpdateAttr(s.ID, filtered)
	if err != nil {
		return StepResult{}, err
	}
	draft.Replace(next)
	return ok()
}

// Invert returns AttrStep(id, old_values_for_touched_keys): only the keys
// this step actually touched, to avoid clobbering unrelated concurrent
// attrs (spec.md §4.3).
func (s *AttrStep) Invert(preApply *model.NodePool) (Step, bool) {
	node, found := preApply.GetNode(s.ID)
	if !found {
		return nil, false
	}
	old := make(model.Attrs, len(s.Values))
	for k := range s.Values {
		if v, present := node.Attrs[k]; present {
			old[k] = v
		}
	}
	return &AttrStep{ID: s.ID, Values: old}, true
}

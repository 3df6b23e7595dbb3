package transform

import (
	"fmt"

	"github.com/mindburn-labs/doccore/pkg/model"
	"github.com/mindburn-labs/doccore/pkg/schema"
)

// AddMarkStep adds marks to a node, replacing any existing mark of the
// same type (spec.md §3, §4.3).
type AddMarkStep struct {
	ID    model.NodeId
	Marks []model.Mark
}

func (s *AddMarkStep) Name() string { return "add_mark_step" }

func (s *AddMarkStep) Apply(draft *Draft, sch *schema.Schema) (StepResult, error) {
	node, found := draft.Pool().GetNode(s.ID)
	if !found {
		return softFail(fmt.Sprintf("node %s not found", s.ID))
	}
	nt, declared := sch.Nodes[node.Type]
	if !declared {
		return softFail(fmt.Sprintf("unknown node type %q", node.Type))
	}
	for _, m := range s.Marks {
		if !nt.AllowsMark(m.Type) {
			return softFail(fmt.Sprintf("node type %q does not allow mark %q", node.Type, m.Type))
		}
	}
	next, err := draft.Pool().AddMark(s.ID, s.Marks)
	if err != nil {
		return StepResult{}, err
	}
	draft.Replace(next)
	return ok()
}

// Invert restores the marks of the touched types that existed before.
func (s *AddMarkStep) Invert(preApply *model.NodePool) (Step, bool) {
	node, found := preApply.GetNode(s.ID)
	if !found {
		return nil, false
	}
	var restore []model.Mark
	var removeTypes []string
	for _, m := range s.Marks {
		if old, had := node.MarkOfType(m.Type); had {
			restore = append(restore, old)
		} else {
			removeTypes = append(removeTypes, m.Type)
		}
	}
	if len(restore) > 0 && len(removeTypes) == 0 {
		return &AddMarkStep{ID: s.ID, Marks: restore}, true
	}
	if len(restore) == 0 {
		return &RemoveMarkStep{ID: s.ID, MarkTypes: removeTypes}, true
	}
	// Mixed: build a batch so both restores and removals apply.
	return &BatchStep{Steps: []Step{
		&AddMarkStep{ID: s.ID, Marks: restore},
		&RemoveMarkStep{ID: s.ID, MarkTypes: removeTypes},
	}}, true
}

// RemoveMarkStep drops all marks whose type is listed (spec.md §4.3).
type RemoveMarkStep struct {
	ID        model.NodeId
	MarkTypes []string
}

func (s *RemoveMarkStep) Name() string { return "remove_mark_step" }

func (s *RemoveMarkStep) Apply(draft *Draft, sch *schema.Schema) (StepResult, error) {
	if _, found := draft.Pool().GetNode(s.ID); !found {
		return softFail(fmt.Sprintf("node %s not found", s.ID))
	}
	next, err := draft.Pool().RemoveMark(s.ID, s.MarkTypes)
	if err != nil {
		return StepResult{}, err
	}
	draft.Replace(next)
	return ok()
}

// Invert restores the removed marks (its counterpart, AddMarkStep).
func (s *RemoveMarkStep) Invert(preApply *model.NodePool) (Step, bool) {
	node, found := preApply.GetNode(s.ID)
	if !found {
		return nil, false
	}
	var restore []model.Mark
	for _, t := range s.MarkTypes {
		if m, had := node.MarkOfType(t); had {
			restore = append(restore, m)
		}
	}
	if len(restore) == 0 {
		return nil, false
	}
	return &AddMarkStep{ID: s.ID, Marks: restore}, true
}

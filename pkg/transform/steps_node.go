package transform

import (
	"fmt"

	"github.com/mindburn-labs/doccore/pkg/model"
	"github.com/mindburn-labs/doccore/pkg/schema"
)

// NodeTree is a node plus its children, used to describe subtrees being
// inserted in one AddNodeStep (spec.md §3).
type NodeTree struct {
	Node     *model.Node
	Children []NodeTree
}

// flatten returns every *model.Node in the subtree, parent first, in DFS
// order. Each returned node's Content lists its immediate children's ids,
// which is how NodePool.AddNode tells subtree roots from descendants.
func (t NodeTree) flatten() []*model.Node {
	var childIDs []model.NodeId
	for _, c := range t.Children {
		childIDs = append(childIDs, c.Node.ID)
	}
	root := t.Node.Clone()
	root.Content = childIDs
	out := []*model.Node{root}
	for _, c := range t.Children {
		out = append(out, c.flatten()...)
	}
	return out
}

// AddNodeStep inserts each subtree under Parent, preserving order
// (spec.md §3, §4.3).
type AddNodeStep struct {
	Parent model.NodeId
	Nodes  []NodeTree
}

func (s *AddNodeStep) Name() string { return "add_node_step" }

func (s *AddNodeStep) Apply(draft *Draft, sch *schema.Schema) (StepResult, error) {
	parentNode, found := draft.Pool().GetNode(s.Parent)
	if !found {
		return softFail(fmt.Sprintf("parent %s not found", s.Parent))
	}
	nt, declared := sch.Nodes[parentNode.Type]
	if !declared {
		return softFail(fmt.Sprintf("unknown parent node type %q", parentNode.Type))
	}

	existingTypes := make([]string, 0, len(parentNode.Content)+len(s.Nodes))
	for _, id := range parentNode.Content {
		if c, ok := draft.Pool().GetNode(id); ok {
			existingTypes = append(existingTypes, c.Type)
		}
	}
	var roots []*model.Node
	for _, tree := range s.Nodes {
		roots = append(roots, tree.flatten()...)
		existingTypes = append(existingTypes, tree.Node.Type)
	}
	if nt.ContentMatch != nil {
		if _, ok := nt.ContentMatch.MatchFragment(existingTypes); !ok {
			return softFail(fmt.Sprintf("content of %q refuses inserted children", parentNode.Type))
		}
	}

	next, err := draft.Pool().AddNode(s.Parent, roots)
	if err != nil {
		return StepResult{}, err
	}
	draft.Replace(next)
	return ok()
}

// Invert is RemoveNodeStep(parent, added_ids): the top-level added ids
// (their subtrees are removed with them), per spec.md §4.3.
func (s *AddNodeStep) Invert(preApply *model.NodePool) (Step, bool) {
	ids := make([]model.NodeId, 0, len(s.Nodes))
	for _, t := range s.Nodes {
		ids = append(ids, t.Node.ID)
	}
	return &RemoveNodeStep{Parent: s.Parent, NodeIDs: ids}, true
}

// RemoveNodeStep removes the listed children (and their subtrees) from
// Parent (spec.md §3, §4.3).
type RemoveNodeStep struct {
	Parent  model.NodeId
	NodeIDs []model.NodeId
}

func (s *RemoveNodeStep) Name() string { return "remove_node_step" }

func (s *RemoveNodeStep) Apply(draft *Draft, sch *schema.Schema) (StepResult, error) {
	if _, found := draft.Pool().GetNode(s.Parent); !found {
		return softFail(fmt.Sprintf("parent %s not found", s.Parent))
	}
	next, err := draft.Pool().RemoveNode(s.Parent, s.NodeIDs)
	if err != nil {
		return StepResult{}, err
	}
	draft.Replace(next)
	return ok()
}

// Invert is AddNodeStep(parent, snapshotted_subtrees) captured from the
// pre-apply tree (spec.md §4.3).
func (s *RemoveNodeStep) Invert(preApply *model.NodePool) (Step, bool) {
	var trees []NodeTree
	for _, id := range s.NodeIDs {
		tree, ok := snapshotSubtree(preApply, id)
		if !ok {
			return nil, false
		}
		trees = append(trees, tree)
	}
	return &AddNodeStep{Parent: s.Parent, Nodes: trees}, true
}

func snapshotSubtree(pool *model.NodePool, id model.NodeId) (NodeTree, bool) {
	n, ok := pool.GetNode(id)
	if !ok {
		return NodeTree{}, false
	}
	clone := n.Clone()
	var children []NodeTree
	for _, c := range n.Content {
		child, ok := snapshotSubtree(pool, c)
		if !ok {
			return NodeTree{}, false
		}
		children = append(children, child)
	}
	clone.Content = nil
	return NodeTree{Node: clone, Children: children}, true
}

// MoveNodeStep moves ID from SourceParent to TargetParent at Position
// (append if nil), rejecting cycles (spec.md §3, §4.1, §4.3).
type MoveNodeStep struct {
	SourceParent model.NodeId
	TargetParent model.NodeId
	ID           model.NodeId
	Position     *int
}

func (s *MoveNodeStep) Name() string { return "move_node_step" }

func (s *MoveNodeStep) Apply(draft *Draft, sch *schema.Schema) (StepResult, error) {
	next, err := draft.Pool().MoveNode(s.SourceParent, s.TargetParent, s.ID, s.Position)
	if err != nil {
		return StepResult{}, err
	}
	draft.Replace(next)
	return ok()
}

// Invert is MoveNodeStep(dst, src, id, original_pos) (spec.md §4.3).
func (s *MoveNodeStep) Invert(preApply *model.NodePool) (Step, bool) {
	srcNode, ok := preApply.GetNode(s.SourceParent)
	if !ok {
		return nil, false
	}
	pos := -1
	for i, c := range srcNode.Content {
		if c == s.ID {
			pos = i
			break
		}
	}
	if pos < 0 {
		return nil, false
	}
	return &MoveNodeStep{SourceParent: s.TargetParent, TargetParent: s.SourceParent, ID: s.ID, Position: &pos}, true
}

// ReplaceNodeStep swaps the subtree rooted at ID for Replacement, whose
// own root id must equal ID (spec.md §3, §4.3).
type ReplaceNodeStep struct {
	ID          model.NodeId
	Replacement NodeTree
}

func (s *ReplaceNodeStep) Name() string { return "replace_node_step" }

func (s *ReplaceNodeStep) Apply(draft *Draft, sch *schema.Schema) (StepResult, error) {
	if s.Replacement.Node.ID != s.ID {
		return softFail("replacement root id must match target id")
	}
	flat := s.Replacement.flatten()
	root := flat[0]
	subtree := flat[1:]
	next, err := draft.Pool().ReplaceNode(s.ID, root, subtree)
	if err != nil {
		return StepResult{}, err
	}
	draft.Replace(next)
	return ok()
}

// Invert is the symmetric replace: swap back to a snapshot of the
// pre-apply subtree (spec.md §4.3).
func (s *ReplaceNodeStep) Invert(preApply *model.NodePool) (Step, bool) {
	tree, ok := snapshotSubtree(preApply, s.ID)
	if !ok {
		return nil, false
	}
	return &ReplaceNodeStep{ID: s.ID, Replacement: tree}, true
}

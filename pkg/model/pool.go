package model

import "fmt"

// NodePool is the immutable whole-document value: every node plus the
// parent map derived from node content. Wrapped in shared ownership
// (callers hold *NodePool by pointer and never mutate it in place); every
// mutating helper below returns a brand-new *NodePool.
type NodePool struct {
	RootID NodeId
	nodes  map[NodeId]*Node
	// parent holds only ids, never back-pointers on Node, keeping the
	// object graph a pure DAG from the root downward (spec.md §9).
	parent map[NodeId]NodeId
}

// NewPool creates a pool from a root node; root must not have a parent.
func NewPool(root *Node) *NodePool {
	p := &NodePool{
		RootID: root.ID,
		nodes:  map[NodeId]*Node{root.ID: root},
		parent: map[NodeId]NodeId{},
	}
	for _, c := range root.Content {
		p.parent[c] = root.ID
	}
	return p
}

// clone performs a shallow copy of the pool's maps; Node values themselves
// are shared by pointer until individually replaced.
func (p *NodePool) clone() *NodePool {
	nodes := make(map[NodeId]*Node, len(p.nodes))
	for k, v := range p.nodes {
		nodes[k] = v
	}
	parent := make(map[NodeId]NodeId, len(p.parent))
	for k, v := range p.parent {
		parent[k] = v
	}
	return &NodePool{RootID: p.RootID, nodes: nodes, parent: parent}
}

// GetNode returns the node for id, O(1).
func (p *NodePool) GetNode(id NodeId) (*Node, bool) {
	n, ok := p.nodes[id]
	return n, ok
}

// MustGetNode is a convenience wrapper returning a NodeNotFound PoolError.
func (p *NodePool) MustGetNode(id NodeId) (*Node, error) {
	n, ok := p.nodes[id]
	if !ok {
		return nil, newPoolErr(KindNodeNotFound, id, "node not found")
	}
	return n, nil
}

// Children returns id's direct children in order.
func (p *NodePool) Children(id NodeId) ([]NodeId, error) {
	n, err := p.MustGetNode(id)
	if err != nil {
		return nil, err
	}
	return append([]NodeId(nil), n.Content...), nil
}

// ParentID returns the parent of id, if any (root has none).
func (p *NodePool) ParentID(id NodeId) (NodeId, bool) {
	parent, ok := p.parent[id]
	return parent, ok
}

// Descendants returns every descendant of id in depth-first order.
func (p *NodePool) Descendants(id NodeId) ([]NodeId, error) {
	n, err := p.MustGetNode(id)
	if err != nil {
		return nil, err
	}
	var out []NodeId
	var walk func(NodeId)
	walk = func(cur NodeId) {
		node, ok := p.nodes[cur]
		if !ok {
			return
		}
		for _, c := range node.Content {
			out = append(out, c)
			walk(c)
		}
	}
	walk(n.ID)
	return out, nil
}

// Ancestors returns id's ancestors from immediate parent up to the root.
func (p *NodePool) Ancestors(id NodeId) []NodeId {
	var out []NodeId
	cur := id
	for {
		parent, ok := p.parent[cur]
		if !ok {
			break
		}
		out = append(out, parent)
		cur = parent
	}
	return out
}

// IsAncestorOf reports whether ancestor is in descendant's ancestor chain,
// used by MoveNode to reject a move that would create a cycle.
func (p *NodePool) IsAncestorOf(ancestor, descendant NodeId) bool {
	if ancestor == descendant {
		return true
	}
	for _, a := range p.Ancestors(descendant) {
		if a == ancestor {
			return true
		}
	}
	return false
}

// ValidateHierarchy checks every parent/child invariant in spec.md §4.1:
// every (child, parent) pair must reference existing nodes, and every
// child of n.Content must map back to n in the parent map.
func (p *NodePool) ValidateHierarchy() error {
	if _, ok := p.nodes[p.RootID]; !ok {
		return newPoolErr(KindEmptyPool, p.RootID, "root node missing from pool")
	}
	if _, hasParent := p.parent[p.RootID]; hasParent {
		return newPoolErr(KindInvalidParenting, p.RootID, "root must not have a parent")
	}
	for child, parent := range p.parent {
		childNode, ok := p.nodes[child]
		if !ok {
			return newPoolErr(KindOrphanNode, child, "parent_map entry references missing node")
		}
		parentNode, ok := p.nodes[parent]
		if !ok {
			return newPoolErr(KindParentNotFound, parent, "parent_map entry references missing parent")
		}
		found := false
		for _, c := range parentNode.Content {
			if c == child {
				found = true
				break
			}
		}
		if !found {
			return newPoolErr(KindInvalidParenting, child, fmt.Sprintf("not present in parent %s content", parent))
		}
		_ = childNode
	}
	for id, n := range p.nodes {
		for _, c := range n.Content {
			if parent, ok := p.parent[c]; !ok || parent != id {
				return newPoolErr(KindInvalidParenting, c, fmt.Sprintf("content of %s not reflected in parent_map", id))
			}
		}
	}
	return nil
}

// AddNode inserts nodes (each already a fully-formed subtree reachable via
// Content) under parent, preserving order. nodes is the full DFS listing of
// every node being introduced, subtree roots and descendants alike: a node
// referenced by another node's Content is a descendant and is parented to
// that node, not to parent directly; only the unreferenced roots become
// children of parent. Duplicate ids are rejected.
func (p *NodePool) AddNode(parent NodeId, nodes []*Node) (*NodePool, error) {
	if _, err := p.MustGetNode(parent); err != nil {
		return nil, err
	}
	next := p.clone()
	parentNode, _ := next.nodes[parent]
	parentClone := parentNode.Clone()

	claimed := make(map[NodeId]bool, len(nodes))
	for _, n := range nodes {
		for _, c := range n.Content {
			claimed[c] = true
		}
	}

	var addIDs []NodeId
	for _, n := range nodes {
		if _, exists := next.nodes[n.ID]; exists {
			return nil, newPoolErr(KindDuplicateNodeID, n.ID, "node id already present in pool")
		}
		next.nodes[n.ID] = n
		if !claimed[n.ID] {
			addIDs = append(addIDs, n.ID)
			next.parent[n.ID] = parent
		}
		for _, c := range n.Content {
			next.parent[c] = n.ID
		}
	}
	parentClone.Content = append(parentClone.Content, addIDs...)
	next.nodes[parent] = parentClone
	return next, nil
}

// RemoveNode removes the listed children (and their subtrees) from parent.
func (p *NodePool) RemoveNode(parent NodeId, ids []NodeId) (*NodePool, error) {
	if parent == p.RootID {
		for _, id := range ids {
			if id == p.RootID {
				return nil, newPoolErr(KindCannotRemoveRoot, id, "cannot remove the root node")
			}
		}
	}
	parentNode, err := p.MustGetNode(parent)
	if err != nil {
		return nil, err
	}
	remove := make(map[NodeId]struct{}, len(ids))
	for _, id := range ids {
		if _, err := p.MustGetNode(id); err != nil {
			return nil, err
		}
		remove[id] = struct{}{}
	}

	next := p.clone()
	var dropSubtree func(NodeId)
	dropSubtree = func(id NodeId) {
		n, ok := next.nodes[id]
		if !ok {
			return
		}
		for _, c := range n.Content {
			dropSubtree(c)
		}
		delete(next.nodes, id)
		delete(next.parent, id)
	}
	for id := range remove {
		dropSubtree(id)
	}

	parentClone := parentNode.Clone()
	kept := parentClone.Content[:0:0]
	for _, c := range parentClone.Content {
		if _, gone := remove[c]; !gone {
			kept = append(kept, c)
		}
	}
	parentClone.Content = kept
	next.nodes[parent] = parentClone
	return next, nil
}

// MoveNode detaches id from srcParent and attaches it to dstParent at pos
// (append if pos is nil). Rejects a move that would place id under its own
// descendant with CyclicReference.
func (p *NodePool) MoveNode(srcParent, dstParent, id NodeId, pos *int) (*NodePool, error) {
	if _, err := p.MustGetNode(srcParent); err != nil {
		return nil, err
	}
	dstNode, err := p.MustGetNode(dstParent)
	if err != nil {
		return nil, err
	}
	if _, err := p.MustGetNode(id); err != nil {
		return nil, err
	}
	if p.IsAncestorOf(id, dstParent) {
		return nil, newPoolErr(KindCyclicReference, id, "move would place node under its own descendant")
	}

	next := p.clone()
	srcClone := next.nodes[srcParent].Clone()
	out := srcClone.Content[:0:0]
	for _, c := range srcClone.Content {
		if c != id {
			out = append(out, c)
		}
	}
	srcClone.Content = out
	next.nodes[srcParent] = srcClone

	dstClone := dstNode.Clone()
	if srcParent == dstParent {
		dstClone = next.nodes[dstParent]
	}
	insertAt := len(dstClone.Content)
	if pos != nil {
		insertAt = *pos
		if insertAt < 0 || insertAt > len(dstClone.Content) {
			return nil, newPoolErr(KindInvalidNodeMove, id, "position out of range")
		}
	}
	newContent := make([]NodeId, 0, len(dstClone.Content)+1)
	newContent = append(newContent, dstClone.Content[:insertAt]...)
	newContent = append(newContent, id)
	newContent = append(newContent, dstClone.Content[insertAt:]...)
	dstClone.Content = newContent
	next.nodes[dstParent] = dstClone
	next.parent[id] = dstParent
	return next, nil
}

// ReplaceNode swaps the subtree rooted at id for replacement (whose own id
// must equal id); replacement's descendants are inserted fresh.
func (p *NodePool) ReplaceNode(id NodeId, replacement *Node, replacementSubtree []*Node) (*NodePool, error) {
	if replacement.ID != id {
		return nil, newPoolErr(KindInvalidParenting, id, "replacement root id must match target id")
	}
	if _, err := p.MustGetNode(id); err != nil {
		return nil, err
	}
	next := p.clone()
	var dropSubtree func(NodeId, bool)
	dropSubtree = func(nid NodeId, deleteSelf bool) {
		n, ok := next.nodes[nid]
		if !ok {
			return
		}
		for _, c := range n.Content {
			dropSubtree(c, true)
		}
		if deleteSelf {
			delete(next.nodes, nid)
			delete(next.parent, nid)
		}
	}
	dropSubtree(id, false)
	next.nodes[id] = replacement
	for _, n := range replacementSubtree {
		next.nodes[n.ID] = n
	}
	for _, n := range append(replacementSubtree, replacement) {
		for _, c := range n.Content {
			next.parent[c] = n.ID
		}
	}
	return next, nil
}

// UpdateAttr merges values into id's attrs (overwrite specified keys only).
func (p *NodePool) UpdateAttr(id NodeId, values Attrs) (*NodePool, error) {
	n, err := p.MustGetNode(id)
	if err != nil {
		return nil, err
	}
	next := p.clone()
	clone := n.Clone()
	clone.Attrs = clone.Attrs.Merge(values)
	next.nodes[id] = clone
	return next, nil
}

// AddMark adds marks to id, replacing any existing mark of the same type.
func (p *NodePool) AddMark(id NodeId, marks []Mark) (*NodePool, error) {
	n, err := p.MustGetNode(id)
	if err != nil {
		return nil, err
	}
	next := p.clone()
	clone := n
	for _, m := range marks {
		clone = clone.WithMark(m)
	}
	next.nodes[id] = clone
	return next, nil
}

// RemoveMark drops every mark on id whose type is in markTypes.
func (p *NodePool) RemoveMark(id NodeId, markTypes []string) (*NodePool, error) {
	n, err := p.MustGetNode(id)
	if err != nil {
		return nil, err
	}
	next := p.clone()
	next.nodes[id] = n.WithoutMarks(markTypes)
	return next, nil
}

// AllNodes returns a snapshot copy of every node in the pool (for tests and
// search/persistence full scans).
func (p *NodePool) AllNodes() map[NodeId]*Node {
	out := make(map[NodeId]*Node, len(p.nodes))
	for k, v := range p.nodes {
		out[k] = v
	}
	return out
}

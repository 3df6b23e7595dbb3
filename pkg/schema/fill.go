package schema

import (
	"fmt"

	"github.com/mindburn-labs/doccore/pkg/model"
)

// Fill computes the node-type suffix needed to complete existingTypes to a
// valid end of nt's content match, then materializes that suffix as fresh
// leaf Nodes with their default attrs (spec.md §4.2 "fill", §8 invariant
// 8). Each produced node must itself accept an empty child list; Compile
// does not check this, so Fill returns a NoValidEnd error when the suffix
// names a type that always requires content.
func (s *Schema) Fill(nt *NodeType, existingTypes []string) ([]*model.Node, error) {
	state, ok := nt.ContentMatch.MatchFragment(existingTypes)
	if !ok {
		return nil, newValidationErr(KindNoValidEnd, nt.Name, "existing children do not match this node's content expression")
	}
	suffixTypes, ok := nt.ContentMatch.Fill(state)
	if !ok {
		return nil, newValidationErr(KindNoValidEnd, nt.Name, "no child sequence completes this node's content to a valid end")
	}
	nodes := make([]*model.Node, 0, len(suffixTypes))
	for _, typeName := range suffixTypes {
		childType, ok := s.Nodes[typeName]
		if !ok {
			return nil, fmt.Errorf("fill: unknown node type %q produced by content match", typeName)
		}
		attrs, err := childType.ComputeAttrs(nil)
		if err != nil {
			return nil, fmt.Errorf("fill: computing default attrs for %q: %w", typeName, err)
		}
		if !childType.ContentMatch.ValidEnd(childType.ContentMatch.MustStart()) {
			return nil, newValidationErr(KindNoValidEnd, typeName, "fill requires a childless valid-end type; this type always requires content")
		}
		nodes = append(nodes, &model.Node{
			ID:    model.NewNodeId(),
			Type:  typeName,
			Attrs: model.Attrs(attrs),
		})
	}
	return nodes, nil
}

// MustStart exposes the automaton's start state for callers needing to
// check whether an empty child sequence is itself valid.
func (cm *ContentMatch) MustStart() int { return cm.start }

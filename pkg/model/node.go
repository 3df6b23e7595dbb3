// Package model implements the immutable, persistent node tree that backs
// every document: nodes, marks, attributes, and the NodePool that owns
// them. Mutation always produces a new NodePool that shares unchanged
// subtrees with the original.
package model

import (
	"crypto/rand"
	"encoding/binary"
	"sync/atomic"

	"golang.org/x/crypto/blake2b"
)

// NodeId is an opaque, stable, shareable identifier, unique within a document.
type NodeId string

var idCounter uint64

// idSalt is drawn once per process so equal counter values in different
// processes hash to different ids.
var idSalt = func() (s [16]byte) {
	_, _ = rand.Read(s[:])
	return s
}()

// NewNodeId generates a short, URL-safe, collision-resistant id. It is
// intentionally distinct in shape from transaction/event UUIDs (see
// pkg/transform) so the two id spaces read apart in logs.
func NewNodeId() NodeId {
	n := atomic.AddUint64(&idCounter, 1)
	var buf [24]byte
	copy(buf[:16], idSalt[:])
	binary.BigEndian.PutUint64(buf[16:], n)
	sum := blake2b.Sum256(buf[:])
	return NodeId(encodeBase32(sum[:10]))
}

const base32Alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

func encodeBase32(b []byte) string {
	out := make([]byte, 0, len(b)*8/5+1)
	var acc uint64
	var bits uint
	for _, c := range b {
		acc = acc<<8 | uint64(c)
		bits += 8
		for bits >= 5 {
			bits -= 5
			out = append(out, base32Alphabet[(acc>>bits)&0x1f])
		}
	}
	if bits > 0 {
		out = append(out, base32Alphabet[(acc<<(5-bits))&0x1f])
	}
	return string(out)
}

// Mark is a small typed annotation attached to a node. Mark-set semantics
// is "at most one per type": adding a mark of an existing type replaces it.
type Mark struct {
	Type  string `json:"type"`
	Attrs Attrs  `json:"attrs,omitempty"`
}

// Node is an immutable structural element of the document tree.
//
// Node values are shared by reference across State snapshots; any
// mutation (via NodePool's mutating helpers) produces a brand-new *Node,
// never mutates one in place.
type Node struct {
	ID      NodeId    `json:"id"`
	Type    string    `json:"type"`
	Attrs   Attrs     `json:"attrs,omitempty"`
	Content []NodeId  `json:"content,omitempty"`
	Marks   []Mark    `json:"marks,omitempty"`
}

// Clone returns a shallow copy of n suitable as the basis for a mutation;
// Attrs and Content/Marks slices are copied so the original is untouched.
func (n *Node) Clone() *Node {
	clone := *n
	clone.Attrs = n.Attrs.Clone()
	if n.Content != nil {
		clone.Content = append([]NodeId(nil), n.Content...)
	}
	if n.Marks != nil {
		clone.Marks = append([]Mark(nil), n.Marks...)
	}
	return &clone
}

// MarkOfType returns the mark of the given type, if present.
func (n *Node) MarkOfType(t string) (Mark, bool) {
	for _, m := range n.Marks {
		if m.Type == t {
			return m, true
		}
	}
	return Mark{}, false
}

// WithMark returns a clone of n with the given mark added, replacing any
// existing mark of the same type (spec.md §3 mark-set semantics).
func (n *Node) WithMark(m Mark) *Node {
	clone := n.Clone()
	out := make([]Mark, 0, len(clone.Marks)+1)
	replaced := false
	for _, existing := range clone.Marks {
		if existing.Type == m.Type {
			out = append(out, m)
			replaced = true
			continue
		}
		out = append(out, existing)
	}
	if !replaced {
		out = append(out, m)
	}
	clone.Marks = out
	return clone
}

// WithoutMarks returns a clone of n with every mark whose type is in types removed.
func (n *Node) WithoutMarks(types []string) *Node {
	clone := n.Clone()
	drop := make(map[string]struct{}, len(types))
	for _, t := range types {
		drop[t] = struct{}{}
	}
	out := clone.Marks[:0:0]
	for _, m := range clone.Marks {
		if _, ok := drop[m.Type]; ok {
			continue
		}
		out = append(out, m)
	}
	clone.Marks = out
	return clone
}

// Equal reports node-id and structural equality of attrs/marks/content,
// the comparison spec.md §8 invariant 2 (step inversion) requires.
func (n *Node) Equal(o *Node) bool {
	if n == o {
		return true
	}
	if n == nil || o == nil {
		return false
	}
	if n.ID != o.ID || n.Type != o.Type {
		return false
	}
	if !n.Attrs.Equal(o.Attrs) {
		return false
	}
	if len(n.Content) != len(o.Content) {
		return false
	}
	for i := range n.Content {
		if n.Content[i] != o.Content[i] {
			return false
		}
	}
	if len(n.Marks) != len(o.Marks) {
		return false
	}
	for i := range n.Marks {
		if n.Marks[i].Type != o.Marks[i].Type || !n.Marks[i].Attrs.Equal(o.Marks[i].Attrs) {
			return false
		}
	}
	return true
}

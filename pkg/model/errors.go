package model

import "fmt"

// Kind tags a PoolError with the concept-level error taxonomy from spec.md §7.
type Kind string

const (
	KindDuplicateNodeID  Kind = "DuplicateNodeId"
	KindParentNotFound   Kind = "ParentNotFound"
	KindNodeNotFound     Kind = "NodeNotFound"
	KindInvalidParenting Kind = "InvalidParenting"
	KindCyclicReference  Kind = "CyclicReference"
	KindInvalidNodeMove  Kind = "InvalidNodeMove"
	KindCannotRemoveRoot Kind = "CannotRemoveRoot"
	KindEmptyPool        Kind = "EmptyPool"
	KindOrphanNode       Kind = "OrphanNode"
)

// PoolError is a tree-invariant violation (spec.md §4.1 failure kinds).
type PoolError struct {
	Kind    Kind
	NodeID  NodeId
	Message string
	Err     error
}

func (e *PoolError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("pool error [%s] node=%s: %s", e.Kind, e.NodeID, e.Message)
	}
	return fmt.Sprintf("pool error [%s]: %s", e.Kind, e.Message)
}

func (e *PoolError) Unwrap() error { return e.Err }

func newPoolErr(kind Kind, id NodeId, msg string) *PoolError {
	return &PoolError{Kind: kind, NodeID: id, Message: msg}
}

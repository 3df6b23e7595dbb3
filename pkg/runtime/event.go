package runtime

import (
	"github.com/mindburn-labs/doccore/pkg/state"
	"github.com/mindburn-labs/doccore/pkg/transform"
)

// EventKind discriminates the Event tagged union (spec.md §3 "Event").
type EventKind int

const (
	EventCreate EventKind = iota
	EventTrApply
	EventDestroy
	EventStop
)

// Event is the tagged union broadcast on every state transition (spec.md
// §3, §4.6 step 6).
type Event struct {
	Kind         EventKind
	State        *state.State
	Transactions []*transform.Transaction
}

// Package index implements the search-indexer contract (spec.md §6.3): a
// registry that translates committed Steps into IndexMutations, with
// fallback rules for every built-in transform.Step.
package index

import (
	"sync"

	"github.com/mindburn-labs/doccore/pkg/model"
	"github.com/mindburn-labs/doccore/pkg/transform"
)

// MutationKind tags an IndexMutation's variant.
type MutationKind int

const (
	Add MutationKind = iota
	Upsert
	DeleteManyById
)

// IndexMutation is one instruction to a search index (spec.md §6.3).
type IndexMutation struct {
	Kind MutationKind
	Doc  *Doc       // set for Add/Upsert
	IDs  []model.NodeId // set for DeleteManyById
}

// Doc is the subset of a node an index cares about: id, type, and its
// flattened attribute set. Marks are omitted — full-text/attribute search
// doesn't need inline formatting, only content and structure.
type Doc struct {
	ID       model.NodeId
	NodeType string
	Attrs    model.Attrs
}

func docOf(pool *model.NodePool, id model.NodeId) (*Doc, bool) {
	n, ok := pool.GetNode(id)
	if !ok {
		return nil, false
	}
	return &Doc{ID: id, NodeType: n.Type, Attrs: n.Attrs}, true
}

// Translator converts one step into zero or more IndexMutations, given the
// pool before and after the step applied.
type Translator func(before, after *model.NodePool, step transform.Step) []IndexMutation

// Registry holds per-step-type translators, keyed by transform.Step.Name(),
// with a fallback translator for anything unregistered (spec.md §6.3:
// "Unknown step types are dispatched through a pluggable registry").
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Translator
	fallback Translator
}

// NewRegistry builds a Registry with the built-in fallback rules for
// AttrStep, AddMarkStep, RemoveMarkStep, AddNodeStep, RemoveNodeStep,
// MoveNodeStep, ReplaceNodeStep already wired (spec.md §6.3).
func NewRegistry() *Registry {
	r := &Registry{handlers: map[string]Translator{}}
	r.fallback = builtinFallback
	return r
}

// Register installs a translator for a specific step Name(), overriding the
// built-in fallback for that type.
func (r *Registry) Register(stepName string, t Translator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[stepName] = t
}

// Translate dispatches step to its registered translator, or the built-in
// fallback when none is registered.
func (r *Registry) Translate(before, after *model.NodePool, step transform.Step) []IndexMutation {
	r.mu.RLock()
	t, ok := r.handlers[step.Name()]
	r.mu.RUnlock()
	if ok {
		return t(before, after, step)
	}
	return r.fallback(before, after, step)
}

// TranslateTransaction runs Translate over every step of a committed
// transaction, given the pool before the transaction and the pool after
// (spec.md §6.3: "For each committed transaction the indexer receives
// (pool_before, pool_after, Vec<Step>)").
func (r *Registry) TranslateTransaction(before, after *model.NodePool, steps []transform.Step) []IndexMutation {
	out := make([]IndexMutation, 0, len(steps))
	cur := before
	for _, step := range steps {
		out = append(out, r.Translate(cur, after, step)...)
		cur = after
	}
	return out
}

// builtinFallback implements the spec's default rules for the built-in
// step types; anything else produces no mutation (a future Register call
// is required for custom steps to be indexed at all).
func builtinFallback(before, after *model.NodePool, step transform.Step) []IndexMutation {
	switch s := step.(type) {
	case *transform.AttrStep:
		return upsertOne(after, s.ID)
	case *transform.AddMarkStep:
		return upsertOne(after, s.ID)
	case *transform.RemoveMarkStep:
		return upsertOne(after, s.ID)
	case *transform.AddNodeStep:
		var out []IndexMutation
		for _, tree := range s.Nodes {
			out = append(out, addSubtree(after, tree.Node.ID)...)
		}
		return out
	case *transform.RemoveNodeStep:
		var ids []model.NodeId
		for _, id := range s.NodeIDs {
			ids = append(ids, collectSubtreeIds(before, id)...)
		}
		return deleteByIds(ids)
	case *transform.MoveNodeStep:
		return upsertSubtree(after, s.ID)
	case *transform.ReplaceNodeStep:
		ids := collectSubtreeIds(before, s.ID)
		muts := deleteByIds(ids)
		muts = append(muts, upsertSubtree(after, s.ID)...)
		return muts
	default:
		return nil
	}
}

func upsertOne(pool *model.NodePool, id model.NodeId) []IndexMutation {
	doc, ok := docOf(pool, id)
	if !ok {
		return nil
	}
	return []IndexMutation{{Kind: Upsert, Doc: doc}}
}

func addSubtree(pool *model.NodePool, root model.NodeId) []IndexMutation {
	ids := collectSubtreeIds(pool, root)
	out := make([]IndexMutation, 0, len(ids))
	for _, id := range ids {
		if doc, ok := docOf(pool, id); ok {
			out = append(out, IndexMutation{Kind: Add, Doc: doc})
		}
	}
	return out
}

func upsertSubtree(pool *model.NodePool, root model.NodeId) []IndexMutation {
	ids := collectSubtreeIds(pool, root)
	out := make([]IndexMutation, 0, len(ids))
	for _, id := range ids {
		if doc, ok := docOf(pool, id); ok {
			out = append(out, IndexMutation{Kind: Upsert, Doc: doc})
		}
	}
	return out
}

func deleteByIds(ids []model.NodeId) []IndexMutation {
	if len(ids) == 0 {
		return nil
	}
	return []IndexMutation{{Kind: DeleteManyById, IDs: ids}}
}

// collectSubtreeIds walks pool depth-first from root; a missing root yields
// an empty (already-deleted) subtree rather than an error, since callers
// use this on both pre- and post-apply snapshots.
func collectSubtreeIds(pool *model.NodePool, root model.NodeId) []model.NodeId {
	n, ok := pool.GetNode(root)
	if !ok {
		return nil
	}
	ids := []model.NodeId{root}
	for _, c := range n.Content {
		ids = append(ids, collectSubtreeIds(pool, c)...)
	}
	return ids
}

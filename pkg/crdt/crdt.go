// Package crdt implements the CRDT/sync mapping contract (spec.md §6.4): a
// priority-ordered, step-type-keyed registry of converters that mutate a
// caller-supplied collaboration document. The CRDT host itself is out of
// scope (spec.md §1); this package only owns the step -> txn translation.
package crdt

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/mindburn-labs/doccore/pkg/transform"
)

// Txn is the caller's CRDT transaction handle. It is opaque to this
// package — converters type-assert it to whatever concrete CRDT library
// the host embeds (e.g. a Yjs/Automerge-style transaction wrapper).
type Txn any

// Converter mutates txn to reflect step having applied.
type Converter func(step transform.Step, txn Txn)

type registration struct {
	stepName  string
	priority  int
	converter Converter
}

// Registry dispatches steps to their registered Converter in priority
// order (spec.md §6.4: "keyed by step type-id and priority-ordered").
// Multiple converters may be registered for the same step type-id — e.g. a
// base converter plus an observability hook — and all run, highest
// priority first.
type Registry struct {
	mu     sync.RWMutex
	byName map[string][]registration
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{byName: map[string][]registration{}, logger: logger}
}

// Register installs a converter for stepName at priority (higher runs
// first); ties keep registration order (stable sort).
func (r *Registry) Register(stepName string, priority int, conv Converter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	regs := append(r.byName[stepName], registration{stepName: stepName, priority: priority, converter: conv})
	sort.SliceStable(regs, func(i, j int) bool { return regs[i].priority > regs[j].priority })
	r.byName[stepName] = regs
}

// Apply runs every registered converter for step's type against txn, in
// priority order. An unregistered step type produces a logged warning and
// is a no-op (spec.md §6.4: "unknown steps produce a warning and are
// no-ops").
func (r *Registry) Apply(step transform.Step, txn Txn) {
	r.mu.RLock()
	regs := r.byName[step.Name()]
	r.mu.RUnlock()
	if len(regs) == 0 {
		r.logger.Warn("crdt: no converter registered for step type", "step", step.Name())
		return
	}
	for _, reg := range regs {
		reg.converter(step, txn)
	}
}

// ApplyTransaction runs Apply over every step of a committed transaction,
// in order.
func (r *Registry) ApplyTransaction(steps []transform.Step, txn Txn) {
	for _, step := range steps {
		r.Apply(step, txn)
	}
}

// Package plugin implements pluggable state fields and transaction hooks
// that the runtime's dispatch pipeline consults on every commit (spec.md
// §4.5). Plugins never reference a concrete state implementation directly;
// they depend on the StateReader interface so pkg/state can implement it
// without an import cycle back into this package.
package plugin

import (
	"github.com/Masterminds/semver/v3"

	"github.com/mindburn-labs/doccore/pkg/model"
	"github.com/mindburn-labs/doccore/pkg/schema"
	"github.com/mindburn-labs/doccore/pkg/transform"
)

// StateReader is the read-only view of a state snapshot a plugin is allowed
// to observe.
type StateReader interface {
	Doc() *model.NodePool
	SchemaOf() *schema.Schema
	Field(key string) (any, bool)
}

// Config carries the inputs available to StateField.Init, mirroring the
// subset of state configuration a field is allowed to see at creation time.
type Config struct {
	Schema *schema.Schema
	Doc    *model.NodePool
}

// StateField computes and evolves a plugin's private slice of state
// alongside the document (spec.md §4.5).
type StateField interface {
	Init(cfg *Config, instance StateReader) any
	Apply(tr *transform.Transaction, value any, oldState, newState StateReader) any
}

// TransactionHook lets a plugin veto a transaction before commit, or append
// a follow-up transaction after commit (spec.md §4.5, §4.4 fixpoint).
type TransactionHook interface {
	FilterTransaction(tr *transform.Transaction, state StateReader) bool
	AppendTransaction(tr *transform.Transaction, oldState, newState StateReader) (*transform.Transaction, bool)
}

// Metadata describes a plugin's identity and its place in the dependency
// DAG (spec.md §4.5, §8 invariant 5).
type Metadata struct {
	Name         string
	Version      string
	Dependencies []string
	Conflicts    []string
	Tags         []string
}

// SameIdentity reports whether a and b are the same plugin at the same
// version, per semver precedence rather than raw string equality (so
// "1.2.0" and "1.2.0+build" are considered the same release). Used by
// State.Reconfigure to decide which plugins keep their field value
// (spec.md §4.4, §9 "Reconfigure vs. rebuild").
func (m Metadata) SameIdentity(other Metadata) bool {
	if m.Name != other.Name {
		return false
	}
	mv, mErr := semver.NewVersion(m.Version)
	ov, oErr := semver.NewVersion(other.Version)
	if mErr != nil || oErr != nil {
		return m.Version == other.Version
	}
	return mv.Equal(ov)
}

// Spec is the user-facing plugin definition passed to Register.
type Spec struct {
	Metadata Metadata
	State    StateField
	Hook     TransactionHook
}

// Plugin is a registered, named unit of extensible behavior.
type Plugin struct {
	Spec Spec
	Key  string
}

// New wraps a Spec as a Plugin keyed by its metadata name.
func New(spec Spec) *Plugin {
	return &Plugin{Spec: spec, Key: spec.Metadata.Name}
}

// GetState reads this plugin's field value out of state.
func (p *Plugin) GetState(state StateReader) (any, bool) {
	return state.Field(p.Key)
}

// FilterTransaction reports false to veto tr; true (the default, when no
// hook is installed) to allow it.
func (p *Plugin) FilterTransaction(tr *transform.Transaction, state StateReader) bool {
	if p.Spec.Hook == nil {
		return true
	}
	return p.Spec.Hook.FilterTransaction(tr, state)
}

// AppendTransaction runs the plugin's post-commit hook, if any.
func (p *Plugin) AppendTransaction(tr *transform.Transaction, oldState, newState StateReader) (*transform.Transaction, bool) {
	if p.Spec.Hook == nil {
		return nil, false
	}
	return p.Spec.Hook.AppendTransaction(tr, oldState, newState)
}

// InitState computes this plugin's initial field value.
func (p *Plugin) InitState(cfg *Config, instance StateReader) any {
	if p.Spec.State == nil {
		return nil
	}
	return p.Spec.State.Init(cfg, instance)
}

// ApplyState advances this plugin's field value across a committed
// transaction.
func (p *Plugin) ApplyState(tr *transform.Transaction, value any, oldState, newState StateReader) any {
	if p.Spec.State == nil {
		return value
	}
	return p.Spec.State.Apply(tr, value, oldState, newState)
}

// Package state implements the State/Transaction apply pipeline: plugin
// filtering, committing a transaction's draft into a new document, advancing
// plugin state fields, and the append-transaction fixpoint (spec.md §4.4).
package state

import (
	"github.com/mindburn-labs/doccore/pkg/model"
	"github.com/mindburn-labs/doccore/pkg/plugin"
	"github.com/mindburn-labs/doccore/pkg/schema"
)

// State is an immutable snapshot: a document, a schema, a config, and each
// plugin's current field value. Applying a transaction always yields a new
// State with version+1; it never mutates an existing one (spec.md §3).
type State struct {
	Version int64
	Config  *Configuration

	doc         *model.NodePool
	fields      map[string]any
	storedMarks []model.Mark
}

// Create builds the initial State for a configuration, initializing every
// plugin's state field (spec.md §4.6 create()).
func Create(cfg *Configuration) *State {
	if cfg.Plugins == nil {
		cfg.Plugins = plugin.Empty()
	}
	if cfg.Resources == nil {
		cfg.Resources = NewResourceManager()
	}
	s := &State{
		Version: 0,
		Config:  cfg,
		doc:     cfg.Doc,
		fields:  map[string]any{},
	}
	pcfg := &plugin.Config{Schema: cfg.Schema, Doc: cfg.Doc}
	for _, p := range cfg.Plugins.Sorted() {
		s.fields[p.Key] = p.InitState(pcfg, s)
	}
	return s
}

// Doc implements plugin.StateReader.
func (s *State) Doc() *model.NodePool { return s.doc }

// SchemaOf implements plugin.StateReader.
func (s *State) SchemaOf() *schema.Schema { return s.Config.Schema }

// Field implements plugin.StateReader.
func (s *State) Field(key string) (any, bool) {
	v, ok := s.fields[key]
	return v, ok
}

// StoredMarks returns the marks that should be applied to the next inserted
// content (an editor-level convenience state carried alongside the doc).
func (s *State) StoredMarks() []model.Mark { return s.storedMarks }

// withDoc returns a shallow copy of s with a new document and version,
// fields left for the caller to populate.
func (s *State) withDoc(doc *model.NodePool, version int64) *State {
	return &State{
		Version:     version,
		Config:      s.Config,
		doc:         doc,
		fields:      make(map[string]any, len(s.fields)),
		storedMarks: s.storedMarks,
	}
}

// Reconfigure builds a state with the same doc and version, re-initializing
// only plugins that are new or whose name+version identity
// (Metadata.SameIdentity) changed; plugins with the same identity keep their
// field value (spec.md §4.4, §9 "Reconfigure vs. rebuild").
func (s *State) Reconfigure(newConfig *Configuration) *State {
	next := &State{
		Version: s.Version,
		Config:  newConfig,
		doc:     s.doc,
		fields:  make(map[string]any, newConfig.Plugins.Count()),
	}
	pcfg := &plugin.Config{Schema: newConfig.Schema, Doc: s.doc}
	oldPlugins := map[string]*plugin.Plugin{}
	if s.Config != nil && s.Config.Plugins != nil {
		for _, p := range s.Config.Plugins.Sorted() {
			oldPlugins[p.Key] = p
		}
	}
	for _, p := range newConfig.Plugins.Sorted() {
		if old, existed := oldPlugins[p.Key]; existed && old.Spec.Metadata.SameIdentity(p.Spec.Metadata) {
			if v, ok := s.fields[p.Key]; ok {
				next.fields[p.Key] = v
				continue
			}
		}
		next.fields[p.Key] = p.InitState(pcfg, next)
	}
	return next
}

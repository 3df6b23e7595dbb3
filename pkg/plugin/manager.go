package plugin

import "fmt"

// Manager is the immutable, post-build registry of plugins in dependency
// order. Once built it is read-only and safe for concurrent use without
// locking (spec.md §4.5, §5 concurrency model).
type Manager struct {
	plugins map[string]*Plugin
	sorted  []*Plugin
}

// Empty returns a Manager with no plugins, useful for tests and as the
// default Configuration.Plugins value.
func Empty() *Manager {
	return &Manager{plugins: map[string]*Plugin{}}
}

// Sorted returns plugins in dependency order: a plugin always appears after
// every plugin it depends on (spec.md §8 invariant 5).
func (m *Manager) Sorted() []*Plugin { return m.sorted }

// Get looks up a registered plugin by name.
func (m *Manager) Get(name string) (*Plugin, bool) {
	p, ok := m.plugins[name]
	return p, ok
}

// Has reports whether name is registered.
func (m *Manager) Has(name string) bool {
	_, ok := m.plugins[name]
	return ok
}

// Count returns the number of registered plugins.
func (m *Manager) Count() int { return len(m.plugins) }

// Builder registers plugins and their dependency edges during
// configuration, then produces an immutable Manager (spec.md §4.5).
type Builder struct {
	plugins map[string]*Plugin
	graph   *dependencyGraph
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		plugins: map[string]*Plugin{},
		graph:   newDependencyGraph(),
	}
}

// Register adds a plugin. It fails if another plugin with the same name is
// already registered.
func (b *Builder) Register(p *Plugin) error {
	name := p.Spec.Metadata.Name
	if name == "" {
		return newBuildErr(KindDuplicateName, name, "plugin metadata.name is required")
	}
	if _, exists := b.plugins[name]; exists {
		return newBuildErr(KindDuplicateName, name, "already registered")
	}
	b.plugins[name] = p
	b.graph.addNode(name)
	for _, dep := range p.Spec.Metadata.Dependencies {
		b.graph.addEdge(name, dep)
	}
	return nil
}

// Build validates the dependency graph (cycles, missing dependencies,
// conflicts) and returns an immutable Manager with plugins in topological
// order.
func (b *Builder) Build() (*Manager, error) {
	if cyc := b.graph.cycle(); cyc != nil {
		return nil, newBuildErr(KindCircularDependency, cyc[0], fmt.Sprintf("circular dependency: %v", cyc))
	}
	if missing := b.graph.missingDependencies(); len(missing) > 0 {
		return nil, newBuildErr(KindMissingDependency, missing[0], fmt.Sprintf("missing dependencies: %v", missing))
	}

	names := make([]string, 0, len(b.plugins))
	for name := range b.plugins {
		names = append(names, name)
	}
	for _, name := range names {
		p := b.plugins[name]
		for _, conflict := range p.Spec.Metadata.Conflicts {
			if _, exists := b.plugins[conflict]; exists {
				return nil, newBuildErr(KindConflict, name, fmt.Sprintf("conflicts with %q", conflict))
			}
		}
	}

	order := b.graph.topologicalOrder()
	sorted := make([]*Plugin, 0, len(order))
	for _, name := range order {
		sorted = append(sorted, b.plugins[name])
	}

	plugins := make(map[string]*Plugin, len(b.plugins))
	for k, v := range b.plugins {
		plugins[k] = v
	}
	return &Manager{plugins: plugins, sorted: sorted}, nil
}

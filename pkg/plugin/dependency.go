package plugin

import "sort"

// dependencyGraph tracks plugin names and their declared dependency edges,
// grounded on the teacher corpus's DependencyManager (register → validate →
// topologically order), reimplemented over plain maps since no DAG/graph
// library is present anywhere in the pack.
type dependencyGraph struct {
	nodes map[string]struct{}
	edges map[string][]string // name -> names it depends on
}

func newDependencyGraph() *dependencyGraph {
	return &dependencyGraph{
		nodes: map[string]struct{}{},
		edges: map[string][]string{},
	}
}

func (g *dependencyGraph) addNode(name string) {
	g.nodes[name] = struct{}{}
}

func (g *dependencyGraph) addEdge(name, dep string) {
	g.edges[name] = append(g.edges[name], dep)
}

// missingDependencies returns, in deterministic order, the name of every
// dep that some registered node depends on but that was never registered
// as a node itself.
func (g *dependencyGraph) missingDependencies() []string {
	var missing []string
	names := g.sortedNames()
	for _, name := range names {
		for _, dep := range g.edges[name] {
			if _, ok := g.nodes[dep]; !ok {
				missing = append(missing, dep)
			}
		}
	}
	return missing
}

// cycle returns the first circular dependency chain found via DFS, or nil
// if the graph is acyclic.
func (g *dependencyGraph) cycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var path []string
	var found []string

	var visit func(name string) bool
	visit = func(name string) bool {
		color[name] = gray
		path = append(path, name)
		for _, dep := range g.edges[name] {
			switch color[dep] {
			case gray:
				// close the cycle starting at dep's first occurrence
				start := 0
				for i, n := range path {
					if n == dep {
						start = i
						break
					}
				}
				found = append(append([]string{}, path[start:]...), dep)
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		color[name] = black
		return false
	}

	for _, name := range g.sortedNames() {
		if color[name] == white {
			if visit(name) {
				return found
			}
		}
	}
	return nil
}

// topologicalOrder runs Kahn's algorithm, breaking ties lexicographically
// by name so the resulting order is deterministic across runs (spec.md §8
// invariant 5).
func (g *dependencyGraph) topologicalOrder() []string {
	indegree := map[string]int{}
	dependents := map[string][]string{} // dep -> names that depend on it
	for _, name := range g.sortedNames() {
		indegree[name] = 0
	}
	for _, name := range g.sortedNames() {
		for _, dep := range g.edges[name] {
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var ready []string
	for _, name := range g.sortedNames() {
		if indegree[name] == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	var order []string
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		var newlyReady []string
		for _, dependent := range dependents[next] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				newlyReady = append(newlyReady, dependent)
			}
		}
		sort.Strings(newlyReady)
		ready = append(ready, newlyReady...)
		sort.Strings(ready)
	}
	return order
}

func (g *dependencyGraph) sortedNames() []string {
	names := make([]string, 0, len(g.nodes))
	for n := range g.nodes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

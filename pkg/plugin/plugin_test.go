package plugin_test

import (
	"testing"

	"github.com/mindburn-labs/doccore/pkg/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func named(name string, deps ...string) *plugin.Plugin {
	return plugin.New(plugin.Spec{Metadata: plugin.Metadata{Name: name, Dependencies: deps}})
}

// TestBuilder_TopologicalOrder matches spec.md §8 seed scenario 5: plugins
// a, b, c where c depends on both a and b, and a/b have no edge between
// them, must sort as [a, b, c] - dependencies first, ties broken
// lexicographically.
func TestBuilder_TopologicalOrder(t *testing.T) {
	b := plugin.NewBuilder()
	require.NoError(t, b.Register(named("c", "a", "b")))
	require.NoError(t, b.Register(named("b")))
	require.NoError(t, b.Register(named("a")))

	mgr, err := b.Build()
	require.NoError(t, err)

	var order []string
	for _, p := range mgr.Sorted() {
		order = append(order, p.Key)
	}
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestBuilder_CycleDetection(t *testing.T) {
	b := plugin.NewBuilder()
	require.NoError(t, b.Register(named("a", "b")))
	require.NoError(t, b.Register(named("b", "a")))

	_, err := b.Build()
	require.Error(t, err)
	var berr *plugin.BuildError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, plugin.KindCircularDependency, berr.Kind)
}

func TestBuilder_MissingDependency(t *testing.T) {
	b := plugin.NewBuilder()
	require.NoError(t, b.Register(named("a", "ghost")))

	_, err := b.Build()
	require.Error(t, err)
	var berr *plugin.BuildError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, plugin.KindMissingDependency, berr.Kind)
}

func TestBuilder_ConflictDetection(t *testing.T) {
	b := plugin.NewBuilder()
	require.NoError(t, b.Register(plugin.New(plugin.Spec{
		Metadata: plugin.Metadata{Name: "a", Conflicts: []string{"b"}},
	})))
	require.NoError(t, b.Register(named("b")))

	_, err := b.Build()
	require.Error(t, err)
	var berr *plugin.BuildError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, plugin.KindConflict, berr.Kind)
}

func TestBuilder_DuplicateNameRejected(t *testing.T) {
	b := plugin.NewBuilder()
	require.NoError(t, b.Register(named("a")))
	err := b.Register(named("a"))
	require.Error(t, err)
	var berr *plugin.BuildError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, plugin.KindDuplicateName, berr.Kind)
}

func TestMetadata_SameIdentity(t *testing.T) {
	a := plugin.Metadata{Name: "x", Version: "1.2.0"}
	b := plugin.Metadata{Name: "x", Version: "1.2.0+build.9"}
	c := plugin.Metadata{Name: "x", Version: "1.3.0"}
	d := plugin.Metadata{Name: "y", Version: "1.2.0"}

	assert.True(t, a.SameIdentity(b), "build metadata must not affect identity")
	assert.False(t, a.SameIdentity(c), "different version is a different identity")
	assert.False(t, a.SameIdentity(d), "different name is a different identity")
}

func TestManager_EmptyHasNoPlugins(t *testing.T) {
	mgr := plugin.Empty()
	assert.Equal(t, 0, mgr.Count())
	assert.False(t, mgr.Has("anything"))
	_, ok := mgr.Get("anything")
	assert.False(t, ok)
}

func TestPlugin_DefaultsWhenSpecEmpty(t *testing.T) {
	p := named("noop")
	assert.True(t, p.FilterTransaction(nil, nil), "no hook means allow")
	_, ok := p.AppendTransaction(nil, nil, nil)
	assert.False(t, ok, "no hook means nothing to append")
	assert.Nil(t, p.InitState(nil, nil))
}

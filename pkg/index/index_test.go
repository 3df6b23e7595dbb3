package index_test

import (
	"testing"

	"github.com/mindburn-labs/doccore/pkg/index"
	"github.com/mindburn-labs/doccore/pkg/model"
	"github.com/mindburn-labs/doccore/pkg/schema"
	"github.com/mindburn-labs/doccore/pkg/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	sch, err := schema.Compile(schema.SchemaSpec{
		Nodes: map[string]schema.NodeSpec{
			"doc":       {Content: "paragraph*"},
			"paragraph": {Content: "text*"},
			"text":      {},
		},
	})
	require.NoError(t, err)
	return sch
}

func TestRegistry_FallbackAddNodeStep(t *testing.T) {
	sch := testSchema(t)
	root := &model.Node{ID: model.NewNodeId(), Type: "doc"}
	before := model.NewPool(root)
	tx := transform.New(before, sch, 1)
	para := &model.Node{ID: model.NewNodeId(), Type: "paragraph"}
	step := &transform.AddNodeStep{Parent: root.ID, Nodes: []transform.NodeTree{{Node: para}}}
	_, err := tx.Step(step)
	require.NoError(t, err)
	after := tx.Doc()

	reg := index.NewRegistry()
	muts := reg.Translate(before, after, step)
	require.Len(t, muts, 1)
	assert.Equal(t, index.Add, muts[0].Kind)
	assert.Equal(t, para.ID, muts[0].Doc.ID)
}

func TestRegistry_FallbackRemoveNodeStep(t *testing.T) {
	sch := testSchema(t)
	root := &model.Node{ID: model.NewNodeId(), Type: "doc"}
	pool := model.NewPool(root)
	para := &model.Node{ID: model.NewNodeId(), Type: "paragraph"}
	pool, err := pool.AddNode(root.ID, []*model.Node{para})
	require.NoError(t, err)

	tx := transform.New(pool, sch, 1)
	step := &transform.RemoveNodeStep{Parent: root.ID, NodeIDs: []model.NodeId{para.ID}}
	_, err = tx.Step(step)
	require.NoError(t, err)
	after := tx.Doc()

	reg := index.NewRegistry()
	muts := reg.Translate(pool, after, step)
	require.Len(t, muts, 1)
	assert.Equal(t, index.DeleteManyById, muts[0].Kind)
	assert.Equal(t, []model.NodeId{para.ID}, muts[0].IDs)
}

func TestRegistry_FallbackAttrStep(t *testing.T) {
	sch := testSchema(t)
	root := &model.Node{ID: model.NewNodeId(), Type: "doc"}
	pool := model.NewPool(root)
	para := &model.Node{ID: model.NewNodeId(), Type: "paragraph"}
	pool, err := pool.AddNode(root.ID, []*model.Node{para})
	require.NoError(t, err)

	tx := transform.New(pool, sch, 1)
	step := &transform.AttrStep{ID: para.ID, Values: model.Attrs{}}
	_, err = tx.Step(step)
	require.NoError(t, err)
	after := tx.Doc()

	reg := index.NewRegistry()
	muts := reg.Translate(pool, after, step)
	require.Len(t, muts, 1)
	assert.Equal(t, index.Upsert, muts[0].Kind)
}

func TestRegistry_UnknownStepTypeYieldsNothing(t *testing.T) {
	reg := index.NewRegistry()
	muts := reg.Translate(nil, nil, &transform.BatchStep{})
	assert.Empty(t, muts)
}

func TestRegistry_CustomTranslatorOverridesFallback(t *testing.T) {
	sch := testSchema(t)
	root := &model.Node{ID: model.NewNodeId(), Type: "doc"}
	pool := model.NewPool(root)
	para := &model.Node{ID: model.NewNodeId(), Type: "paragraph"}
	tx := transform.New(pool, sch, 1)
	step := &transform.AddNodeStep{Parent: root.ID, Nodes: []transform.NodeTree{{Node: para}}}
	_, err := tx.Step(step)
	require.NoError(t, err)

	reg := index.NewRegistry()
	called := false
	reg.Register(step.Name(), func(before, after *model.NodePool, s transform.Step) []index.IndexMutation {
		called = true
		return nil
	})
	reg.Translate(pool, tx.Doc(), step)
	assert.True(t, called)
}

func TestRegistry_TranslateTransactionAccumulatesAcrossSteps(t *testing.T) {
	sch := testSchema(t)
	root := &model.Node{ID: model.NewNodeId(), Type: "doc"}
	before := model.NewPool(root)
	tx := transform.New(before, sch, 1)
	para1 := &model.Node{ID: model.NewNodeId(), Type: "paragraph"}
	para2 := &model.Node{ID: model.NewNodeId(), Type: "paragraph"}
	_, err := tx.Step(&transform.AddNodeStep{Parent: root.ID, Nodes: []transform.NodeTree{{Node: para1}}})
	require.NoError(t, err)
	_, err = tx.Step(&transform.AddNodeStep{Parent: root.ID, Nodes: []transform.NodeTree{{Node: para2}}})
	require.NoError(t, err)

	reg := index.NewRegistry()
	muts := reg.TranslateTransaction(before, tx.Doc(), tx.Steps)
	require.Len(t, muts, 2)
	assert.Equal(t, index.Add, muts[0].Kind)
	assert.Equal(t, index.Add, muts[1].Kind)
}

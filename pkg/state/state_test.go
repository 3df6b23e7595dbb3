package state_test

import (
	"testing"

	"github.com/mindburn-labs/doccore/pkg/model"
	"github.com/mindburn-labs/doccore/pkg/plugin"
	"github.com/mindburn-labs/doccore/pkg/schema"
	"github.com/mindburn-labs/doccore/pkg/state"
	"github.com/mindburn-labs/doccore/pkg/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, mgr *plugin.Manager) *state.Configuration {
	t.Helper()
	sch, err := schema.Compile(schema.SchemaSpec{
		Nodes: map[string]schema.NodeSpec{
			"doc":       {Content: "paragraph*"},
			"paragraph": {},
		},
	})
	require.NoError(t, err)
	root := &model.Node{ID: model.NewNodeId(), Type: "doc"}
	if mgr == nil {
		mgr = plugin.Empty()
	}
	return &state.Configuration{
		Schema:      sch,
		Doc:         model.NewPool(root),
		Plugins:     mgr,
		Performance: state.DefaultPerformanceConfig(),
	}
}

// visitCounter is a minimal StateField counting how many transactions have
// been applied, used to assert plugin ordering/advancement.
type visitCounter struct{}

func (visitCounter) Init(cfg *plugin.Config, instance plugin.StateReader) any { return 0 }
func (visitCounter) Apply(tr *transform.Transaction, value any, oldState, newState plugin.StateReader) any {
	return value.(int) + 1
}

func TestState_Create_InitializesPluginFields(t *testing.T) {
	b := plugin.NewBuilder()
	require.NoError(t, b.Register(plugin.New(plugin.Spec{
		Metadata: plugin.Metadata{Name: "counter"},
		State:    visitCounter{},
	})))
	mgr, err := b.Build()
	require.NoError(t, err)

	s := state.Create(testConfig(t, mgr))
	v, ok := s.Field("counter")
	require.True(t, ok)
	assert.Equal(t, 0, v)
}

// TestState_Apply_VersionMonotonicity matches spec.md §8 invariant 4.
func TestState_Apply_VersionMonotonicity(t *testing.T) {
	s := state.Create(testConfig(t, nil))
	tx := transform.New(s.Doc(), s.SchemaOf(), 1)
	para := &model.Node{ID: model.NewNodeId(), Type: "paragraph"}
	_, err := tx.Step(&transform.AddNodeStep{Parent: s.Doc().RootID, Nodes: []transform.NodeTree{{Node: para}}})
	require.NoError(t, err)

	result, err := s.Apply(tx)
	require.NoError(t, err)
	assert.Equal(t, s.Version+1, result.State.Version)
}

func TestState_Apply_AdvancesPluginField(t *testing.T) {
	b := plugin.NewBuilder()
	require.NoError(t, b.Register(plugin.New(plugin.Spec{
		Metadata: plugin.Metadata{Name: "counter"},
		State:    visitCounter{},
	})))
	mgr, err := b.Build()
	require.NoError(t, err)

	s := state.Create(testConfig(t, mgr))
	tx := transform.New(s.Doc(), s.SchemaOf(), 1)
	result, err := s.Apply(tx)
	require.NoError(t, err)

	v, ok := result.State.Field("counter")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

// vetoHook rejects every transaction via FilterTransaction.
type vetoHook struct{}

func (vetoHook) FilterTransaction(tr *transform.Transaction, s plugin.StateReader) bool { return false }
func (vetoHook) AppendTransaction(tr *transform.Transaction, oldState, newState plugin.StateReader) (*transform.Transaction, bool) {
	return nil, false
}

func TestState_Apply_FilterTransactionRejection(t *testing.T) {
	b := plugin.NewBuilder()
	require.NoError(t, b.Register(plugin.New(plugin.Spec{
		Metadata: plugin.Metadata{Name: "gate"},
		Hook:     vetoHook{},
	})))
	mgr, err := b.Build()
	require.NoError(t, err)

	s := state.Create(testConfig(t, mgr))
	tx := transform.New(s.Doc(), s.SchemaOf(), 1)
	_, err = s.Apply(tx)
	require.Error(t, err)
}

// loopingHook always appends a follow-up transaction, used to exercise the
// append-fixpoint depth bound (spec.md §5 "Append-transaction fixpoint
// bound").
type loopingHook struct{ schema *schema.Schema }

func (loopingHook) FilterTransaction(tr *transform.Transaction, s plugin.StateReader) bool { return true }
func (h loopingHook) AppendTransaction(tr *transform.Transaction, oldState, newState plugin.StateReader) (*transform.Transaction, bool) {
	return transform.New(newState.Doc(), h.schema, 0), true
}

func TestState_Apply_AppendFixpointExceeded(t *testing.T) {
	cfg := testConfig(t, nil)
	cfg.Performance.MaxAppendDepth = 2
	b := plugin.NewBuilder()
	require.NoError(t, b.Register(plugin.New(plugin.Spec{
		Metadata: plugin.Metadata{Name: "looper"},
		Hook:     loopingHook{schema: cfg.Schema},
	})))
	mgr, err := b.Build()
	require.NoError(t, err)
	cfg.Plugins = mgr

	s := state.Create(cfg)
	tx := transform.New(s.Doc(), s.SchemaOf(), 1)
	_, err = s.Apply(tx)
	require.Error(t, err)
}

// TestHistory_UndoRedoRoundTrip matches spec.md §8 invariant 7.
func TestHistory_UndoRedoRoundTrip(t *testing.T) {
	initial := state.Create(testConfig(t, nil))
	h := state.NewHistory(&state.Entry{State: initial}, 0)

	tx := transform.New(initial.Doc(), initial.SchemaOf(), 1)
	para := &model.Node{ID: model.NewNodeId(), Type: "paragraph"}
	_, err := tx.Step(&transform.AddNodeStep{Parent: initial.Doc().RootID, Nodes: []transform.NodeTree{{Node: para}}})
	require.NoError(t, err)
	result, err := initial.Apply(tx)
	require.NoError(t, err)
	h.Push(&state.Entry{State: result.State, Transactions: result.Transactions})

	afterCommit := h.Present()
	entry, _, ok := h.Undo()
	require.True(t, ok)
	assert.Same(t, initial, entry.State)

	entry, _, ok = h.Redo()
	require.True(t, ok)
	assert.Same(t, afterCommit.State, entry.State)
}

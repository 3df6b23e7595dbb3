package runtime_test

import (
	"context"
	"testing"

	"github.com/mindburn-labs/doccore/pkg/model"
	"github.com/mindburn-labs/doccore/pkg/plugin"
	"github.com/mindburn-labs/doccore/pkg/runtime"
	"github.com/mindburn-labs/doccore/pkg/schema"
	"github.com/mindburn-labs/doccore/pkg/state"
	"github.com/mindburn-labs/doccore/pkg/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *state.Configuration {
	t.Helper()
	sch, err := schema.Compile(schema.SchemaSpec{
		Nodes: map[string]schema.NodeSpec{
			"doc":       {Content: "paragraph*"},
			"paragraph": {},
		},
	})
	require.NoError(t, err)
	root := &model.Node{ID: model.NewNodeId(), Type: "doc"}
	return &state.Configuration{
		Schema:      sch,
		Doc:         model.NewPool(root),
		Plugins:     plugin.Empty(),
		Performance: state.DefaultPerformanceConfig(),
	}
}

// orderRecordingMiddleware appends its name to a shared slice from both
// hooks, used to assert ordering (spec.md §8 invariant 6).
type orderRecordingMiddleware struct {
	name  string
	order *[]string
}

func (m *orderRecordingMiddleware) Name() string { return m.name }
func (m *orderRecordingMiddleware) BeforeDispatch(ctx context.Context, tx *transform.Transaction) error {
	*m.order = append(*m.order, "before:"+m.name)
	return nil
}
func (m *orderRecordingMiddleware) AfterDispatch(ctx context.Context, st *state.State, txs []*transform.Transaction) (*transform.Transaction, error) {
	*m.order = append(*m.order, "after:"+m.name)
	return nil, nil
}

func TestRuntime_MiddlewareOrdering(t *testing.T) {
	var order []string
	mw := []runtime.Middleware{
		&orderRecordingMiddleware{name: "first", order: &order},
		&orderRecordingMiddleware{name: "second", order: &order},
	}
	opts := runtime.DefaultOptions()
	rt := runtime.Create(testConfig(t), mw, opts, nil)
	defer rt.Destroy(context.Background())

	tx := transform.New(rt.Doc(), rt.GetSchema(), 1)
	para := &model.Node{ID: model.NewNodeId(), Type: "paragraph"}
	_, err := tx.Step(&transform.AddNodeStep{Parent: rt.Doc().RootID, Nodes: []transform.NodeTree{{Node: para}}})
	require.NoError(t, err)

	_, err = rt.Dispatch(context.Background(), tx)
	require.NoError(t, err)

	assert.Equal(t, []string{"before:first", "before:second", "after:first", "after:second"}, order)
}

func TestRuntime_DispatchAdvancesVersion(t *testing.T) {
	rt := runtime.Create(testConfig(t), nil, runtime.DefaultOptions(), nil)
	defer rt.Destroy(context.Background())

	initialVersion := rt.GetState().Version
	tx := transform.New(rt.Doc(), rt.GetSchema(), 1)
	para := &model.Node{ID: model.NewNodeId(), Type: "paragraph"}
	_, err := tx.Step(&transform.AddNodeStep{Parent: rt.Doc().RootID, Nodes: []transform.NodeTree{{Node: para}}})
	require.NoError(t, err)

	st, err := rt.Dispatch(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, initialVersion+1, st.Version)
}

func TestRuntime_UndoRedo(t *testing.T) {
	rt := runtime.Create(testConfig(t), nil, runtime.DefaultOptions(), nil)
	defer rt.Destroy(context.Background())

	tx := transform.New(rt.Doc(), rt.GetSchema(), 1)
	para := &model.Node{ID: model.NewNodeId(), Type: "paragraph"}
	_, err := tx.Step(&transform.AddNodeStep{Parent: rt.Doc().RootID, Nodes: []transform.NodeTree{{Node: para}}})
	require.NoError(t, err)
	postDispatch, err := rt.Dispatch(context.Background(), tx)
	require.NoError(t, err)

	undone, ok := rt.Undo(context.Background())
	require.True(t, ok)
	kids, err := undone.Doc().Children(undone.Doc().RootID)
	require.NoError(t, err)
	assert.Empty(t, kids)

	redone, ok := rt.Redo(context.Background())
	require.True(t, ok)
	assert.Equal(t, postDispatch.Version, redone.Version)
}

func TestRuntime_UndoWithNoHistoryFails(t *testing.T) {
	rt := runtime.Create(testConfig(t), nil, runtime.DefaultOptions(), nil)
	defer rt.Destroy(context.Background())
	_, ok := rt.Undo(context.Background())
	assert.False(t, ok)
}

func TestEventBus_PublishSubscribe(t *testing.T) {
	bus := runtime.NewEventBus(runtime.EventConfig{MaxQueueSize: 4, SlowSubscriberDrops: true}, nil)
	ch, id := bus.Subscribe()
	defer bus.Unsubscribe(id)

	bus.Publish(context.Background(), runtime.Event{Kind: runtime.EventCreate})
	ev := <-ch
	assert.Equal(t, runtime.EventCreate, ev.Kind)
}

func TestEventBus_DropsWhenSubscriberFull(t *testing.T) {
	bus := runtime.NewEventBus(runtime.EventConfig{MaxQueueSize: 1, SlowSubscriberDrops: true}, nil)
	ch, id := bus.Subscribe()
	defer bus.Unsubscribe(id)

	bus.Publish(context.Background(), runtime.Event{Kind: runtime.EventCreate})
	bus.Publish(context.Background(), runtime.Event{Kind: runtime.EventTrApply})

	first := <-ch
	assert.Equal(t, runtime.EventTrApply, first.Kind, "the oldest event should have been dropped to make room for the newest")
	select {
	case <-ch:
		t.Fatal("only the newest event should remain queued")
	default:
	}
}

package crdt_test

import (
	"testing"

	"github.com/mindburn-labs/doccore/pkg/crdt"
	"github.com/mindburn-labs/doccore/pkg/transform"
	"github.com/stretchr/testify/assert"
)

func TestRegistry_UnregisteredStepIsNoOp(t *testing.T) {
	reg := crdt.NewRegistry(nil)
	called := false
	reg.Register("known", 0, func(step transform.Step, txn crdt.Txn) { called = true })

	reg.Apply(&transform.AttrStep{}, "txn")
	assert.False(t, called, "an unregistered step type must not invoke any converter")
}

func TestRegistry_PriorityOrder(t *testing.T) {
	reg := crdt.NewRegistry(nil)
	var order []string
	reg.Register("attr_step", 1, func(step transform.Step, txn crdt.Txn) { order = append(order, "low") })
	reg.Register("attr_step", 10, func(step transform.Step, txn crdt.Txn) { order = append(order, "high") })

	reg.Apply(&transform.AttrStep{}, "txn")
	assert.Equal(t, []string{"high", "low"}, order)
}

func TestRegistry_MultipleConvertersAllRun(t *testing.T) {
	reg := crdt.NewRegistry(nil)
	count := 0
	reg.Register("attr_step", 0, func(step transform.Step, txn crdt.Txn) { count++ })
	reg.Register("attr_step", 0, func(step transform.Step, txn crdt.Txn) { count++ })

	reg.Apply(&transform.AttrStep{}, "txn")
	assert.Equal(t, 2, count)
}

func TestRegistry_ApplyTransactionRunsEachStep(t *testing.T) {
	reg := crdt.NewRegistry(nil)
	var seen []string
	reg.Register("attr_step", 0, func(step transform.Step, txn crdt.Txn) { seen = append(seen, "attr") })
	reg.Register("add_node_step", 0, func(step transform.Step, txn crdt.Txn) { seen = append(seen, "add") })

	steps := []transform.Step{&transform.AttrStep{}, &transform.AddNodeStep{}}
	reg.ApplyTransaction(steps, "txn")
	assert.Equal(t, []string{"attr", "add"}, seen)
}

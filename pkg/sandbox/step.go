package sandbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mindburn-labs/doccore/pkg/model"
	"github.com/mindburn-labs/doccore/pkg/schema"
	"github.com/mindburn-labs/doccore/pkg/transform"
)

// wasmStepInput is what a WasmStep feeds to the module on stdin.
type wasmStepInput struct {
	NodeType string      `json:"node_type"`
	Attrs    model.Attrs `json:"attrs"`
	Payload  any         `json:"payload"`
}

// wasmStepOutput is what the module is expected to write to stdout: the
// full replacement attribute set for the node.
type wasmStepOutput struct {
	Attrs model.Attrs `json:"attrs"`
}

// WasmStep runs a registered WASM module to compute a node's next
// attributes from its current attributes plus an arbitrary JSON payload. It
// implements transform.Step, letting a registered plugin hook or extension
// op-fn run sandboxed guest code as an ordinary step in a Transaction.
type WasmStep struct {
	ID      model.NodeId
	Host    *Host
	Module  string
	Payload any
}

func (s *WasmStep) Name() string { return "wasm_step:" + s.Module }

func (s *WasmStep) Apply(draft *transform.Draft, sch *schema.Schema) (transform.StepResult, error) {
	node, found := draft.Pool().GetNode(s.ID)
	if !found {
		return softFail(fmt.Sprintf("node %s not found", s.ID))
	}
	nt, declared := sch.Nodes[node.Type]
	if !declared {
		return softFail(fmt.Sprintf("unknown node type %q", node.Type))
	}

	in, err := json.Marshal(wasmStepInput{NodeType: node.Type, Attrs: node.Attrs, Payload: s.Payload})
	if err != nil {
		return transform.StepResult{}, fmt.Errorf("wasm_step: marshal input: %w", err)
	}
	out, err := s.Host.Run(context.Background(), s.Module, in)
	if err != nil {
		return softFail(fmt.Sprintf("wasm_step %q failed: %v", s.Module, err))
	}
	var decoded wasmStepOutput
	if err := json.Unmarshal(out, &decoded); err != nil {
		return softFail(fmt.Sprintf("wasm_step %q produced invalid output: %v", s.Module, err))
	}

	filtered := make(model.Attrs, len(decoded.Attrs))
	for k, v := range decoded.Attrs {
		if _, ok := nt.Attrs[k]; ok {
			filtered[k] = v
		}
	}

	next, err := draft.Pool().UpdateAttr(s.ID, filtered)
	if err != nil {
		return transform.StepResult{}, err
	}
	draft.Replace(next)
	return transform.StepResult{}, nil
}

// Invert captures the pre-apply attribute set, so a WasmStep undoes the same
// way an AttrStep does: restore what was there before, rather than
// re-running the module (guest code need not be invertible).
func (s *WasmStep) Invert(preApply *model.NodePool) (transform.Step, bool) {
	node, found := preApply.GetNode(s.ID)
	if !found {
		return nil, false
	}
	old := make(model.Attrs, len(node.Attrs))
	for k, v := range node.Attrs {
		old[k] = v
	}
	return &transform.AttrStep{ID: s.ID, Values: old}, true
}

func softFail(msg string) (transform.StepResult, error) {
	return transform.StepResult{Failed: &msg}, nil
}

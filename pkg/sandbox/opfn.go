package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
)

// WasmOpFn is a sandboxed operation: given arbitrary JSON args it returns
// an arbitrary JSON result computed by a module registered with Host,
// guest code instead of a Go closure. No other package in this module
// constructs one.
type WasmOpFn struct {
	Host   *Host
	Module string
}

func (f WasmOpFn) Call(ctx context.Context, args any) (json.RawMessage, error) {
	in, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("wasm_op_fn: marshal args: %w", err)
	}
	out, err := f.Host.Run(ctx, f.Module, in)
	if err != nil {
		return nil, fmt.Errorf("wasm_op_fn %q: %w", f.Module, err)
	}
	return json.RawMessage(out), nil
}

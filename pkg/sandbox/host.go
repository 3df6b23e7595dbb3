// Package sandbox hosts untrusted WebAssembly modules via wazero, used to
// run a plugin's compiled extension code or a WasmStep's mutation logic
// deny-by-default: no filesystem, no network, no clock, no randomness
// (DOMAIN addition grounded on the teacher's wasi sandbox).
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Limits bounds a Host's resource usage.
type Limits struct {
	MemoryLimitBytes int64
	CPUTimeLimit     time.Duration
}

func DefaultLimits() Limits {
	return Limits{MemoryLimitBytes: 16 << 20, CPUTimeLimit: 50 * time.Millisecond}
}

// Host runs compiled WASM modules under shared resource limits. Modules are
// compiled once and cached by name; each invocation gets a fresh module
// instance so no state leaks across calls.
type Host struct {
	runtime wazero.Runtime
	limits  Limits

	mu       sync.Mutex
	compiled map[string]wazero.CompiledModule
}

// NewHost creates a wazero runtime with the given resource limits.
func NewHost(ctx context.Context, limits Limits) (*Host, error) {
	// Close running guest code when Run's context is done, so CPUTimeLimit
	// interrupts a module that is still executing.
	cfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if limits.MemoryLimitBytes > 0 {
		pages := uint32(limits.MemoryLimitBytes / (64 * 1024))
		if pages == 0 {
			pages = 1
		}
		cfg = cfg.WithMemoryLimitPages(pages)
	}
	r := wazero.NewRuntimeWithConfig(ctx, cfg)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("sandbox: instantiate WASI: %w", err)
	}
	return &Host{runtime: r, limits: limits, compiled: map[string]wazero.CompiledModule{}}, nil
}

// Register compiles and caches a module under name, so repeated Run calls
// skip recompilation.
func (h *Host) Register(ctx context.Context, name string, wasmBytes []byte) error {
	compiled, err := h.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return fmt.Errorf("sandbox: compile module %q: %w", name, err)
	}
	h.mu.Lock()
	h.compiled[name] = compiled
	h.mu.Unlock()
	return nil
}

// Run instantiates the named module fresh, feeds input on stdin, and
// returns whatever it wrote to stdout. The call is bounded by
// Limits.CPUTimeLimit regardless of the caller's context deadline.
func (h *Host) Run(ctx context.Context, name string, input []byte) ([]byte, error) {
	h.mu.Lock()
	compiled, ok := h.compiled[name]
	h.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("sandbox: module %q not registered", name)
	}

	if h.limits.CPUTimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.limits.CPUTimeLimit)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	modCfg := wazero.NewModuleConfig().
		WithName(name).
		WithStartFunctions("_start").
		WithStdin(bytes.NewReader(input)).
		WithStdout(&stdout).
		WithStderr(&stderr)
	// Deny-by-default: no WithFSConfig, no WithSysNanotime, no WithRandSource.

	mod, err := h.runtime.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("sandbox: module %q timed out after %v", name, h.limits.CPUTimeLimit)
		}
		return nil, fmt.Errorf("sandbox: instantiate module %q: %w", name, err)
	}
	defer func() { _ = mod.Close(ctx) }()

	if stderr.Len() > 0 {
		return stdout.Bytes(), fmt.Errorf("sandbox: module %q wrote to stderr: %s", name, stderr.String())
	}
	return stdout.Bytes(), nil
}

// Close releases the wazero runtime and every compiled module.
func (h *Host) Close(ctx context.Context) error {
	return h.runtime.Close(ctx)
}

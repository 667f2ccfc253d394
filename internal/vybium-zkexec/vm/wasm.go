package vm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
)

// HostModuleName is the import module wasm guests link against.
//
//	input_len() -> i32              total input blob length
//	read_input(ptr, len i32) -> i32 copy the next unread input bytes, returns count
//	commit(ptr, len i32)            append raw bytes to the journal
//	cycle_count() -> i64            session cycle counter
//	abort(code i32)                 terminate abnormally
const HostModuleName = "vybium_zkexec"

// WasmBackend runs wasm program images in a wazero runtime. Guests get no
// WASI, filesystem, clock or randomness: the host module is their only import.
type WasmBackend struct {
	runtime wazero.Runtime

	mu       sync.Mutex
	compiled map[ImageID]wazero.CompiledModule
}

type callKey struct{}

// wasmCall is the per-instantiation state reachable from host functions.
type wasmCall struct {
	env     *env
	aborted bool
	code    uint32
}

func callFrom(ctx context.Context) *wasmCall {
	call, ok := ctx.Value(callKey{}).(*wasmCall)
	if !ok {
		panic("vybium_zkexec: host function called outside a session")
	}
	return call
}

// NewWasmBackend creates a runtime with the host module instantiated.
func NewWasmBackend(ctx context.Context, memoryLimitPages uint32) (*WasmBackend, error) {
	cfg := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(memoryLimitPages).
		WithCloseOnContextDone(true)
	r := wazero.NewRuntimeWithConfig(ctx, cfg)

	_, err := r.NewHostModuleBuilder(HostModuleName).
		NewFunctionBuilder().WithFunc(hostInputLen).Export("input_len").
		NewFunctionBuilder().WithFunc(hostReadInput).Export("read_input").
		NewFunctionBuilder().WithFunc(hostCommit).Export("commit").
		NewFunctionBuilder().WithFunc(hostCycleCount).Export("cycle_count").
		NewFunctionBuilder().WithFunc(hostAbort).Export("abort").
		Instantiate(ctx)
	if err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("wasm: instantiate host module: %w", err)
	}

	return &WasmBackend{
		runtime:  r,
		compiled: make(map[ImageID]wazero.CompiledModule),
	}, nil
}

// Compile validates and caches the module of p.
func (b *WasmBackend) Compile(ctx context.Context, p *Program) (wazero.CompiledModule, error) {
	id := p.ID()

	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.compiled[id]; ok {
		return c, nil
	}
	c, err := b.runtime.CompileModule(ctx, p.Code)
	if err != nil {
		return nil, fmt.Errorf("%w: compile %s: %w", ErrInvalidProgram, p, err)
	}
	b.compiled[id] = c
	return c, nil
}

// run instantiates the module, which runs its _start export to completion.
func (b *WasmBackend) run(ctx context.Context, p *Program, e *env) error {
	compiled, err := b.Compile(ctx, p)
	if err != nil {
		return err
	}

	call := &wasmCall{env: e}
	modCfg := wazero.NewModuleConfig().
		WithName("").
		WithStartFunctions("_start")

	mod, err := b.runtime.InstantiateModule(context.WithValue(ctx, callKey{}, call), compiled, modCfg)
	if mod != nil {
		defer func() { _ = mod.Close(ctx) }()
	}

	if call.aborted {
		return fmt.Errorf("guest aborted with code %d", call.code)
	}
	if err != nil {
		var exitErr *sys.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("guest exited with code %d", exitErr.ExitCode())
		}
		return fmt.Errorf("wasm trap: %w", err)
	}
	return nil
}

// Close releases the runtime and every compiled module.
func (b *WasmBackend) Close(ctx context.Context) error {
	return b.runtime.Close(ctx)
}

func hostInputLen(ctx context.Context) uint32 {
	return uint32(len(callFrom(ctx).env.input))
}

func hostReadInput(ctx context.Context, m api.Module, ptr, n uint32) uint32 {
	call := callFrom(ctx)
	view, ok := m.Memory().Read(ptr, n)
	if !ok {
		panic(fmt.Errorf("read_input: range [%d, %d) out of memory bounds", ptr, uint64(ptr)+uint64(n)))
	}
	read, err := call.env.readRaw(view)
	if err != nil {
		panic(err)
	}
	return uint32(read)
}

func hostCommit(ctx context.Context, m api.Module, ptr, n uint32) {
	call := callFrom(ctx)
	view, ok := m.Memory().Read(ptr, n)
	if !ok {
		panic(fmt.Errorf("commit: range [%d, %d) out of memory bounds", ptr, uint64(ptr)+uint64(n)))
	}
	if err := call.env.commitRaw(append([]byte(nil), view...)); err != nil {
		panic(err)
	}
}

func hostCycleCount(ctx context.Context) uint64 {
	return callFrom(ctx).env.CycleCount()
}

func hostAbort(ctx context.Context, code uint32) {
	call := callFrom(ctx)
	call.aborted = true
	call.code = code
	panic(sys.NewExitError(code))
}

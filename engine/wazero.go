package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-sandbox/errors"
	"github.com/wippyai/wasm-sandbox/trap"
)

// Module is a wasm module instantiated in the engine's wazero runtime.
// Traps in its exports surface as *trap.Trap like those of native code.
type Module struct {
	engine   *Engine
	compiled wazero.CompiledModule
	instance api.Module
}

// ExportInfo describes an exported function.
type ExportInfo struct {
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

// LoadWasm compiles and instantiates a wasm binary. The instance is
// anonymous, so the same binary may be loaded more than once.
func (e *Engine) LoadWasm(ctx context.Context, bin []byte) (*Module, error) {
	rt, err := e.wazeroRuntime(ctx)
	if err != nil {
		return nil, err
	}
	compiled, err := rt.CompileModule(ctx, bin)
	if err != nil {
		return nil, errors.Load("compile module", err)
	}
	instance, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		_ = compiled.Close(ctx)
		if t, ok := trap.FromError(err); ok {
			return nil, t
		}
		return nil, errors.Load("instantiate module", err)
	}
	e.log.Debug("wasm module loaded",
		zap.Int("size", len(bin)),
		zap.Int("exports", len(compiled.ExportedFunctions())))
	return &Module{engine: e, compiled: compiled, instance: instance}, nil
}

// Export returns the exported function name.
func (m *Module) Export(name string) (WazeroFunc, error) {
	fn := m.instance.ExportedFunction(name)
	if fn == nil {
		return WazeroFunc{}, errors.NotFound(errors.PhaseLoad, "export", name)
	}
	return WazeroFunc{name: name, fn: fn}, nil
}

// Exports lists the exported functions sorted by name.
func (m *Module) Exports() []ExportInfo {
	defs := m.compiled.ExportedFunctions()
	out := make([]ExportInfo, 0, len(defs))
	for name, def := range defs {
		out = append(out, ExportInfo{
			Name:    name,
			Params:  def.ParamTypes(),
			Results: def.ResultTypes(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Closed reports whether the instance was closed, either explicitly or
// because a call running in it was interrupted.
func (m *Module) Closed() bool {
	return m.instance.IsClosed()
}

// Close releases the instance and its compiled code.
func (m *Module) Close(ctx context.Context) error {
	err := m.instance.Close(ctx)
	if cerr := m.compiled.Close(ctx); err == nil {
		err = cerr
	}
	return err
}

// WazeroFunc is an export of a Module.
//
// Interrupting a call closes the module instance it runs in; later calls
// into that instance fail.
type WazeroFunc struct {
	fn   api.Function
	name string
}

func (f WazeroFunc) String() string {
	return "wasm:" + f.name
}

// StackSize returns the minimum length of the value stack passed to Call.
func (f WazeroFunc) StackSize() int {
	if f.fn == nil {
		return 0
	}
	def := f.fn.Definition()
	return max(len(def.ParamTypes()), len(def.ResultTypes()))
}

func (f WazeroFunc) entry() uintptr   { return 0 }
func (f WazeroFunc) landing() uintptr { return 0 }

func (f WazeroFunc) invoke(c *Caller, stack []uint64) error {
	if f.fn == nil {
		return errors.InvalidInput(errors.PhaseCall, "zero WazeroFunc")
	}
	if need := f.StackSize(); len(stack) < need {
		return errors.OutOfBounds(errors.PhaseCall, []string{f.name, "stack"}, need-1, len(stack))
	}

	ctx, cancel := context.WithCancelCause(c.ctx)
	defer cancel(nil)
	if c.handle != nil {
		c.handle.OnInterrupt(func() { cancel(errInterrupted) })
		defer c.handle.OnInterrupt(nil)
	}
	if c.rec.InterruptRequested() {
		cancel(errInterrupted)
	}

	err := f.fn.CallWithStack(ctx, stack)
	if err == nil {
		return nil
	}
	t, ok := trap.FromError(err)
	if !ok {
		return errors.Wrap(errors.PhaseCall, errors.KindSystem, err, fmt.Sprintf("call %s", f.name))
	}
	t.Backtrace = c.rec.Backtrace()
	return t
}

var errInterrupted = errors.New(errors.PhaseCall, errors.KindClosed).
	Detail("interrupted").
	Build()

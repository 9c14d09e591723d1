package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"go.uber.org/zap"

	wasmsandbox "github.com/wippyai/wasm-sandbox"
	"github.com/wippyai/wasm-sandbox/coderegion"
	"github.com/wippyai/wasm-sandbox/errors"
	"github.com/wippyai/wasm-sandbox/signals"
	"github.com/wippyai/wasm-sandbox/stack"
)

// Engine runs guest code and converts its faults into traps.
type Engine struct {
	cfg       Config
	log       *zap.Logger
	regions   *coderegion.Registry
	stacks    *stack.Pool
	runtime   wazero.Runtime
	runtimeMu sync.Mutex
	closed    atomic.Bool
}

// New validates cfg, installs the fault handlers (once per process) and
// creates an engine with its own code-region registry and stack pool.
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	if nativeSupported && !cfg.SkipSignalHandlers {
		if err := signals.Install(); err != nil {
			return nil, err
		}
	}

	regions := coderegion.NewRegistry()
	if err := signals.Attach(regions); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		log:     cfg.Logger,
		regions: regions,
		stacks:  stack.NewPool(cfg.StackCreator, cfg.StackSize, cfg.MaxStacks),
	}
	e.log.Debug("engine created",
		zap.Uintptr("stack_size", cfg.StackSize),
		zap.Int("max_stacks", cfg.MaxStacks),
		zap.Int64("default_fuel", cfg.DefaultFuel),
		zap.Bool("native", nativeSupported && signals.Installed()))
	return e, nil
}

// Close releases the engine's resources. Guest code published through the
// engine must no longer be running.
func (e *Engine) Close(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	signals.Detach(e.regions)

	var first error
	if err := e.stacks.Close(); err != nil {
		first = err
	}
	e.runtimeMu.Lock()
	rt := e.runtime
	e.runtime = nil
	e.runtimeMu.Unlock()
	if rt != nil {
		if err := rt.Close(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Publish registers a range of compiled guest code and its trap table.
// Code must be published before any call can reach it.
func (e *Engine) Publish(code wasmsandbox.Range, name string, sites []coderegion.TrapSite) (*coderegion.Region, error) {
	if e.closed.Load() {
		return nil, errors.Closed(errors.PhaseRegister, "engine")
	}
	return e.regions.Register(code, name, sites)
}

// Unpublish removes a code range. No thread may be executing it.
func (e *Engine) Unpublish(code wasmsandbox.Range) error {
	return e.regions.Unregister(code)
}

// Regions returns the engine's code-region registry.
func (e *Engine) Regions() *coderegion.Registry {
	return e.regions
}

// Stacks returns the engine's stack pool, usable as a stack.Creator for
// fibers.
func (e *Engine) Stacks() *stack.Pool {
	return e.stacks
}

// NewStack returns a stack of the configured size from the pool.
func (e *Engine) NewStack() (stack.Memory, error) {
	if e.closed.Load() {
		return nil, errors.Closed(errors.PhaseStack, "engine")
	}
	return e.stacks.Get()
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// wazeroRuntime lazily creates the runtime used by LoadWasm.
func (e *Engine) wazeroRuntime(ctx context.Context) (wazero.Runtime, error) {
	e.runtimeMu.Lock()
	defer e.runtimeMu.Unlock()
	if e.closed.Load() {
		return nil, errors.Closed(errors.PhaseLoad, "engine")
	}
	if e.runtime != nil {
		return e.runtime, nil
	}
	runtimeCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if e.cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(e.cfg.MemoryLimitPages)
	}
	if e.cfg.EnableThreads {
		runtimeCfg = runtimeCfg.WithCoreFeatures(api.CoreFeaturesV2 | experimental.CoreFeaturesThreads)
	}
	e.runtime = wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	return e.runtime, nil
}

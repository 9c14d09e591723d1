package engine

import (
	"go.uber.org/zap"

	"github.com/wippyai/wasm-sandbox/errors"
	"github.com/wippyai/wasm-sandbox/stack"
)

// maxMemoryPages is the wasm32 limit of 4GiB.
const maxMemoryPages = 65536

// Config holds configuration for engine creation
type Config struct {
	// StackCreator allocates native stacks for guest calls and fibers.
	// nil selects stack.MmapCreator with GuardSize.
	StackCreator stack.Creator

	// Logger receives engine events. nil uses the package logger.
	Logger *zap.Logger

	// StackSize is the usable size of each native stack.
	// 0 means stack.DefaultSize (1MiB).
	StackSize uintptr

	// GuardSize is the inaccessible region below each stack.
	// 0 means stack.DefaultGuardSize (64KiB).
	GuardSize uintptr

	// MaxStacks bounds the idle stacks kept for reuse. 0 means 16.
	MaxStacks int

	// DefaultFuel is the fuel given to outermost calls that do not set
	// their own. 0 means unlimited.
	DefaultFuel int64

	// MemoryLimitPages sets the maximum memory per wazero instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// EnableThreads enables the WebAssembly threads proposal for modules
	// loaded with LoadWasm. Misaligned atomics then trap as
	// trap.HeapMisaligned.
	EnableThreads bool

	// SkipSignalHandlers leaves the process signal handlers untouched.
	// Native calls fail until signals.Install has been called.
	SkipSignalHandlers bool
}

func (c Config) validate() error {
	switch {
	case c.StackSize > stack.MaxSize:
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("StackSize").Value(c.StackSize).
			Detail("exceeds maximum of %d bytes", stack.MaxSize).
			Build()
	case c.MaxStacks < 0:
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("MaxStacks").Value(c.MaxStacks).
			Detail("must not be negative").
			Build()
	case c.DefaultFuel < 0:
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("DefaultFuel").Value(c.DefaultFuel).
			Detail("must not be negative").
			Build()
	case c.MemoryLimitPages > maxMemoryPages:
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("MemoryLimitPages").Value(c.MemoryLimitPages).
			Detail("exceeds maximum of %d pages", maxMemoryPages).
			Build()
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.StackSize == 0 {
		c.StackSize = stack.DefaultSize
	}
	if c.GuardSize == 0 {
		c.GuardSize = stack.DefaultGuardSize
	}
	if c.MaxStacks == 0 {
		c.MaxStacks = 16
	}
	if c.StackCreator == nil {
		c.StackCreator = stack.MmapCreator{GuardSize: c.GuardSize}
	}
	if c.Logger == nil {
		c.Logger = Logger()
	}
	return c
}

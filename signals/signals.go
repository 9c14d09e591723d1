package signals

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/wippyai/wasm-sandbox/coderegion"
	"github.com/wippyai/wasm-sandbox/errors"
)

// maxRegistries bounds the registries the fault handler consults.
const maxRegistries = 16

var (
	registries [maxRegistries]unsafe.Pointer // *coderegion.Registry

	installMu  sync.Mutex
	installed  atomic.Bool
	installErr error
)

// Install replaces the process handlers for hardware faults and the
// interrupt signal. The previous handlers keep receiving every signal that
// does not belong to guest code. Install is idempotent. A failure is
// returned by every later call; handlers displaced since the last call are
// installed again.
func Install() error {
	installMu.Lock()
	defer installMu.Unlock()
	if installErr != nil {
		return installErr
	}
	if installed.Load() && current() {
		return nil
	}
	if err := install(); err != nil {
		installErr = err
		installed.Store(false)
		return err
	}
	installed.Store(true)
	return nil
}

// Installed reports whether Install succeeded and the kernel still
// delivers every handled signal to this package.
func Installed() bool {
	return installed.Load() && current()
}

// Attach makes the fault handler consult reg.
func Attach(reg *coderegion.Registry) error {
	if reg == nil {
		return errors.InvalidInput(errors.PhaseInstall, "nil code region registry")
	}
	p := unsafe.Pointer(reg)
	for i := range registries {
		if atomic.LoadPointer(&registries[i]) == p {
			return nil
		}
	}
	for i := range registries {
		if atomic.CompareAndSwapPointer(&registries[i], nil, p) {
			return nil
		}
	}
	return errors.OutOfBounds(errors.PhaseInstall, []string{"registries"}, maxRegistries, maxRegistries)
}

// Detach stops consulting reg. The caller guarantees no guest code from reg
// is executing.
func Detach(reg *coderegion.Registry) {
	p := unsafe.Pointer(reg)
	for i := range registries {
		atomic.CompareAndSwapPointer(&registries[i], p, nil)
	}
}

// registryFor returns the attached registry holding pc, or any attached
// registry when none does so embedder handlers are still consulted.
//
//go:nosplit
func registryFor(pc uintptr) *coderegion.Registry {
	var fallback *coderegion.Registry
	for i := 0; i < maxRegistries; i++ {
		reg := (*coderegion.Registry)(atomic.LoadPointer(&registries[i]))
		if reg == nil {
			continue
		}
		if reg.Find(pc) != nil {
			return reg
		}
		if fallback == nil {
			fallback = reg
		}
	}
	return fallback
}

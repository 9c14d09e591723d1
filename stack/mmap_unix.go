//go:build unix

package stack

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	wasmsandbox "github.com/wippyai/wasm-sandbox"
	"github.com/wippyai/wasm-sandbox/errors"
)

// MmapCreator allocates stacks from anonymous private mappings.
type MmapCreator struct {
	// GuardSize is rounded up to the page size. Zero selects
	// DefaultGuardSize.
	GuardSize uintptr
}

// NewStack maps size bytes plus a guard region. The kernel supplies zeroed
// pages.
func (c MmapCreator) NewStack(size uintptr) (Memory, error) {
	if err := validateSize(size); err != nil {
		return nil, err
	}
	ps := PageSize()
	size = roundUp(size, ps)
	guard := c.GuardSize
	if guard == 0 {
		guard = DefaultGuardSize
	}
	guard = roundUp(guard, ps)

	mem, err := unix.Mmap(-1, 0, int(size+guard), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, errors.AllocationFailed(errors.PhaseStack, size+guard, err)
	}
	if err := unix.Mprotect(mem[:guard], unix.PROT_NONE); err != nil {
		_ = unix.Munmap(mem)
		return nil, errors.System(errors.PhaseStack, "mprotect", err)
	}
	return &mmapStack{mem: mem, guard: guard}, nil
}

type mmapStack struct {
	mem    []byte
	guard  uintptr
	closed atomic.Bool
}

func (s *mmapStack) base() uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(s.mem)))
}

func (s *mmapStack) Top() uintptr {
	return s.Range().End &^ (Alignment - 1)
}

func (s *mmapStack) Range() wasmsandbox.Range {
	b := s.base()
	return wasmsandbox.Range{Start: b + s.guard, End: b + uintptr(len(s.mem))}
}

func (s *mmapStack) GuardRange() wasmsandbox.Range {
	b := s.base()
	return wasmsandbox.Range{Start: b, End: b + s.guard}
}

// Reset zeroes the usable region. The guard stays inaccessible.
func (s *mmapStack) Reset() error {
	if s.closed.Load() {
		return errors.Closed(errors.PhaseStack, "stack")
	}
	return zero(s.mem[s.guard:])
}

func (s *mmapStack) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := unix.Munmap(s.mem); err != nil {
		return errors.System(errors.PhaseStack, "munmap", err)
	}
	return nil
}

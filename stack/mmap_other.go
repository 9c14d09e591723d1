//go:build !unix

package stack

import "github.com/wippyai/wasm-sandbox/errors"

// MmapCreator allocates stacks from anonymous mappings. It is not available
// on this platform.
type MmapCreator struct {
	GuardSize uintptr
}

func (c MmapCreator) NewStack(size uintptr) (Memory, error) {
	if err := validateSize(size); err != nil {
		return nil, err
	}
	return nil, errors.Unsupported(errors.PhaseStack, "guarded stack memory")
}

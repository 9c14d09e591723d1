package stack

import (
	"golang.org/x/sys/unix"

	"github.com/wippyai/wasm-sandbox/errors"
)

// zero drops the pages of b; private anonymous pages read back as zero.
func zero(b []byte) error {
	if err := unix.Madvise(b, unix.MADV_DONTNEED); err != nil {
		return errors.System(errors.PhaseStack, "madvise", err)
	}
	return nil
}

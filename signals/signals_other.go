//go:build !linux || !(amd64 || arm64)

package signals

import (
	"syscall"

	"github.com/wippyai/wasm-sandbox/errors"
)

// InterruptSignal is delivered to a thread to preempt guest code.
const InterruptSignal = syscall.Signal(0x18)

func current() bool {
	return false
}

func install() error {
	return errors.Unsupported(errors.PhaseInstall, "hardware fault handlers")
}

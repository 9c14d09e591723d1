package interrupt

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"

	sberrors "github.com/wippyai/wasm-sandbox/errors"
	"github.com/wippyai/wasm-sandbox/signals"
)

func processID() int {
	return os.Getpid()
}

func signalThread(pid int, tid int32) error {
	if tid == 0 {
		return nil
	}
	err := unix.Tgkill(pid, int(tid), signals.InterruptSignal)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	if err != nil {
		return sberrors.System(sberrors.PhaseRuntime, "tgkill", err)
	}
	return nil
}

package interrupt

import (
	"sync"
	"time"

	"github.com/wippyai/wasm-sandbox/execution"
)

// CheckHandle targets the thread that runs one guest computation. It is
// created on that thread when the call is set up and may be used from any
// goroutine afterwards.
type CheckHandle struct {
	rec     *execution.Record
	onFired func()
	gen     uint64
	pid     int
	tid     int32
	mu      sync.Mutex
}

// New captures the calling thread and the current lifetime of rec.
func New(rec *execution.Record) *CheckHandle {
	return &CheckHandle{
		rec: rec,
		gen: rec.Generation(),
		pid: processID(),
		tid: rec.Thread(),
	}
}

// Thread returns the kernel id of the target thread, or 0 if the platform
// does not expose thread ids.
func (h *CheckHandle) Thread() int32 {
	return h.tid
}

// Valid reports whether the computation the handle was created for is still
// running.
func (h *CheckHandle) Valid() bool {
	return h.rec.Generation() == h.gen
}

// OnInterrupt registers f to run when Interrupt is called. Execution paths
// that are not driven by signals (interpreted guests, Go code) use it to
// stop at their own check points.
func (h *CheckHandle) OnInterrupt(f func()) {
	h.mu.Lock()
	h.onFired = f
	h.mu.Unlock()
}

// Check sends the interrupt signal to the target thread. Guest code running
// there samples its fuel and traps if the fuel is exhausted or an interrupt
// was requested. Stale handles do nothing.
func (h *CheckHandle) Check() error {
	if !h.Valid() {
		return nil
	}
	return signalThread(h.pid, h.tid)
}

// Interrupt requests that the computation stop with an interrupt trap and
// signals its thread. It reports whether the request reached a live
// computation.
func (h *CheckHandle) Interrupt() (bool, error) {
	if !h.rec.RequestInterrupt(h.gen) {
		return false, nil
	}
	h.mu.Lock()
	f := h.onFired
	h.mu.Unlock()
	if f != nil {
		f()
	}
	return true, h.Check()
}

// redeliverInterval is how often Deliver signals a thread that is still
// running guest code.
const redeliverInterval = 2 * time.Millisecond

// Deliver interrupts the computation and keeps signalling its thread until
// done is closed or the handle goes stale. A signal that reaches the thread
// just before it enters guest code is forwarded and lost; the repeats are
// not.
func (h *CheckHandle) Deliver(done <-chan struct{}) error {
	ok, err := h.Interrupt()
	if !ok || err != nil {
		return err
	}
	t := time.NewTicker(redeliverInterval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return nil
		case <-t.C:
			if !h.Valid() {
				return nil
			}
			if err := h.Check(); err != nil {
				return err
			}
		}
	}
}

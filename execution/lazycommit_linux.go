package execution

import (
	"golang.org/x/sys/unix"

	wasmsandbox "github.com/wippyai/wasm-sandbox"
	"github.com/wippyai/wasm-sandbox/errors"
	"github.com/wippyai/wasm-sandbox/fault"
)

// LazyCommit is a fault handler for a reserved PROT_NONE range whose pages
// become readable and writable on first access.
type LazyCommit struct {
	Range    wasmsandbox.Range
	pageSize uintptr
}

// NewLazyCommit creates a handler for the page-aligned range r.
func NewLazyCommit(r wasmsandbox.Range) (*LazyCommit, error) {
	ps := uintptr(unix.Getpagesize())
	if r.Empty() || r.Start%ps != 0 || r.End%ps != 0 {
		return nil, errors.InvalidInput(errors.PhaseCall, "lazy commit range must be non-empty and page aligned")
	}
	return &LazyCommit{Range: r, pageSize: ps}, nil
}

// HandleFault commits the page containing the faulting address.
//
//go:nosplit
func (l *LazyCommit) HandleFault(ctx fault.Context) bool {
	if !ctx.Signal.IsAccess() || !l.Range.Contains(ctx.Addr) {
		return false
	}
	page := ctx.Addr &^ (l.pageSize - 1)
	_, _, errno := unix.RawSyscall(unix.SYS_MPROTECT, page, l.pageSize, unix.PROT_READ|unix.PROT_WRITE)
	return errno == 0
}

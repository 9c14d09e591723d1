package engine

import (
	"github.com/wippyai/wasm-sandbox/trap"
)

// unwind carries a software trap to the innermost call boundary.
type unwind struct {
	trap *trap.Trap
}

// recoverTrap converts an unwind panic into the trap it carries. Any other
// panic value is returned as foreign.
func recoverTrap(r any) (t *trap.Trap, foreign any) {
	if u, ok := r.(*unwind); ok {
		return u.trap, nil
	}
	return nil, r
}

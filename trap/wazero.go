package trap

import (
	"errors"
	"strings"

	"github.com/tetratelabs/wazero/sys"
)

const wazeroErrorPrefix = "wasm error: "

// FromError converts an error returned by a wazero function call into a
// Trap. Errors that are not guest traps are reported with ok == false.
func FromError(err error) (t *Trap, ok bool) {
	if err == nil {
		return nil, false
	}
	if errors.As(err, &t) {
		return t, true
	}

	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case sys.ExitCodeContextCanceled, sys.ExitCodeDeadlineExceeded:
			return &Trap{Kind: Interrupt, Cause: err}, true
		}
		return nil, false
	}

	msg := err.Error()
	_, text, found := strings.Cut(msg, wazeroErrorPrefix)
	if !found {
		return nil, false
	}
	if line, _, cut := strings.Cut(text, "\n"); cut {
		text = line
	}
	kind, perr := ParseKind(text)
	if perr != nil {
		return nil, false
	}
	return &Trap{Kind: kind, Cause: err}, true
}

//go:build !linux || !(amd64 || arm64)

package engine

import (
	"github.com/wippyai/wasm-sandbox/errors"
)

const nativeSupported = false

func landingPC() uintptr { return 0 }

func (e *Engine) invokeNative(c *Caller, fn NativeFunc, args []uint64) error {
	return errors.Unsupported(errors.PhaseCall, "native guest code on this platform")
}

//go:build !linux

package interrupt

func processID() int {
	return 0
}

// Without thread signals, guest code is stopped at its own check points.
func signalThread(int, int32) error {
	return nil
}

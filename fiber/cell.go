package fiber

type tag uint8

const (
	// tagExecuting marks the cell empty while the fiber runs.
	tagExecuting tag = iota
	tagResuming
	tagSuspended
	tagReturned
	tagPanicked
	// tagCancel asks a suspended fiber to unwind; the fiber answers with
	// tagCancel once its goroutine has exited.
	tagCancel
)

// cell is the single slot shared by a fiber and its resumer. Only the side
// that currently runs touches it.
type cell[R, Y, T any] struct {
	resume   R
	yield    Y
	result   T
	err      error
	panicVal any
	tag      tag
}

func (c *cell[R, Y, T]) reset(t tag) {
	*c = cell[R, Y, T]{tag: t}
}

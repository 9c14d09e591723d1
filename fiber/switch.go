package fiber

// switcher transfers control between a resumer and its fiber. Exactly one
// side runs at a time; a transfer is the only point where the other side
// may observe the shared cell.
type switcher interface {
	// start runs body as the fiber and blocks until it hands control back.
	start(body func())
	// toFiber hands control to the fiber and blocks until it hands it back.
	toFiber()
	// toResumer hands control back and blocks until the next toFiber.
	toResumer()
	// exit hands control back for the last time.
	exit()
}

// goSwitcher runs the fiber on its own goroutine. The Go scheduler saves
// and restores the register state of both sides at every handoff.
type goSwitcher struct {
	in  chan struct{}
	out chan struct{}
}

func newGoSwitcher() *goSwitcher {
	return &goSwitcher{in: make(chan struct{}), out: make(chan struct{})}
}

func (s *goSwitcher) start(body func()) {
	go body()
	<-s.out
}

func (s *goSwitcher) toFiber() {
	s.in <- struct{}{}
	<-s.out
}

func (s *goSwitcher) toResumer() {
	s.out <- struct{}{}
	<-s.in
}

func (s *goSwitcher) exit() {
	s.out <- struct{}{}
}

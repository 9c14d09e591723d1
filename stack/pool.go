package stack

import (
	"sync"

	"github.com/wippyai/wasm-sandbox/errors"
)

// Stats counts pool activity.
type Stats struct {
	Created int
	Reused  int
	Idle    int
}

// Pool is a Creator that recycles stacks of one size. Stacks it hands out
// return to the pool when closed; they are zeroed before reuse.
type Pool struct {
	creator Creator
	free    []Memory
	stats   Stats
	size    uintptr
	max     int
	mu      sync.Mutex
	closed  bool
}

// NewPool keeps up to max idle stacks of the given size created by c.
func NewPool(c Creator, size uintptr, max int) *Pool {
	if size == 0 {
		size = DefaultSize
	}
	return &Pool{creator: c, size: size, max: max}
}

// Size returns the stack size the pool recycles.
func (p *Pool) Size() uintptr {
	return p.size
}

// Get returns a stack of the pool's size.
func (p *Pool) Get() (Memory, error) {
	return p.NewStack(p.size)
}

// NewStack implements Creator. Sizes other than the pool's are allocated
// directly and not recycled.
func (p *Pool) NewStack(size uintptr) (Memory, error) {
	if err := validateSize(size); err != nil {
		return nil, err
	}
	if size != p.size {
		return p.creator.NewStack(size)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errors.Closed(errors.PhaseStack, "stack pool")
	}
	if n := len(p.free); n > 0 {
		m := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		p.stats.Reused++
		p.mu.Unlock()
		return &pooled{Memory: m, pool: p}, nil
	}
	p.stats.Created++
	p.mu.Unlock()

	m, err := p.creator.NewStack(size)
	if err != nil {
		return nil, err
	}
	return &pooled{Memory: m, pool: p}, nil
}

func (p *Pool) put(m Memory) error {
	r, ok := m.(Resetter)
	if !ok {
		return m.Close()
	}
	p.mu.Lock()
	full := p.closed || len(p.free) >= p.max
	p.mu.Unlock()
	if full {
		return m.Close()
	}
	if err := r.Reset(); err != nil {
		_ = m.Close()
		return err
	}

	p.mu.Lock()
	if p.closed || len(p.free) >= p.max {
		p.mu.Unlock()
		return m.Close()
	}
	p.free = append(p.free, m)
	p.mu.Unlock()
	return nil
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.Idle = len(p.free)
	return s
}

// Close releases idle stacks. Stacks still in use are released when they
// are closed.
func (p *Pool) Close() error {
	p.mu.Lock()
	free := p.free
	p.free = nil
	p.closed = true
	p.mu.Unlock()

	var first error
	for _, m := range free {
		if err := m.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type pooled struct {
	Memory
	pool *Pool
	once sync.Once
}

func (m *pooled) Close() error {
	var err error
	m.once.Do(func() {
		err = m.pool.put(m.Memory)
	})
	return err
}

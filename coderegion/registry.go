package coderegion

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/google/btree"
	"go.uber.org/zap"

	wasmsandbox "github.com/wippyai/wasm-sandbox"
	"github.com/wippyai/wasm-sandbox/errors"
	"github.com/wippyai/wasm-sandbox/trap"
)

const btreeDegree = 16

// snapshot is an immutable, Start-ordered view of the registered regions.
type snapshot struct {
	regions []*Region
}

// Registry tracks the address ranges that hold guest code.
//
// Writers serialize on a mutex and maintain an ordered btree; every mutation
// publishes a fresh snapshot. Find and Lookup only read the snapshot and may
// be called from a signal handler.
type Registry struct {
	index *btree.BTreeG[*Region]
	snap  unsafe.Pointer // *snapshot
	mu    sync.Mutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.init()
	return r
}

func (reg *Registry) init() {
	if reg.index == nil {
		reg.index = btree.NewG[*Region](btreeDegree, func(a, b *Region) bool {
			return a.code.Start < b.code.Start
		})
	}
}

// Register publishes a code range together with its trap table.
// Overlapping an existing region is a programmer error reported as
// errors.KindOverlap.
func (reg *Registry) Register(r wasmsandbox.Range, name string, sites []TrapSite) (*Region, error) {
	if r.Empty() {
		return nil, errors.InvalidInput(errors.PhaseRegister,
			fmt.Sprintf("empty code range [%#x, %#x)", r.Start, r.End))
	}
	for _, s := range sites {
		if uintptr(s.Offset) >= r.Len() {
			return nil, errors.OutOfBounds(errors.PhaseRegister, []string{name, "sites"}, int(s.Offset), int(r.Len()))
		}
		if !s.Kind.Valid() {
			return nil, errors.New(errors.PhaseRegister, errors.KindInvalidInput).
				Path(name).
				Detail("invalid trap kind %d at offset %#x", uint32(s.Kind), s.Offset).
				Build()
		}
	}

	region := newRegion(r, name, sites)

	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.init()

	if other := reg.overlapping(r); other != nil {
		Logger().Error("code region overlaps existing region",
			zap.String("name", name),
			zap.Uintptr("start", r.Start),
			zap.Uintptr("end", r.End),
			zap.String("other", other.name))
		return nil, errors.Overlap(errors.PhaseRegister, r.Start, r.End, other.code.Start, other.code.End)
	}

	reg.index.ReplaceOrInsert(region)
	reg.publish()

	Logger().Debug("registered code region",
		zap.String("name", name),
		zap.Uintptr("start", r.Start),
		zap.Uintptr("end", r.End),
		zap.Int("trap_sites", len(region.offsets)))
	return region, nil
}

// MustRegister is like Register but panics on error.
func (reg *Registry) MustRegister(r wasmsandbox.Range, name string, sites []TrapSite) *Region {
	region, err := reg.Register(r, name, sites)
	if err != nil {
		panic(err)
	}
	return region
}

func (reg *Registry) overlapping(r wasmsandbox.Range) *Region {
	var found *Region
	pivot := &Region{code: wasmsandbox.Range{Start: r.Start}}
	reg.index.DescendLessOrEqual(pivot, func(item *Region) bool {
		if item.code.Overlaps(r) {
			found = item
		}
		return false
	})
	if found != nil {
		return found
	}
	reg.index.AscendGreaterOrEqual(pivot, func(item *Region) bool {
		if item.code.Overlaps(r) {
			found = item
		}
		return false
	})
	return found
}

// Unregister removes the region registered with exactly range r. The caller
// guarantees that no guest code inside r is executing.
func (reg *Registry) Unregister(r wasmsandbox.Range) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.init()

	item, ok := reg.index.Get(&Region{code: wasmsandbox.Range{Start: r.Start}})
	if !ok || item.code.End != r.End {
		return errors.NotFound(errors.PhaseRegister, "code region", fmt.Sprintf("[%#x, %#x)", r.Start, r.End))
	}
	reg.index.Delete(item)
	reg.publish()

	Logger().Debug("unregistered code region",
		zap.String("name", item.name),
		zap.Uintptr("start", r.Start),
		zap.Uintptr("end", r.End))
	return nil
}

// publish must be called with mu held.
func (reg *Registry) publish() {
	s := &snapshot{regions: make([]*Region, 0, reg.index.Len())}
	reg.index.Ascend(func(item *Region) bool {
		s.regions = append(s.regions, item)
		return true
	})
	atomic.StorePointer(&reg.snap, unsafe.Pointer(s))
}

// Find returns the region containing pc, or nil if pc is not guest code.
//
//go:nosplit
func (reg *Registry) Find(pc uintptr) *Region {
	s := (*snapshot)(atomic.LoadPointer(&reg.snap))
	if s == nil {
		return nil
	}
	regions := s.regions
	lo, hi := 0, len(regions)
	for lo < hi {
		m := int(uint(lo+hi) >> 1)
		if regions[m].code.End <= pc {
			lo = m + 1
		} else {
			hi = m
		}
	}
	if lo < len(regions) && regions[lo].code.Start <= pc {
		return regions[lo]
	}
	return nil
}

// Lookup finds the region containing pc and the trap declared for pc.
// region is nil when pc is not guest code; ok is false when the region has
// no trap site at pc.
//
//go:nosplit
func (reg *Registry) Lookup(pc uintptr) (region *Region, kind trap.Kind, ok bool) {
	region = reg.Find(pc)
	if region == nil {
		return nil, 0, false
	}
	kind, ok = region.TrapAt(pc)
	return region, kind, ok
}

// Len returns the number of registered regions.
func (reg *Registry) Len() int {
	s := (*snapshot)(atomic.LoadPointer(&reg.snap))
	if s == nil {
		return 0
	}
	return len(s.regions)
}

// Regions returns the registered regions ordered by start address.
func (reg *Registry) Regions() []*Region {
	s := (*snapshot)(atomic.LoadPointer(&reg.snap))
	if s == nil {
		return nil
	}
	out := make([]*Region, len(s.regions))
	copy(out, s.regions)
	return out
}

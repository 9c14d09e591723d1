package coderegion

import (
	"slices"

	wasmsandbox "github.com/wippyai/wasm-sandbox"
	"github.com/wippyai/wasm-sandbox/trap"
)

// TrapSite maps the offset of a trapping instruction, relative to the start
// of its region, to the trap it raises.
type TrapSite struct {
	Offset uint32
	Kind   trap.Kind
}

// Region is a published range of guest machine code. It is immutable once
// registered; the fault handler reads it without synchronization.
type Region struct {
	name    string
	offsets []uint32
	kinds   []trap.Kind
	code    wasmsandbox.Range
}

// Name returns the name the region was registered with.
func (r *Region) Name() string {
	return r.name
}

// Range returns the code range.
//
//go:nosplit
func (r *Region) Range() wasmsandbox.Range {
	return r.code
}

// Contains reports whether pc lies in the region.
//
//go:nosplit
func (r *Region) Contains(pc uintptr) bool {
	return r.code.Contains(pc)
}

func newRegion(r wasmsandbox.Range, name string, sites []TrapSite) *Region {
	sorted := slices.Clone(sites)
	slices.SortStableFunc(sorted, func(a, b TrapSite) int {
		switch {
		case a.Offset < b.Offset:
			return -1
		case a.Offset > b.Offset:
			return 1
		}
		return 0
	})
	reg := &Region{
		code:    r,
		name:    name,
		offsets: make([]uint32, 0, len(sorted)),
		kinds:   make([]trap.Kind, 0, len(sorted)),
	}
	for _, s := range sorted {
		// last declaration for a duplicated offset wins
		if n := len(reg.offsets); n > 0 && reg.offsets[n-1] == s.Offset {
			reg.kinds[n-1] = s.Kind
			continue
		}
		reg.offsets = append(reg.offsets, s.Offset)
		reg.kinds = append(reg.kinds, s.Kind)
	}
	return reg
}

// TrapAt returns the trap declared for the instruction at pc.
//
//go:nosplit
func (r *Region) TrapAt(pc uintptr) (trap.Kind, bool) {
	if !r.code.Contains(pc) {
		return 0, false
	}
	off := pc - r.code.Start
	lo, hi := 0, len(r.offsets)
	for lo < hi {
		m := int(uint(lo+hi) >> 1)
		if uintptr(r.offsets[m]) < off {
			lo = m + 1
		} else {
			hi = m
		}
	}
	if lo < len(r.offsets) && uintptr(r.offsets[lo]) == off {
		return r.kinds[lo], true
	}
	return 0, false
}

// Sites returns a copy of the region's trap table ordered by offset.
func (r *Region) Sites() []TrapSite {
	out := make([]TrapSite, len(r.offsets))
	for i := range r.offsets {
		out[i] = TrapSite{Offset: r.offsets[i], Kind: r.kinds[i]}
	}
	return out
}

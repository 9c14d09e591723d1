package wasmsandbox

// Range is a half-open address range [Start, End).
type Range struct {
	Start uintptr
	End   uintptr
}

// Len returns the number of bytes covered by the range.
func (r Range) Len() uintptr {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// Empty reports whether the range covers no bytes.
func (r Range) Empty() bool {
	return r.End <= r.Start
}

// Contains reports whether addr lies inside the range.
//
//go:nosplit
func (r Range) Contains(addr uintptr) bool {
	return addr >= r.Start && addr < r.End
}

// Overlaps reports whether both ranges share at least one byte.
func (r Range) Overlaps(o Range) bool {
	if r.Empty() || o.Empty() {
		return false
	}
	return r.Start < o.End && o.Start < r.End
}

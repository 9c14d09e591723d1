package execution

// Scope remembers the depth of a record's stacks when a guest call boundary
// was entered. Exit restores all of them, so a deferred Exit pops exactly
// what the call pushed on every return path.
type Scope struct {
	rec      *Record
	depth    int32
	handlers int32
	guards   int32
	fuel     int64
}

// Enter pushes t and returns the scope that undoes it.
func (r *Record) Enter(t Target) (Scope, error) {
	s := Scope{
		rec:      r,
		depth:    r.depth,
		handlers: r.nhandlers,
		guards:   r.nguards,
		fuel:     r.Fuel(),
	}
	if err := r.Push(t); err != nil {
		return Scope{}, err
	}
	return s, nil
}

// Depth returns the record depth before the scope was entered.
func (s Scope) Depth() int {
	return int(s.depth)
}

// Exit restores the record to the state captured by Enter. Fuel left by the
// inner call carries over to the caller unless the caller had none metered.
func (s Scope) Exit() {
	if s.rec == nil {
		return
	}
	s.rec.RestoreGuards(int(s.guards))
	s.rec.RestoreHandlers(int(s.handlers))
	s.rec.Restore(int(s.depth))
	if s.fuel == UnlimitedFuel {
		s.rec.SetFuel(UnlimitedFuel)
	}
}

package orderbook

// Sequence produces wrapping order ids from a fixed inclusive range. Ids are
// short-lived — the matcher removes them on full fill or cancel — so
// wrapping is safe as long as the number of simultaneously live orders
// stays well below hi-lo+1. If it doesn't, a wrapped id can collide with a
// still-live order; the caller surfaces that as DuplicateOrderID rather
// than treating it as a bug.
type Sequence struct {
	lo, hi  uint64
	current uint64
}

// NewSequence builds a generator over the inclusive range [lo, hi]. Panics
// if the range is empty, since that can never produce a valid id.
func NewSequence(lo, hi uint64) *Sequence {
	if hi < lo {
		panic("orderbook: sequence range is empty")
	}
	return &Sequence{lo: lo, hi: hi, current: lo}
}

// Next returns the current value then advances, wrapping back to lo once
// the next value would exceed hi.
func (s *Sequence) Next() uint64 {
	id := s.current
	if s.current == s.hi {
		s.current = s.lo
	} else {
		s.current++
	}
	return id
}

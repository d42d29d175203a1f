package construct

// Sequencer hands out the monotonically increasing creation-order numbers
// that steps carry. Each Builder owns one, so independent construction
// passes always start from 0 regardless of what any other goroutine is
// doing. Sequence numbers are the sole basis for deterministic ordering in
// rendered output; structural traversal order is not guaranteed stable.
type Sequencer struct {
	next int
}

// Next returns the current number and advances the counter.
func (s *Sequencer) Next() int {
	n := s.next
	s.next++
	return n
}

// Current peeks at the number the next step would receive.
func (s *Sequencer) Current() int { return s.next }

// Scope snapshots the counter and resets it to 0 for a nested
// construction scope. The returned restore function must be deferred so
// the previous count comes back on every exit path, including errors.
func (s *Sequencer) Scope() (restore func()) {
	saved := s.next
	s.next = 0
	return func() { s.next = saved }
}

package domain

// BatchState tracks the terminal outcome of every record in one fetched
// batch. It lives from fetch until the batch's offsets are committed and is
// owned by a single goroutine; no locking.
type BatchState struct {
	pending  map[Coordinate]struct{}
	outcomes map[Coordinate]Outcome
}

func NewBatchState(batch []Record) *BatchState {
	s := &BatchState{
		pending:  make(map[Coordinate]struct{}, len(batch)),
		outcomes: make(map[Coordinate]Outcome, len(batch)),
	}
	for _, r := range batch {
		s.pending[r.Coordinate()] = struct{}{}
	}
	return s
}

// Resolve records a terminal outcome for the coordinate. Resolving a
// coordinate that is not pending (or resolving twice) is a no-op so a
// misbehaving reporter cannot corrupt batch accounting.
func (s *BatchState) Resolve(c Coordinate, o Outcome) {
	if _, ok := s.pending[c]; !ok {
		return
	}
	if !o.Terminal() {
		return
	}
	delete(s.pending, c)
	s.outcomes[c] = o
}

// Done reports whether every record in the batch has a terminal outcome.
func (s *BatchState) Done() bool {
	return len(s.pending) == 0
}

// Remaining returns the number of records still awaiting an outcome.
func (s *BatchState) Remaining() int {
	return len(s.pending)
}

// Counts returns the number of records per terminal outcome.
func (s *BatchState) Counts() map[Outcome]int {
	counts := make(map[Outcome]int, 4)
	for _, o := range s.outcomes {
		counts[o]++
	}
	return counts
}

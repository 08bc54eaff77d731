package testutil

import "sync"

// IDSequence hands out remote object ids the way a FlexiBee server would
// for freshly inserted objects: monotonic and never reused.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type IDSequence struct {
	mu   sync.Mutex
	last int64
}

// NewIDSequence creates a sequence whose first Next() returns start.
func NewIDSequence(start int64) *IDSequence {
	return &IDSequence{last: start - 1}
}

// Next allocates the next id.
func (s *IDSequence) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last++
	return s.last
}

// Current returns the last allocated id without allocating.
func (s *IDSequence) Current() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Reset restarts the sequence so the next id is start.
func (s *IDSequence) Reset(start int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = start - 1
}

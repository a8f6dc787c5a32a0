package clock

import "sync/atomic"

// Seq is a monotonic logical clock. Every notification and trace entry is
// stamped with a strictly increasing value so ordering never depends on
// wall-clock races.
//
// Safe for concurrent use.
type Seq struct {
	n atomic.Int64
}

// NewSeq creates a sequence starting at 0. The first Next returns 1.
func NewSeq() *Seq {
	return &Seq{}
}

// NewSeqAt creates a sequence that resumes after start.
func NewSeqAt(start int64) *Seq {
	s := &Seq{}
	s.n.Store(start)
	return s
}

// Next returns the next value.
func (s *Seq) Next() int64 {
	return s.n.Add(1)
}

// Current returns the last value handed out without advancing.
func (s *Seq) Current() int64 {
	return s.n.Load()
}

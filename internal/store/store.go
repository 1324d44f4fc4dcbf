// Package store holds captured frames in a bounded FIFO.
//
// Push never blocks and never fails: when the store is full the oldest
// frame is evicted. Every inserted frame gets a sequence number that is
// never reused, so readers can detect drops from gaps.
package store

import (
	"sync"

	"firestige.xyz/s2onet/internal/core"
	"firestige.xyz/s2onet/internal/metrics"
)

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 4096

// PushOutcome reports the seq given to a frame and the frame it evicted, if any.
type PushOutcome struct {
	Seq        uint64
	Evicted    bool
	EvictedSeq uint64
}

// Store is a ring buffer of frames guarded by a single mutex. Every
// critical section is O(1) except Snapshot's copy and Resize.
type Store struct {
	mu      sync.Mutex
	buf     []core.Frame
	head    int // Index of the oldest frame
	size    int
	nextSeq uint64
	dropped uint64
	hwm     int
}

// New creates a store holding at most capacity frames.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		buf:     make([]core.Frame, capacity),
		nextSeq: 1,
	}
}

// Push appends f, assigning its Seq. The caller must not modify f.Data afterwards.
func (s *Store) Push(f core.Frame) PushOutcome {
	s.mu.Lock()

	f.Seq = s.nextSeq
	s.nextSeq++
	out := PushOutcome{Seq: f.Seq}

	capacity := len(s.buf)
	if s.size == capacity {
		out.Evicted = true
		out.EvictedSeq = s.buf[s.head].Seq
		s.buf[s.head] = f
		s.head = (s.head + 1) % capacity
		s.dropped++
	} else {
		s.buf[(s.head+s.size)%capacity] = f
		s.size++
		if s.size > s.hwm {
			s.hwm = s.size
		}
	}
	size := s.size
	s.mu.Unlock()

	if out.Evicted {
		metrics.FramesEvictedTotal.Inc()
	}
	metrics.StoreFrames.Set(float64(size))
	return out
}

// Snapshot returns a copy of the contents in FIFO order. Frame data is
// shared, it is immutable once pushed.
func (s *Store) Snapshot() []core.Frame {
	// Allocate outside the lock; the store never exceeds its current capacity.
	s.mu.Lock()
	capacity := len(s.buf)
	s.mu.Unlock()
	out := make([]core.Frame, 0, capacity)

	s.mu.Lock()
	defer s.mu.Unlock()
	capacity = len(s.buf)
	for i := 0; i < s.size; i++ {
		out = append(out, s.buf[(s.head+i)%capacity])
	}
	return out
}

// Len returns the number of frames held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Capacity returns the maximum number of frames held.
func (s *Store) Capacity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// HighWaterMark returns the largest length the store has reached. It never
// decreases, so after a shrink it may exceed Capacity.
func (s *Store) HighWaterMark() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hwm
}

// DroppedCount returns the number of frames evicted so far.
func (s *Store) DroppedCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// LastSeq returns the seq of the most recent push, 0 if none.
func (s *Store) LastSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextSeq - 1
}

// Resize changes the capacity, keeping the newest frames. Frames that no
// longer fit count as dropped. The high-water mark is kept. It returns how
// many were trimmed.
func (s *Store) Resize(capacity int) int {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	s.mu.Lock()
	if capacity == len(s.buf) {
		s.mu.Unlock()
		return 0
	}

	trimmed := 0
	if s.size > capacity {
		trimmed = s.size - capacity
	}
	next := make([]core.Frame, capacity)
	old := len(s.buf)
	for i := trimmed; i < s.size; i++ {
		next[i-trimmed] = s.buf[(s.head+i)%old]
	}
	s.buf = next
	s.head = 0
	s.size -= trimmed
	s.dropped += uint64(trimmed)
	size := s.size
	s.mu.Unlock()

	if trimmed > 0 {
		metrics.FramesEvictedTotal.Add(float64(trimmed))
	}
	metrics.StoreFrames.Set(float64(size))
	return trimmed
}

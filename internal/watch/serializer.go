package watch

import (
	"errors"
	"sync"
)

// ErrClosed is returned when scheduling on a closed Serializer.
var ErrClosed = errors.New("serializer closed")

// Task is a unit of serialized work. latest reports whether no other task
// was scheduled after this one by the time it starts.
type Task func(latest bool)

type queued struct {
	fn  Task
	seq uint64
}

// Serializer runs tasks one at a time in scheduling order on a single worker
// goroutine.
type Serializer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []queued
	seq    uint64 // sequence number of the most recent Schedule
	closed bool
	done   chan struct{}
}

// NewSerializer starts the worker goroutine.
func NewSerializer() *Serializer {
	s := &Serializer{done: make(chan struct{})}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	return s
}

// Schedule appends fn to the queue. It never blocks on running tasks.
func (s *Serializer) Schedule(fn Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.seq++
	s.queue = append(s.queue, queued{fn: fn, seq: s.seq})
	s.cond.Signal()
	return nil
}

// Close stops accepting tasks and waits for the queued ones to finish.
func (s *Serializer) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.cond.Signal()
	}
	s.mu.Unlock()
	<-s.done
}

func (s *Serializer) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		next := s.queue[0]
		s.queue = s.queue[1:]
		latest := next.seq == s.seq
		s.mu.Unlock()

		next.fn(latest)
	}
}

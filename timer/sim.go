package timer

import (
	"container/heap"
	"time"
)

type simEvent struct {
	at       time.Time
	seq      uint64
	handle   Handle
	fn       func()
	canceled bool
}

type eventQueue []*simEvent

func (q eventQueue) Len() int { return len(q) }
func (q eventQueue) Less(i, j int) bool {
	if q[i].at.Equal(q[j].at) {
		return q[i].seq < q[j].seq
	}
	return q[i].at.Before(q[j].at)
}
func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *eventQueue) Push(x any)   { *q = append(*q, x.(*simEvent)) }
func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}

// Sim is a discrete-event scheduler. Callbacks run on the goroutine that
// calls Step, Advance or RunUntil; events due at the same instant run in
// the order they were scheduled.
type Sim struct {
	now   time.Time
	seq   uint64
	queue eventQueue
	live  map[Handle]*simEvent
}

// NewSim returns a virtual clock starting at start.
func NewSim(start time.Time) *Sim {
	return &Sim{now: start, live: make(map[Handle]*simEvent)}
}

func (s *Sim) Schedule(delay time.Duration, fn func()) Handle {
	if delay < 0 {
		delay = 0
	}
	s.seq++
	e := &simEvent{at: s.now.Add(delay), seq: s.seq, handle: Handle(s.seq), fn: fn}
	heap.Push(&s.queue, e)
	s.live[e.handle] = e
	return e.handle
}

func (s *Sim) Cancel(h Handle) {
	if e, ok := s.live[h]; ok {
		e.canceled = true
		delete(s.live, h)
	}
}

func (s *Sim) Now() time.Time { return s.now }

// Pending returns the number of callbacks still due to run.
func (s *Sim) Pending() int { return len(s.live) }

// Step runs the next due callback, moving the clock to its deadline. It
// returns false when nothing is scheduled.
func (s *Sim) Step() bool {
	for s.queue.Len() > 0 {
		e := heap.Pop(&s.queue).(*simEvent)
		if e.canceled {
			continue
		}
		delete(s.live, e.handle)
		if e.at.After(s.now) {
			s.now = e.at
		}
		e.fn()
		return true
	}
	return false
}

// RunUntil runs every callback due at or before t, then sets the clock to t.
func (s *Sim) RunUntil(t time.Time) {
	for s.queue.Len() > 0 {
		next := s.queue[0]
		if next.canceled {
			heap.Pop(&s.queue)
			continue
		}
		if next.at.After(t) {
			break
		}
		s.Step()
	}
	if t.After(s.now) {
		s.now = t
	}
}

// Advance runs the clock forward by d.
func (s *Sim) Advance(d time.Duration) {
	s.RunUntil(s.now.Add(d))
}

// Flush runs every callback due now, including ones they schedule with a
// zero delay.
func (s *Sim) Flush() {
	s.RunUntil(s.now)
}

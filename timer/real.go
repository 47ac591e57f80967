package timer

import (
	"sync"
	"time"
)

// Real schedules on the wall clock. Expired callbacks are passed to exec,
// which is expected to run them on the owner's goroutine; a callback whose
// handle was cancelled before exec ran it is skipped.
type Real struct {
	mu     sync.Mutex
	exec   func(func())
	seq    uint64
	timers map[Handle]*time.Timer
}

// NewReal returns a wall-clock scheduler. A nil exec runs callbacks on the
// timer goroutine.
func NewReal(exec func(func())) *Real {
	if exec == nil {
		exec = func(fn func()) { fn() }
	}
	return &Real{exec: exec, timers: make(map[Handle]*time.Timer)}
}

func (r *Real) Schedule(delay time.Duration, fn func()) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	h := Handle(r.seq)
	r.timers[h] = time.AfterFunc(delay, func() {
		r.exec(func() {
			r.mu.Lock()
			_, live := r.timers[h]
			delete(r.timers, h)
			r.mu.Unlock()
			if live {
				fn()
			}
		})
	})
	return h
}

func (r *Real) Cancel(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[h]; ok {
		t.Stop()
		delete(r.timers, h)
	}
}

func (r *Real) Now() time.Time { return time.Now() }

// Stop cancels every pending timer.
func (r *Real) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for h, t := range r.timers {
		t.Stop()
		delete(r.timers, h)
	}
}

// Package timer provides the cancellable timer service the protocol engine
// runs on.
//
// Two schedulers implement the same interface:
//
//	Sim  - a virtual clock backed by a min-heap; callbacks run only when the
//	       owner advances time, which makes multi-node runs deterministic.
//	Real - wall-clock timers whose callbacks are handed to an executor (the
//	       node's event loop) so they never run concurrently with it.
//
// Keyed layers the "one outstanding timer per key" discipline on top:
// scheduling a key that is already pending cancels the earlier instance.
package timer

import "time"

// Handle identifies a scheduled callback.
type Handle uint64

// Scheduler is the timer service consumed by the engine.
type Scheduler interface {
	// Schedule runs fn once after delay.
	Schedule(delay time.Duration, fn func()) Handle
	// Cancel prevents a pending callback from running. Cancelling a handle
	// that already fired, or was already cancelled, is a no-op.
	Cancel(h Handle)
	// Now returns the scheduler's current time.
	Now() time.Time
}

// Keyed tracks at most one pending timer per key. It is not safe for
// concurrent use.
type Keyed[K comparable] struct {
	sched   Scheduler
	handles map[K]Handle
}

// NewKeyed returns an empty keyed timer set on top of sched.
func NewKeyed[K comparable](sched Scheduler) *Keyed[K] {
	return &Keyed[K]{sched: sched, handles: make(map[K]Handle)}
}

// Schedule arms fn for key, cancelling any instance already pending.
func (k *Keyed[K]) Schedule(key K, delay time.Duration, fn func()) {
	k.Cancel(key)
	var h Handle
	h = k.sched.Schedule(delay, func() {
		if cur, ok := k.handles[key]; !ok || cur != h {
			return
		}
		delete(k.handles, key)
		fn()
	})
	k.handles[key] = h
}

// Repeat runs fn every interval until the key is cancelled. The next
// instance is armed before fn runs, so fn may cancel it.
func (k *Keyed[K]) Repeat(key K, interval time.Duration, fn func()) {
	k.Schedule(key, interval, func() {
		k.Repeat(key, interval, fn)
		fn()
	})
}

// Cancel stops the pending timer for key, reporting whether one existed.
func (k *Keyed[K]) Cancel(key K) bool {
	h, ok := k.handles[key]
	if !ok {
		return false
	}
	delete(k.handles, key)
	k.sched.Cancel(h)
	return true
}

// Pending reports whether a timer is armed for key.
func (k *Keyed[K]) Pending(key K) bool {
	_, ok := k.handles[key]
	return ok
}

// Len returns the number of armed timers.
func (k *Keyed[K]) Len() int {
	return len(k.handles)
}

// CancelAll stops every pending timer.
func (k *Keyed[K]) CancelAll() {
	for key, h := range k.handles {
		k.sched.Cancel(h)
		delete(k.handles, key)
	}
}

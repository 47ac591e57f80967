package peers

import (
	"time"

	"github.com/keeferrourke/rhpman-sim/timer"
	"github.com/keeferrourke/rhpman-sim/wire"
)

// Replicators is the set of peers currently believed to be replicating.
type Replicators struct {
	ttl     time.Duration
	timers  *timer.Keyed[wire.Address]
	members map[wire.Address]bool // value: near
	onEmpty func()
}

// NewReplicators returns an empty set whose members live for ttl after
// their last refresh.
func NewReplicators(sched timer.Scheduler, ttl time.Duration) *Replicators {
	return &Replicators{
		ttl:     ttl,
		timers:  timer.NewKeyed[wire.Address](sched),
		members: make(map[wire.Address]bool),
	}
}

// OnEmpty registers a hook called whenever removing a member (explicitly or
// by expiry) leaves the set empty.
func (r *Replicators) OnEmpty(fn func()) {
	r.onEmpty = fn
}

// Add inserts or refreshes addr and reports whether it was new. near marks
// the member as heard within the neighborhood radius; a refresh without
// near keeps an earlier near mark.
func (r *Replicators) Add(addr wire.Address, near bool) bool {
	wasNear, exists := r.members[addr]
	r.members[addr] = wasNear || near
	r.timers.Schedule(addr, r.ttl, func() {
		r.drop(addr)
	})
	return !exists
}

// Remove deletes addr, reporting whether it was a member.
func (r *Replicators) Remove(addr wire.Address) bool {
	if _, ok := r.members[addr]; !ok {
		return false
	}
	r.timers.Cancel(addr)
	r.drop(addr)
	return true
}

func (r *Replicators) drop(addr wire.Address) {
	delete(r.members, addr)
	if len(r.members) == 0 && r.onEmpty != nil {
		r.onEmpty()
	}
}

// Contains reports whether addr is a member.
func (r *Replicators) Contains(addr wire.Address) bool {
	_, ok := r.members[addr]
	return ok
}

// AnyNear reports whether some member was heard within the neighborhood.
func (r *Replicators) AnyNear() bool {
	for _, near := range r.members {
		if near {
			return true
		}
	}
	return false
}

// Members returns the set in address order.
func (r *Replicators) Members() []wire.Address {
	out := make([]wire.Address, 0, len(r.members))
	for addr := range r.members {
		out = append(out, addr)
	}
	sortAddresses(out)
	return out
}

// Len returns the number of members.
func (r *Replicators) Len() int {
	return len(r.members)
}

// Reset empties the set without calling the OnEmpty hook.
func (r *Replicators) Reset() {
	r.timers.CancelAll()
	r.members = make(map[wire.Address]bool)
}

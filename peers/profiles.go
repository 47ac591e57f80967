package peers

import (
	"sort"
	"time"

	"github.com/keeferrourke/rhpman-sim/timer"
	"github.com/keeferrourke/rhpman-sim/wire"
)

// Profiles maps peers to their last advertised delivery probability.
type Profiles struct {
	ttl      time.Duration
	timers   *timer.Keyed[wire.Address]
	probs    map[wire.Address]float64
	onExpire func(wire.Address)
}

// NewProfiles returns an empty table whose entries live for ttl after
// their last refresh.
func NewProfiles(sched timer.Scheduler, ttl time.Duration) *Profiles {
	return &Profiles{
		ttl:    ttl,
		timers: timer.NewKeyed[wire.Address](sched),
		probs:  make(map[wire.Address]float64),
	}
}

// OnExpire registers a hook called after an entry times out.
func (p *Profiles) OnExpire(fn func(wire.Address)) {
	p.onExpire = fn
}

// Update records a peer's probability and re-arms its expiry.
func (p *Profiles) Update(addr wire.Address, probability float64) {
	p.probs[addr] = probability
	p.timers.Schedule(addr, p.ttl, func() {
		delete(p.probs, addr)
		if p.onExpire != nil {
			p.onExpire(addr)
		}
	})
}

// Get returns the last probability advertised by addr.
func (p *Profiles) Get(addr wire.Address) (float64, bool) {
	v, ok := p.probs[addr]
	return v, ok
}

// Remove drops a peer without waiting for its expiry.
func (p *Profiles) Remove(addr wire.Address) {
	p.timers.Cancel(addr)
	delete(p.probs, addr)
}

// Above returns peers whose probability exceeds threshold, or equals it
// when inclusive is set, in address order.
func (p *Profiles) Above(threshold float64, inclusive bool) []wire.Address {
	out := make([]wire.Address, 0, len(p.probs))
	for addr, v := range p.probs {
		if v > threshold || (inclusive && v == threshold) {
			out = append(out, addr)
		}
	}
	sortAddresses(out)
	return out
}

// Addresses returns every known peer in address order.
func (p *Profiles) Addresses() []wire.Address {
	out := make([]wire.Address, 0, len(p.probs))
	for addr := range p.probs {
		out = append(out, addr)
	}
	sortAddresses(out)
	return out
}

// Len returns the number of live entries.
func (p *Profiles) Len() int {
	return len(p.probs)
}

// Reset cancels every expiry timer and empties the table.
func (p *Profiles) Reset() {
	p.timers.CancelAll()
	p.probs = make(map[wire.Address]float64)
}

func sortAddresses(addrs []wire.Address) {
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
}

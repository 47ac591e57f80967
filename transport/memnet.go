package transport

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/keeferrourke/rhpman-sim/timer"
	"github.com/keeferrourke/rhpman-sim/wire"
)

// MemNet is an in-process network. Links are undirected; a closed endpoint
// neither receives nor relays. Deliveries are always queued on the
// scheduler, never made inline, so a send can not re-enter the sender.
// MemNet is not safe for concurrent use: drive it from the goroutine that
// owns the scheduler.
type MemNet struct {
	sched       timer.Scheduler
	delay       time.Duration
	loss        float64
	rng         *rand.Rand
	unicastHops int
	endpoints   map[wire.Address]*MemEndpoint
	links       map[wire.Address]map[wire.Address]struct{}
	stats       MemStats
}

// MemStats counts datagrams handled by a MemNet.
type MemStats struct {
	Sent       uint64
	Delivered  uint64
	Lost       uint64
	Unroutable uint64
}

// MemOption configures a MemNet.
type MemOption func(*MemNet)

// WithDelay delays every delivery by d.
func WithDelay(d time.Duration) MemOption {
	return func(n *MemNet) { n.delay = d }
}

// WithLoss drops each delivery with probability rate, using a generator
// seeded with seed.
func WithLoss(rate float64, seed uint64) MemOption {
	return func(n *MemNet) {
		n.loss = rate
		n.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithUnicastHops bounds the path length a unicast may take.
func WithUnicastHops(hops int) MemOption {
	return func(n *MemNet) { n.unicastHops = hops }
}

// NewMemNet returns an empty network delivering on sched.
func NewMemNet(sched timer.Scheduler, opts ...MemOption) *MemNet {
	n := &MemNet{
		sched:       sched,
		unicastHops: 16,
		endpoints:   make(map[wire.Address]*MemEndpoint),
		links:       make(map[wire.Address]map[wire.Address]struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Endpoint returns the endpoint for addr, creating it on first use.
func (n *MemNet) Endpoint(addr wire.Address) *MemEndpoint {
	if ep, ok := n.endpoints[addr]; ok {
		return ep
	}
	ep := &MemEndpoint{net: n, addr: addr}
	n.endpoints[addr] = ep
	return ep
}

// Link connects a and b.
func (n *MemNet) Link(a, b wire.Address) {
	if a == b {
		return
	}
	n.half(a)[b] = struct{}{}
	n.half(b)[a] = struct{}{}
}

// Unlink disconnects a and b.
func (n *MemNet) Unlink(a, b wire.Address) {
	delete(n.half(a), b)
	delete(n.half(b), a)
}

// Linked reports whether a and b share a link.
func (n *MemNet) Linked(a, b wire.Address) bool {
	_, ok := n.links[a][b]
	return ok
}

// Mesh links every pair of addrs.
func (n *MemNet) Mesh(addrs ...wire.Address) {
	for i := range addrs {
		for j := i + 1; j < len(addrs); j++ {
			n.Link(addrs[i], addrs[j])
		}
	}
}

// Isolate removes every link of addr.
func (n *MemNet) Isolate(addr wire.Address) {
	for peer := range n.links[addr] {
		n.Unlink(addr, peer)
	}
}

// Neighbors returns the direct links of addr in address order.
func (n *MemNet) Neighbors(addr wire.Address) []wire.Address {
	out := make([]wire.Address, 0, len(n.links[addr]))
	for peer := range n.links[addr] {
		out = append(out, peer)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Stats returns the delivery counters.
func (n *MemNet) Stats() MemStats {
	return n.stats
}

func (n *MemNet) half(a wire.Address) map[wire.Address]struct{} {
	m, ok := n.links[a]
	if !ok {
		m = make(map[wire.Address]struct{})
		n.links[a] = m
	}
	return m
}

func (n *MemNet) open(addr wire.Address) bool {
	ep, ok := n.endpoints[addr]
	return ok && ep.open
}

// reach returns every open node within maxHops of from, with its distance.
// Only open nodes relay.
func (n *MemNet) reach(from wire.Address, maxHops int) map[wire.Address]int {
	dist := map[wire.Address]int{from: 0}
	frontier := []wire.Address{from}
	for hop := 1; hop <= maxHops && len(frontier) > 0; hop++ {
		var next []wire.Address
		for _, a := range frontier {
			for b := range n.links[a] {
				if _, seen := dist[b]; seen || !n.open(b) {
					continue
				}
				dist[b] = hop
				next = append(next, b)
			}
		}
		frontier = next
	}
	return dist
}

func (n *MemNet) deliver(from, to wire.Address, payload []byte) {
	n.stats.Sent++
	if n.rng != nil && n.loss > 0 && n.rng.Float64() < n.loss {
		n.stats.Lost++
		return
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	n.sched.Schedule(n.delay, func() {
		ep, ok := n.endpoints[to]
		if !ok || !ep.open || ep.recv == nil {
			n.stats.Lost++
			return
		}
		n.stats.Delivered++
		ep.recv(from, buf)
	})
}

// MemEndpoint is one node's attachment to a MemNet.
type MemEndpoint struct {
	net     *MemNet
	addr    wire.Address
	open    bool
	openErr error
	recv    Receiver
}

// FailOpen makes the next Open calls return err. Pass nil to clear.
func (e *MemEndpoint) FailOpen(err error) {
	e.openErr = err
}

func (e *MemEndpoint) Open() error {
	if e.openErr != nil {
		return fmt.Errorf("bind %s: %w", e.addr, e.openErr)
	}
	e.open = true
	return nil
}

func (e *MemEndpoint) Close() error {
	e.open = false
	return nil
}

// IsOpen reports whether the endpoint is bound.
func (e *MemEndpoint) IsOpen() bool {
	return e.open
}

func (e *MemEndpoint) LocalAddress() wire.Address { return e.addr }

func (e *MemEndpoint) SetReceiver(fn Receiver) { e.recv = fn }

func (e *MemEndpoint) Unicast(dest wire.Address, payload []byte) error {
	if !e.open {
		return ErrClosed
	}
	if _, ok := e.net.reach(e.addr, e.net.unicastHops)[dest]; !ok || dest == e.addr {
		e.net.stats.Unroutable++
		return fmt.Errorf("unicast to %s: %w", dest, ErrUnreachable)
	}
	e.net.deliver(e.addr, dest, payload)
	return nil
}

func (e *MemEndpoint) Broadcast(hops uint32, payload []byte) error {
	if !e.open {
		return ErrClosed
	}
	reached := e.net.reach(e.addr, int(hops))
	targets := make([]wire.Address, 0, len(reached))
	for addr := range reached {
		if addr != e.addr {
			targets = append(targets, addr)
		}
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
	for _, addr := range targets {
		e.net.deliver(e.addr, addr, payload)
	}
	return nil
}

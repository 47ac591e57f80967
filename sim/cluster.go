// Package sim runs many engines against one virtual clock and an
// in-process network, so whole scenarios replay identically from a seed.
package sim

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/keeferrourke/rhpman-sim/rhpman"
	"github.com/keeferrourke/rhpman-sim/timer"
	"github.com/keeferrourke/rhpman-sim/transport"
	"github.com/keeferrourke/rhpman-sim/wire"
)

// baseAddress is 10.1.0.0; members are numbered from 10.1.0.1.
const baseAddress = wire.Address(0x0a010000)

// Member is one simulated node.
type Member struct {
	Engine    *rhpman.Engine
	Addr      wire.Address
	Partition int

	Successes int
	Failures  int
}

// Cluster is a set of engines on a shared MemNet. It is not safe for
// concurrent use.
type Cluster struct {
	sim     *timer.Sim
	net     *transport.MemNet
	rng     *rand.Rand
	engine  rhpman.Config
	perPart int
	members []*Member
	next    uint32
	bridges [][2]wire.Address
}

// ClusterOptions configures a Cluster.
type ClusterOptions struct {
	Seed              uint64
	NodesPerPartition int
	LossRate          float64
	Delay             time.Duration
	Engine            rhpman.Config
}

// NewCluster returns an empty cluster whose clock starts at the Unix epoch.
func NewCluster(opts ClusterOptions) *Cluster {
	sim := timer.NewSim(time.Unix(0, 0).UTC())
	netOpts := []transport.MemOption{transport.WithDelay(opts.Delay)}
	if opts.LossRate > 0 {
		netOpts = append(netOpts, transport.WithLoss(opts.LossRate, opts.Seed))
	}
	per := opts.NodesPerPartition
	if per <= 0 {
		per = 1 << 30
	}
	return &Cluster{
		sim:     sim,
		net:     transport.NewMemNet(sim, netOpts...),
		rng:     rand.New(rand.NewPCG(opts.Seed, opts.Seed+1)),
		engine:  opts.Engine,
		perPart: per,
	}
}

// AddNode creates and starts a node in the next partition slot. It is
// linked to every member of its partition.
func (c *Cluster) AddNode(role rhpman.Role) (*Member, error) {
	c.next++
	return c.addAt(c.next, role)
}

// addAt starts the node for a 1-based slot; the slot fixes both its
// address and its partition.
func (c *Cluster) addAt(slot uint32, role rhpman.Role) (*Member, error) {
	addr := baseAddress + wire.Address(slot)
	part := int(slot-1) / c.perPart

	cfg := c.engine
	cfg.InitialRole = role
	e, err := rhpman.New(cfg, c.net.Endpoint(addr), c.sim)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", addr, err)
	}
	m := &Member{Engine: e, Addr: addr, Partition: part}
	e.SetOnLookupSuccess(func(wire.ContentItem) { m.Successes++ })
	e.SetOnLookupFailure(func(uint64) { m.Failures++ })

	for _, other := range c.members {
		if other.Partition == part {
			c.net.Link(addr, other.Addr)
		}
	}
	if err := e.Start(); err != nil {
		return nil, fmt.Errorf("node %s: %w", addr, err)
	}
	c.members = append(c.members, m)
	return m, nil
}

// RemoveNode stops a member and takes it off the network.
func (c *Cluster) RemoveNode(addr wire.Address) bool {
	for i, m := range c.members {
		if m.Addr == addr {
			m.Engine.Stop()
			c.net.Isolate(addr)
			c.members = append(c.members[:i], c.members[i+1:]...)
			return true
		}
	}
	return false
}

// Member returns the member with the given address.
func (c *Cluster) Member(addr wire.Address) (*Member, bool) {
	for _, m := range c.members {
		if m.Addr == addr {
			return m, true
		}
	}
	return nil, false
}

// Members returns the members in creation order.
func (c *Cluster) Members() []*Member {
	return append([]*Member(nil), c.members...)
}

// Partitions returns the number of partitions in use.
func (c *Cluster) Partitions() int {
	n := 0
	for _, m := range c.members {
		if m.Partition+1 > n {
			n = m.Partition + 1
		}
	}
	return n
}

// Rebridge drops the current inter-partition links and, for every pair of
// adjacent partitions, links one random member of each with probability
// one half.
func (c *Cluster) Rebridge() {
	for _, b := range c.bridges {
		c.net.Unlink(b[0], b[1])
	}
	c.bridges = c.bridges[:0]

	byPart := make(map[int][]wire.Address)
	for _, m := range c.members {
		byPart[m.Partition] = append(byPart[m.Partition], m.Addr)
	}
	for p := 0; p+1 < c.Partitions(); p++ {
		left, right := byPart[p], byPart[p+1]
		if len(left) == 0 || len(right) == 0 || c.rng.IntN(2) == 0 {
			continue
		}
		a := left[c.rng.IntN(len(left))]
		b := right[c.rng.IntN(len(right))]
		c.net.Link(a, b)
		c.bridges = append(c.bridges, [2]wire.Address{a, b})
	}
}

// Bridges returns the current inter-partition links.
func (c *Cluster) Bridges() [][2]wire.Address {
	return append([][2]wire.Address(nil), c.bridges...)
}

// Step advances the clock by d, running everything that falls due.
func (c *Cluster) Step(d time.Duration) {
	c.sim.Advance(d)
}

// Now returns the virtual time.
func (c *Cluster) Now() time.Time {
	return c.sim.Now()
}

// Elapsed returns the virtual time since the cluster was created.
func (c *Cluster) Elapsed() time.Duration {
	return c.sim.Now().Sub(time.Unix(0, 0))
}

// Network returns the cluster's network.
func (c *Cluster) Network() *transport.MemNet {
	return c.net
}

// Replicators returns the addresses of replicating members.
func (c *Cluster) Replicators() []wire.Address {
	var out []wire.Address
	for _, m := range c.members {
		if m.Engine.Role() == rhpman.Replicating {
			out = append(out, m.Addr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// StopAll stops every member, resolving outstanding lookups.
func (c *Cluster) StopAll() {
	for _, m := range c.members {
		m.Engine.Stop()
	}
}

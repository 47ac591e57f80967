package rhpman_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keeferrourke/rhpman-sim/rhpman"
	"github.com/keeferrourke/rhpman-sim/wire"
)

// quietConfig keeps a lone node from electing itself during a test.
func quietConfig() rhpman.Config {
	cfg := testConfig()
	cfg.ElectionTimeout = time.Hour
	cfg.MissingReplicationTimeout = time.Hour
	cfg.ProfileUpdateDelay = 6 * time.Second
	cfg.ProfileTimeout = 18 * time.Second
	return cfg
}

func TestChangeDegree_TracksNeighborChurn(t *testing.T) {
	h := newHarness(t)
	cfg := quietConfig()
	cfg.DegreeWindow = 3
	cfg.PrimaryCapacity = 4
	e, _ := h.engine(1, cfg)
	a, b, c := h.stub(2), h.stub(3), h.stub(4)
	h.net.Mesh(1, 2, 3, 4)
	require.True(t, e.Save(item(1, 1)))

	// t=1: 2 and 3 appear and stay until t=19.
	h.sim.Advance(time.Second)
	a.send(1, wire.Ping{})
	b.send(1, wire.Ping{})
	h.sim.Flush()

	// t=6: the first tick only records the baseline {2, 3}.
	h.sim.Advance(5 * time.Second)
	require.Zero(t, e.ChangeDegree())

	// t=7: 4 appears and stays until t=25.
	h.sim.Advance(time.Second)
	c.send(1, wire.Ping{})
	h.sim.Flush()

	// t=12: {2,3} -> {2,3,4} changes 1 of 3.
	h.sim.Advance(5 * time.Second)
	require.InDelta(t, 1.0/3, e.ChangeDegree(), 1e-9)
	require.InDelta(t, cfg.WeightChangeDegree/3, e.CalculateProfile(), 1e-9)

	// Three stable neighbors and three of four primary slots free.
	require.InDelta(t, 3*(1-1.0/3)+0.75, e.CalculateElectionFitness(), 1e-9)
	require.True(t, e.RunElection())
	h.sim.Flush()
	fitness := a.received(wire.KindElectionFitness)
	require.Len(t, fitness, 1)
	require.InDelta(t, 2.75, fitness[0].Payload.(wire.ElectionFitness).Fitness, 1e-9)

	// t=18: no change.
	h.sim.Advance(6 * time.Second)
	require.InDelta(t, (1.0/3+0)/2, e.ChangeDegree(), 1e-9)

	// t=24: 2 and 3 expired at t=19, leaving {4}.
	h.sim.Advance(6 * time.Second)
	require.InDelta(t, (1.0/3+0+2.0/3)/3, e.ChangeDegree(), 1e-9)

	// t=30: 4 expired at t=25. The window drops the oldest sample.
	h.sim.Advance(6 * time.Second)
	require.InDelta(t, (0+2.0/3+1)/3, e.ChangeDegree(), 1e-9)
	require.InDelta(t, 0.75, e.CalculateElectionFitness(), 1e-9)
}

func TestPing_RateLimitedByCooldown(t *testing.T) {
	h := newHarness(t)
	r := h.stub(2)
	h.net.Link(1, 2)

	cfg := quietConfig()
	cfg.ProfileUpdateDelay = time.Second
	cfg.PingCooldown = 2500 * time.Millisecond
	h.engine(1, cfg)
	h.sim.Flush()
	require.Len(t, r.received(wire.KindPing), 1, "start pings immediately")

	// Ticks at 1s..6s; only those at 3s and 6s clear the cooldown.
	h.sim.Advance(6 * time.Second)
	require.Len(t, r.received(wire.KindPing), 3)
}

func TestSeenCapacity_BoundsDuplicateWindow(t *testing.T) {
	h := newHarness(t)
	cfg := quietConfig()
	cfg.SeenCapacity = 2
	e, _ := h.engine(1, cfg)
	p := h.stub(2)
	h.net.Link(1, 2)

	first := p.send(1, wire.Ping{DeliveryProbability: 0.1})
	p.send(1, wire.Ping{DeliveryProbability: 0.2})
	last := p.send(1, wire.Ping{DeliveryProbability: 0.3})
	h.sim.Flush()

	// The first identity has been evicted and is processed again.
	first.Payload = wire.Ping{DeliveryProbability: 0.9}
	p.sendEnvelope(1, first)
	h.sim.Flush()
	prob, ok := e.PeerProfile(2)
	require.True(t, ok)
	require.Equal(t, 0.9, prob)
	require.Zero(t, e.Stats().Duplicates)

	// The newest identity is still remembered.
	last.Payload = wire.Ping{DeliveryProbability: 0.5}
	p.sendEnvelope(1, last)
	h.sim.Flush()
	prob, _ = e.PeerProfile(2)
	require.Equal(t, 0.9, prob)
	require.Equal(t, uint64(1), e.Stats().Duplicates)
}

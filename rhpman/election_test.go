package rhpman_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keeferrourke/rhpman-sim/rhpman"
	"github.com/keeferrourke/rhpman-sim/wire"
)

func fixedFitness(v float64) rhpman.Option {
	return rhpman.WithFitness(func(*rhpman.Engine) float64 { return v })
}

// electWith runs the initial election of a node with fitness 6 against
// peers reporting the given fitness values.
func electWith(t *testing.T, peerFitness map[wire.Address]float64) (*harness, *rhpman.Engine, map[wire.Address]*stub) {
	t.Helper()
	h := newHarness(t)
	e, _ := h.engine(1, testConfig(), fixedFitness(6))
	stubs := make(map[wire.Address]*stub)
	for addr := range peerFitness {
		stubs[addr] = h.stub(addr)
		h.net.Link(1, addr)
	}

	h.sim.Advance(testConfig().ElectionTimeout)
	require.Equal(t, uint64(1), e.Stats().Elections)
	for addr, f := range peerFitness {
		stubs[addr].send(1, wire.ElectionFitness{Fitness: f})
	}
	h.sim.Flush()
	h.sim.Advance(testConfig().ElectionTimeout)
	return h, e, stubs
}

func TestElection_HigherPeerWins(t *testing.T) {
	_, e, stubs := electWith(t, map[wire.Address]float64{5: 5, 7: 7})
	require.Equal(t, rhpman.NonReplicating, e.Role())
	require.Empty(t, stubs[5].received(wire.KindModeChange))
}

func TestElection_HighestObservedIncludingSelfWins(t *testing.T) {
	_, e, stubs := electWith(t, map[wire.Address]float64{5: 5})
	require.Equal(t, rhpman.Replicating, e.Role())

	changes := stubs[5].received(wire.KindModeChange)
	require.Len(t, changes, 1)
	require.Equal(t, wire.ModeChange{OldReplicator: 1, NewReplicator: 1}, changes[0].Payload)
	require.NotEmpty(t, stubs[5].received(wire.KindReplicaAnnounce))
	require.Equal(t, 1.0, e.CalculateProfile())
}

func TestElection_TieFavorsReplicating(t *testing.T) {
	_, e, _ := electWith(t, map[wire.Address]float64{5: 6})
	require.Equal(t, rhpman.Replicating, e.Role())
}

func TestElection_BroadcastsRequestAndFitness(t *testing.T) {
	h := newHarness(t)
	_, _ = h.engine(1, testConfig(), fixedFitness(2.5))
	p := h.stub(9)
	h.net.Link(1, 9)

	h.sim.Advance(testConfig().ElectionTimeout)
	require.Len(t, p.received(wire.KindElectionRequest), 1)
	fit := p.received(wire.KindElectionFitness)
	require.Len(t, fit, 1)
	require.Equal(t, wire.ElectionFitness{Fitness: 2.5}, fit[0].Payload)
}

func TestElection_FitnessWhileIdleStartsRound(t *testing.T) {
	h := newHarness(t)
	e, _ := h.engine(1, testConfig(), fixedFitness(6))
	p := h.stub(5)
	h.net.Link(1, 5)

	h.sim.Advance(500 * time.Millisecond)
	p.send(1, wire.ElectionFitness{Fitness: 8})
	h.sim.Flush()
	require.Equal(t, uint64(1), e.Stats().Elections)

	h.sim.Advance(testConfig().ElectionTimeout)
	require.Equal(t, rhpman.NonReplicating, e.Role())
	h.sim.Advance(testConfig().ElectionTimeout)
	require.Equal(t, uint64(1), e.Stats().Elections, "the scheduled initial election must not start a second round")
}

func TestElection_RequestHonoursCooldown(t *testing.T) {
	h := newHarness(t)
	e, _ := h.engine(1, testConfig(), fixedFitness(1))
	p := h.stub(5)
	h.net.Link(1, 5)

	h.sim.Advance(testConfig().ElectionTimeout)
	require.Equal(t, uint64(1), e.Stats().Elections)

	h.sim.Advance(3 * time.Second)
	p.send(1, wire.ElectionRequest{})
	h.sim.Flush()
	require.Equal(t, uint64(1), e.Stats().Elections)

	h.sim.Advance(testConfig().ElectionCooldown)
	p.send(1, wire.ElectionRequest{})
	h.sim.Flush()
	require.Equal(t, uint64(2), e.Stats().Elections)
}

func TestHandleModeChange(t *testing.T) {
	h := newHarness(t)
	e, _ := h.engine(1, testConfig())

	h.sim.Advance(testConfig().ElectionTimeout + testConfig().ElectionCooldown + time.Second)
	elections := e.Stats().Elections

	e.HandleModeChange(5, 5)
	require.Equal(t, []wire.Address{5}, e.Replicators())

	e.HandleModeChange(5, 6)
	require.Equal(t, []wire.Address{6}, e.Replicators())

	e.HandleModeChange(6, wire.NoAddress)
	require.Empty(t, e.Replicators())
	require.Equal(t, elections, e.Stats().Elections)

	h.sim.Flush()
	require.Equal(t, elections+1, e.Stats().Elections)
}

func TestElection_LastReplicatorExpiry(t *testing.T) {
	h := newHarness(t)
	e, _ := h.engine(1, testConfig())
	r := h.stub(2)
	h.net.Link(1, 2)

	r.send(1, wire.ReplicaAnnounce{})
	h.sim.Flush()
	require.Equal(t, []wire.Address{2}, e.Replicators())

	h.sim.Advance(testConfig().ElectionTimeout)
	require.Zero(t, e.Stats().Elections, "a known replicator suppresses the initial election")

	h.sim.Advance(testConfig().ReplicationNodeTimeout)
	require.Empty(t, e.Replicators())
	require.Equal(t, uint64(1), e.Stats().Elections)
}

func TestStepDownBroadcastsSentinel(t *testing.T) {
	h := newHarness(t)
	cfg := testConfig()
	cfg.InitialRole = rhpman.Replicating
	e, _ := h.engine(1, cfg, fixedFitness(1))
	p := h.stub(5)
	h.net.Link(1, 5)

	require.True(t, e.RunElection())
	p.send(1, wire.ElectionFitness{Fitness: 9})
	h.sim.Advance(cfg.ElectionTimeout)

	require.Equal(t, rhpman.NonReplicating, e.Role())
	changes := p.received(wire.KindModeChange)
	require.Len(t, changes, 1)
	require.Equal(t, wire.ModeChange{OldReplicator: 1, NewReplicator: wire.NoAddress}, changes[0].Payload)

	announces := len(p.received(wire.KindReplicaAnnounce))
	h.sim.Advance(3 * cfg.ProfileUpdateDelay)
	require.Len(t, p.received(wire.KindReplicaAnnounce), announces, "announcements stop after stepping down")
}

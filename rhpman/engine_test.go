package rhpman_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keeferrourke/rhpman-sim/rhpman"
	"github.com/keeferrourke/rhpman-sim/timer"
	"github.com/keeferrourke/rhpman-sim/transport"
	"github.com/keeferrourke/rhpman-sim/wire"
)

func TestNew_RejectsInvalidConfig(t *testing.T) {
	sim := timer.NewSim(time.Unix(0, 0))
	ep := transport.NewMemNet(sim).Endpoint(1)

	cfg := rhpman.DefaultConfig()
	cfg.ForwardingThreshold = 1.5
	_, err := rhpman.New(cfg, ep, sim)
	require.ErrorIs(t, err, rhpman.ErrInvalidThreshold)

	cfg = rhpman.DefaultConfig()
	cfg.WeightColocation = -1
	_, err = rhpman.New(cfg, ep, sim)
	require.ErrorIs(t, err, rhpman.ErrInvalidWeight)

	cfg = rhpman.DefaultConfig()
	cfg.ElectionNeighborhoodHops = 0
	_, err = rhpman.New(cfg, ep, sim)
	require.ErrorIs(t, err, rhpman.ErrInvalidHops)

	cfg = rhpman.DefaultConfig()
	cfg.RequestTimeout = 0
	_, err = rhpman.New(cfg, ep, sim)
	require.ErrorIs(t, err, rhpman.ErrInvalidDuration)

	cfg = rhpman.DefaultConfig()
	cfg.TransitCapacity = -1
	_, err = rhpman.New(cfg, ep, sim)
	require.ErrorIs(t, err, rhpman.ErrInvalidCapacity)

	_, err = rhpman.New(rhpman.DefaultConfig(), nil, sim)
	require.ErrorIs(t, err, rhpman.ErrTransportRequired)
}

func TestStart_BindFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	ep := h.net.Endpoint(1)
	ep.FailOpen(errors.New("address in use"))

	e, err := rhpman.New(testConfig(), ep, h.sim)
	require.NoError(t, err)
	require.Error(t, e.Start())
	require.Equal(t, rhpman.NotStarted, e.State())
	require.ErrorIs(t, e.Lookup(1), rhpman.ErrNotRunning)
	require.False(t, e.Save(item(1, 1)))
	require.Zero(t, h.sim.Pending(), "a failed start must not leave timers behind")
}

func TestStart_TwiceIsNoop(t *testing.T) {
	h := newHarness(t)
	e, _ := h.engine(1, testConfig())
	pending := h.sim.Pending()
	require.NoError(t, e.Start())
	require.Equal(t, pending, h.sim.Pending())
	require.Equal(t, rhpman.Running, e.State())
}

func TestSave_LocalLookupNeedsNoNetwork(t *testing.T) {
	h := newHarness(t)
	e, rec := h.engine(1, testConfig())

	x := item(10, 1)
	require.True(t, e.Save(x))
	require.NoError(t, e.Lookup(10))

	require.Equal(t, []wire.ContentItem{x}, rec.successes)
	require.Empty(t, rec.failures)
	require.Zero(t, e.PendingLookups())
}

func TestSave_ReportsFullStore(t *testing.T) {
	h := newHarness(t)
	cfg := testConfig()
	cfg.PrimaryCapacity = 1
	e, _ := h.engine(1, cfg)

	require.True(t, e.Save(item(1, 1)))
	require.False(t, e.Save(item(2, 1)))
	require.Len(t, e.PrimaryItems(), 1)
}

func TestLookup_ResponseBeatsTimeout(t *testing.T) {
	h := newHarness(t)
	e, rec := h.engine(1, testConfig())
	r := h.stub(2)
	h.net.Link(1, 2)

	r.send(1, wire.ModeChange{OldReplicator: 2, NewReplicator: 2})
	h.sim.Flush()
	require.Equal(t, []wire.Address{2}, e.Replicators())

	require.NoError(t, e.Lookup(42))
	h.sim.Flush()
	reqs := r.received(wire.KindLookupRequest)
	require.Len(t, reqs, 1)
	req := reqs[0].Payload.(wire.LookupRequest)
	require.Equal(t, uint64(42), req.ContentID)
	require.Equal(t, wire.Address(1), req.Requestor)

	answer := wire.LookupResponse{RequestID: reqs[0].ID, Item: item(42, 2)}
	r.send(1, answer)
	r.send(1, answer)
	h.sim.Flush()
	require.Len(t, rec.successes, 1)
	require.Equal(t, uint64(42), rec.successes[0].ID)

	h.sim.Advance(testConfig().RequestTimeout + time.Second)
	require.Empty(t, rec.failures, "a timeout after a response must be a no-op")
	require.Len(t, rec.successes, 1)
}

func TestLookup_TimeoutFiresOnce(t *testing.T) {
	h := newHarness(t)
	e, rec := h.engine(1, testConfig())

	require.NoError(t, e.Lookup(7))
	require.Equal(t, 1, e.PendingLookups())

	h.sim.Advance(testConfig().RequestTimeout)
	require.Equal(t, []uint64{7}, rec.failures)
	require.Zero(t, e.PendingLookups())

	h.sim.Advance(time.Minute)
	e.Stop()
	require.Equal(t, []uint64{7}, rec.failures)
	require.Empty(t, rec.successes)
}

func TestLookup_LateResponseIgnored(t *testing.T) {
	h := newHarness(t)
	e, rec := h.engine(1, testConfig())
	r := h.stub(2)
	h.net.Link(1, 2)
	r.send(1, wire.ModeChange{OldReplicator: 2, NewReplicator: 2})
	h.sim.Flush()

	require.NoError(t, e.Lookup(5))
	h.sim.Flush()
	req := r.received(wire.KindLookupRequest)[0]
	h.sim.Advance(testConfig().RequestTimeout)
	require.Equal(t, []uint64{5}, rec.failures)

	r.send(1, wire.LookupResponse{RequestID: req.ID, Item: item(5, 2)})
	h.sim.Flush()
	require.Empty(t, rec.successes)
}

func TestStop_FailsPendingLookupsOnce(t *testing.T) {
	h := newHarness(t)
	e, rec := h.engine(1, testConfig())
	require.NoError(t, e.Lookup(1))
	require.NoError(t, e.Lookup(2))

	e.Stop()
	require.Equal(t, rhpman.Stopped, e.State())
	require.Equal(t, []uint64{1, 2}, rec.failures)
	require.Zero(t, h.sim.Pending())

	h.sim.Advance(time.Hour)
	require.Len(t, rec.failures, 2)
}

func TestRestart_ReinitializesStores(t *testing.T) {
	h := newHarness(t)
	e, rec := h.engine(1, testConfig())
	require.True(t, e.Save(item(1, 1)))
	e.Stop()

	require.NoError(t, e.Start())
	require.Equal(t, rhpman.Running, e.State())
	require.Empty(t, e.PrimaryItems())
	require.Empty(t, e.TransitItems())

	require.NoError(t, e.Lookup(1))
	require.Empty(t, rec.successes)
	require.Equal(t, 1, e.PendingLookups())
}

func TestDuplicateMessageRunsHandlerOnce(t *testing.T) {
	h := newHarness(t)
	e, _ := h.engine(1, testConfig())
	p := h.stub(2)
	h.net.Link(1, 2)

	env := p.send(1, wire.Ping{DeliveryProbability: 0.3})
	env.Payload = wire.Ping{DeliveryProbability: 0.9}
	p.sendEnvelope(1, env)
	h.sim.Flush()

	prob, ok := e.PeerProfile(2)
	require.True(t, ok)
	require.Equal(t, 0.3, prob)
	require.Equal(t, uint64(1), e.Stats().Duplicates)
}

func TestMalformedDatagramDropped(t *testing.T) {
	h := newHarness(t)
	e, _ := h.engine(1, testConfig())
	p := h.stub(2)
	h.net.Link(1, 2)

	require.NoError(t, p.ep.Unicast(1, []byte{0xff, 0xff, 0xff}))
	h.sim.Flush()
	require.Equal(t, uint64(1), e.Stats().Malformed)
	require.Equal(t, rhpman.Running, e.State())
}

func TestCalculateProfile(t *testing.T) {
	h := newHarness(t)
	cfg := testConfig()
	cfg.WeightChangeDegree = 0
	cfg.WeightColocation = 0
	cfg.InitialRole = rhpman.Replicating
	replica, _ := h.engine(1, cfg)
	require.Equal(t, rhpman.Replicating, replica.Role())
	require.Equal(t, 1.0, replica.CalculateProfile())

	cfg.InitialRole = rhpman.NonReplicating
	plain, _ := h.engine(2, cfg)
	require.Equal(t, 0.0, plain.CalculateProfile())

	cfg.WeightColocation = 0.7
	near, _ := h.engine(3, cfg, rhpman.WithFitness(func(*rhpman.Engine) float64 { return -1 }))
	h.net.Link(1, 3)
	h.sim.Advance(cfg.ProfileUpdateDelay)
	require.Equal(t, []wire.Address{1}, near.Replicators())
	require.Equal(t, 1.0, near.Colocation())
	require.InDelta(t, 0.7, near.CalculateProfile(), 1e-9)
}

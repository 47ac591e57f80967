package transport

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keeferrourke/rhpman-sim/timer"
	"github.com/keeferrourke/rhpman-sim/wire"
)

type inbox struct {
	got []wire.Address
}

func (i *inbox) receiver() Receiver {
	return func(sender wire.Address, _ []byte) { i.got = append(i.got, sender) }
}

func chain(t *testing.T, n int, opts ...MemOption) (*timer.Sim, *MemNet, []*MemEndpoint, []*inbox) {
	t.Helper()
	sim := timer.NewSim(time.Unix(0, 0))
	net := NewMemNet(sim, opts...)
	eps := make([]*MemEndpoint, n)
	boxes := make([]*inbox, n)
	for i := range eps {
		eps[i] = net.Endpoint(wire.Address(i + 1))
		boxes[i] = &inbox{}
		eps[i].SetReceiver(boxes[i].receiver())
		require.NoError(t, eps[i].Open())
		if i > 0 {
			net.Link(wire.Address(i), wire.Address(i+1))
		}
	}
	return sim, net, eps, boxes
}

func TestMemNet_BroadcastRespectsHops(t *testing.T) {
	sim, _, eps, boxes := chain(t, 4)

	require.NoError(t, eps[0].Broadcast(2, []byte("x")))
	require.Empty(t, boxes[1].got, "delivery must be deferred to the scheduler")
	sim.Flush()

	require.Empty(t, boxes[0].got)
	require.Equal(t, []wire.Address{1}, boxes[1].got)
	require.Equal(t, []wire.Address{1}, boxes[2].got)
	require.Empty(t, boxes[3].got)
}

func TestMemNet_ClosedNodesDoNotRelay(t *testing.T) {
	sim, _, eps, boxes := chain(t, 3)
	require.NoError(t, eps[1].Close())

	require.NoError(t, eps[0].Broadcast(5, []byte("x")))
	sim.Flush()
	require.Empty(t, boxes[1].got)
	require.Empty(t, boxes[2].got)

	err := eps[0].Unicast(3, []byte("x"))
	require.ErrorIs(t, err, ErrUnreachable)
}

func TestMemNet_UnicastAcrossLinks(t *testing.T) {
	sim, net, eps, boxes := chain(t, 3)
	require.NoError(t, eps[0].Unicast(3, []byte("x")))
	sim.Flush()
	require.Equal(t, []wire.Address{1}, boxes[2].got)
	require.Empty(t, boxes[1].got)
	require.Equal(t, uint64(1), net.Stats().Delivered)
}

func TestMemNet_PartitionAndHeal(t *testing.T) {
	sim, net, eps, boxes := chain(t, 2)
	net.Isolate(1)
	require.False(t, net.Linked(1, 2))
	require.Error(t, eps[0].Unicast(2, []byte("x")))

	net.Link(1, 2)
	require.NoError(t, eps[0].Unicast(2, []byte("x")))
	sim.Flush()
	require.Len(t, boxes[1].got, 1)
}

func TestMemNet_DelayAndLoss(t *testing.T) {
	sim, _, eps, boxes := chain(t, 2, WithDelay(50*time.Millisecond))
	require.NoError(t, eps[0].Unicast(2, []byte("x")))
	sim.Advance(49 * time.Millisecond)
	require.Empty(t, boxes[1].got)
	sim.Advance(time.Millisecond)
	require.Len(t, boxes[1].got, 1)

	lossy := NewMemNet(sim, WithLoss(1, 7))
	a, b := lossy.Endpoint(1), lossy.Endpoint(2)
	require.NoError(t, a.Open())
	require.NoError(t, b.Open())
	lossy.Link(1, 2)
	require.NoError(t, a.Unicast(2, []byte("x")))
	sim.Flush()
	require.Equal(t, uint64(1), lossy.Stats().Lost)
}

func TestMemNet_FailOpen(t *testing.T) {
	sim := timer.NewSim(time.Unix(0, 0))
	ep := NewMemNet(sim).Endpoint(9)
	boom := errors.New("address in use")
	ep.FailOpen(boom)
	require.ErrorIs(t, ep.Open(), boom)
	require.False(t, ep.IsOpen())
	require.ErrorIs(t, ep.Broadcast(1, []byte("x")), ErrClosed)

	ep.FailOpen(nil)
	require.NoError(t, ep.Open())
}

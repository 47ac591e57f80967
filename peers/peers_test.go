package peers_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keeferrourke/rhpman-sim/peers"
	"github.com/keeferrourke/rhpman-sim/timer"
	"github.com/keeferrourke/rhpman-sim/wire"
)

var epoch = time.Unix(1_600_000_000, 0)

func TestProfiles_ExpireAndRefresh(t *testing.T) {
	clock := timer.NewSim(epoch)
	p := peers.NewProfiles(clock, 10*time.Second)
	var expired []wire.Address
	p.OnExpire(func(a wire.Address) { expired = append(expired, a) })

	p.Update(1, 0.2)
	p.Update(2, 0.9)
	clock.Advance(8 * time.Second)
	p.Update(1, 0.5)

	clock.Advance(3 * time.Second)
	require.Equal(t, []wire.Address{2}, expired)
	v, ok := p.Get(1)
	require.True(t, ok)
	require.Equal(t, 0.5, v)

	clock.Advance(10 * time.Second)
	require.Equal(t, []wire.Address{2, 1}, expired)
	require.Zero(t, p.Len())
}

func TestProfiles_Above(t *testing.T) {
	clock := timer.NewSim(epoch)
	p := peers.NewProfiles(clock, time.Minute)
	p.Update(3, 0.4)
	p.Update(1, 0.7)
	p.Update(2, 0.1)

	require.Equal(t, []wire.Address{1}, p.Above(0.4, false))
	require.Equal(t, []wire.Address{1, 3}, p.Above(0.4, true))
	require.Equal(t, []wire.Address{1, 2, 3}, p.Addresses())

	p.Remove(1)
	clock.Advance(2 * time.Minute)
	require.Zero(t, p.Len())
}

func TestReplicators_EmptyHookOnExpiry(t *testing.T) {
	clock := timer.NewSim(epoch)
	r := peers.NewReplicators(clock, 5*time.Second)
	empties := 0
	r.OnEmpty(func() { empties++ })

	require.True(t, r.Add(5, false))
	require.False(t, r.Add(5, true))
	require.True(t, r.Add(6, false))
	require.True(t, r.AnyNear())

	require.True(t, r.Remove(5))
	require.Zero(t, empties)
	require.False(t, r.AnyNear())

	clock.Advance(6 * time.Second)
	require.Equal(t, 1, empties)
	require.Zero(t, r.Len())
	require.False(t, r.Remove(6))
}

func TestReplicators_ResetIsSilent(t *testing.T) {
	clock := timer.NewSim(epoch)
	r := peers.NewReplicators(clock, time.Second)
	empties := 0
	r.OnEmpty(func() { empties++ })
	r.Add(1, true)
	r.Reset()
	clock.Advance(time.Minute)
	require.Zero(t, empties)
	require.Equal(t, []wire.Address{}, r.Members())
}

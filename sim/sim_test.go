package sim_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keeferrourke/rhpman-sim/rhpman"
	"github.com/keeferrourke/rhpman-sim/sim"
	"github.com/keeferrourke/rhpman-sim/wire"
)

func TestScenario_Validate(t *testing.T) {
	s := sim.DefaultScenario()
	require.NoError(t, s.Validate())

	s.Nodes = 0
	require.ErrorIs(t, s.Validate(), sim.ErrInvalidScenario)

	s = sim.DefaultScenario()
	s.DataOwnersPercent = 120
	require.ErrorIs(t, s.Validate(), sim.ErrInvalidScenario)

	s = sim.DefaultScenario()
	s.Engine.NeighborhoodHops = 0
	err := s.Validate()
	require.ErrorIs(t, err, sim.ErrInvalidScenario)
	require.ErrorIs(t, err, rhpman.ErrInvalidHops)
}

func TestRun_ConnectedLosslessNetworkResolvesEverything(t *testing.T) {
	s := sim.DefaultScenario()
	s.Nodes = 6
	s.NodesPerPartition = 6
	s.DataOwnersPercent = 34
	s.BridgeInterval = 0
	s.LookupInterval = 10 * time.Second
	s.Runtime = 2 * time.Minute
	s.Delay = time.Millisecond

	res, err := sim.Run(s)
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)
	require.Positive(t, res.Lookups)
	require.Equal(t, res.Lookups, res.Successes)
	require.Zero(t, res.Failures)
	require.Equal(t, 2, res.Replicators)
	require.Equal(t, 1.0, res.SuccessRate())
}

func TestRun_EveryLookupResolvesOnce(t *testing.T) {
	s := sim.DefaultScenario()
	s.LossRate = 0.1

	res, err := sim.Run(s)
	require.NoError(t, err)
	require.Positive(t, res.Lookups)
	require.Equal(t, res.Lookups, res.Successes+res.Failures)
}

func TestRun_SameSeedSameOutcome(t *testing.T) {
	s := sim.DefaultScenario()
	s.LossRate = 0.05
	s.Runtime = 3 * time.Minute

	a, err := sim.Run(s)
	require.NoError(t, err)
	b, err := sim.Run(s)
	require.NoError(t, err)

	require.NotEqual(t, a.RunID, b.RunID)
	a.RunID, b.RunID = "", ""
	require.Equal(t, a, b)
}

func TestCluster_PartitionsAndBridges(t *testing.T) {
	c := sim.NewCluster(sim.ClusterOptions{Seed: 3, NodesPerPartition: 2, Engine: rhpman.DefaultConfig()})
	for i := 0; i < 4; i++ {
		_, err := c.AddNode(rhpman.NonReplicating)
		require.NoError(t, err)
	}
	m := c.Members()
	net := c.Network()
	require.Equal(t, 2, c.Partitions())
	require.True(t, net.Linked(m[0].Addr, m[1].Addr))
	require.True(t, net.Linked(m[2].Addr, m[3].Addr))
	require.False(t, net.Linked(m[1].Addr, m[2].Addr))

	for i := 0; i < 10; i++ {
		c.Rebridge()
		bridges := c.Bridges()
		require.LessOrEqual(t, len(bridges), 1)
		for _, b := range bridges {
			require.True(t, net.Linked(b[0], b[1]))
		}
	}

	require.True(t, c.RemoveNode(m[0].Addr))
	require.Empty(t, net.Neighbors(m[0].Addr))
	require.Equal(t, rhpman.Stopped, m[0].Engine.State())
	_, ok := c.Member(m[0].Addr)
	require.False(t, ok)
	require.Equal(t, wire.Address(0x0a010001), m[0].Addr)
}

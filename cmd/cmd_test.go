package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keeferrourke/rhpman-sim/logger"
	"github.com/keeferrourke/rhpman-sim/rhpman"
	"github.com/keeferrourke/rhpman-sim/sim"
)

func TestParseSaves(t *testing.T) {
	items, err := parseSaves([]string{"1:hello", "2:a:b", "3"})
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, uint64(1), items[0].ID)
	require.Equal(t, []byte("hello"), items[0].Payload)
	require.Equal(t, []byte("a:b"), items[1].Payload)
	require.Empty(t, items[2].Payload)

	_, err = parseSaves([]string{"x:hello"})
	require.Error(t, err)
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"7", "1000"})
	require.NoError(t, err)
	require.Equal(t, []uint64{7, 1000}, ids)

	_, err = parseIDs([]string{"-1"})
	require.Error(t, err)
}

func TestParseRole(t *testing.T) {
	role, err := parseRole("Replicating")
	require.NoError(t, err)
	require.Equal(t, rhpman.Replicating, role)

	role, err = parseRole("")
	require.NoError(t, err)
	require.Equal(t, rhpman.NonReplicating, role)

	_, err = parseRole("leader")
	require.ErrorIs(t, err, rhpman.ErrInvalidRole)
}

func TestFormatCommandPreview(t *testing.T) {
	require.Equal(t, "D → 3", formatCommandPreview("delete:2"))
	require.Equal(t, "L → 1000", formatCommandPreview("lookup:1000"))
	require.Equal(t, "R", formatCommandPreview("create-replicating"))
}

func testModel() model {
	cfg := rhpman.DefaultConfig()
	return model{
		cluster: sim.NewCluster(sim.ClusterOptions{
			Seed:              1,
			NodesPerPartition: 4,
			Delay:             time.Millisecond,
			Engine:            cfg,
		}),
		nextItem:  firstItemID,
		logBuffer: logger.NewLogBuffer(10),
	}
}

func TestModel_SaveThenLookupFromNeighbor(t *testing.T) {
	m := testModel()
	m = m.run("create")
	m = m.run("create-replicating")
	require.NoError(t, m.err)
	require.Len(t, m.members, 2)

	m.cursor = 1
	m = m.run("save")
	require.NoError(t, m.err)
	m.cluster.Step(time.Second)

	m.cursor = 0
	m = m.run("lookup:1000")
	require.NoError(t, m.err)
	m.cluster.Step(time.Second)

	require.Equal(t, 1, m.members[0].Successes)
	require.Zero(t, m.members[0].Failures)
}

func TestModel_DeleteAndBounds(t *testing.T) {
	m := testModel()
	m = m.run("create")
	m = m.run("create")
	m.cursor = 1

	m = m.run("delete:1")
	require.NoError(t, m.err)
	require.Len(t, m.members, 1)
	require.Equal(t, 0, m.cursor)

	m = m.run("delete:5")
	require.Error(t, m.err)

	m = m.run("lookup:abc")
	require.Error(t, m.err)
}

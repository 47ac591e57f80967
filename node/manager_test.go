package node_test

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keeferrourke/rhpman-sim/node"
	"github.com/keeferrourke/rhpman-sim/rhpman"
	"github.com/keeferrourke/rhpman-sim/wire"
)

func TestManager_CreateLookupDelete(t *testing.T) {
	base, err := strconv.Atoi(freePort(t))
	require.NoError(t, err)

	cfg := rhpman.DefaultConfig()
	cfg.ProfileUpdateDelay = 200 * time.Millisecond
	m := node.NewManager(node.WithBasePort(base), node.WithEngineConfig(cfg))
	defer m.StopAll()

	holder, err := m.CreateNodeWithRole(rhpman.Replicating)
	require.NoError(t, err)
	reader, err := m.CreateNode()
	require.NoError(t, err)

	require.Len(t, m.GetNodes(), 2)
	require.Contains(t, reader.GetConfig().Neighbors, holder.GetConfig().GetAddress())
	require.Contains(t, holder.Snapshot().Neighbors, reader.GetConfig().GetAddress())

	got, ok := m.GetNode("node-2")
	require.True(t, ok)
	require.Same(t, reader, got)

	found := make(chan []byte, 1)
	reader.OnLookup(func(item wire.ContentItem) { found <- item.Payload }, nil)

	saved, err := holder.Save(9, []byte("nine"))
	require.NoError(t, err)
	require.True(t, saved)

	require.Eventually(t, func() bool {
		return len(reader.Snapshot().Replicators) == 1
	}, 5*time.Second, 50*time.Millisecond)
	require.NoError(t, reader.Lookup(9))

	select {
	case payload := <-found:
		require.Equal(t, []byte("nine"), payload)
	case <-time.After(5 * time.Second):
		t.Fatal("lookup did not resolve")
	}

	require.NoError(t, m.DeleteNode(0))
	require.Len(t, m.GetNodes(), 1)
	_, ok = m.GetNode("node-1")
	require.False(t, ok)
	require.Error(t, m.DeleteNode(3))
}

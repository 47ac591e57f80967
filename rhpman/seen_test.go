package rhpman

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSeenSet_Bounded(t *testing.T) {
	s := newSeenSet(2)
	a, b, c := messageKey{1, 1}, messageKey{1, 2}, messageKey{2, 1}
	require.True(t, s.Add(a))
	require.True(t, s.Add(b))
	require.False(t, s.Add(a))
	require.True(t, s.Add(c))
	require.Equal(t, 2, s.Len())
	require.True(t, s.Add(a), "the oldest identity is evicted first")
}

func TestSeenSet_Unbounded(t *testing.T) {
	s := newSeenSet(0)
	for i := uint64(0); i < 1000; i++ {
		require.True(t, s.Add(messageKey{7, i}))
	}
	require.False(t, s.Add(messageKey{7, 0}))
	require.Equal(t, 1000, s.Len())
}

package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterTableTake(t *testing.T) {
	table := newLimiterTable(1, 2, time.Minute)

	// Burst of 2, then the bucket is empty.
	require.True(t, table.take("10.0.0.1"))
	require.True(t, table.take("10.0.0.1"))
	require.False(t, table.take("10.0.0.1"))

	// Another client gets its own bucket.
	require.True(t, table.take("10.0.0.2"))
}

func TestLimiterTableSweep(t *testing.T) {
	table := newLimiterTable(1, 1, time.Minute)

	current := time.Unix(1000, 0)
	table.now = func() time.Time { return current }

	table.take("10.0.0.1")
	current = current.Add(30 * time.Second)
	table.take("10.0.0.2")

	// Only the first bucket has gone idle.
	current = current.Add(45 * time.Second)
	require.Equal(t, 1, table.sweep())
	require.NotContains(t, table.buckets, "10.0.0.1")
	require.Contains(t, table.buckets, "10.0.0.2")
}

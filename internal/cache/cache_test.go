package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGetMissThenHit(t *testing.T) {
	c := New(nil, zap.NewNop())
	defer c.Close()

	key := KeyFor(KindAnalysis, "some source")
	_, ok := c.Get(key)
	assert.False(t, ok)

	c.Set(key, "analysis result", time.Minute)
	v, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "analysis result", v)

	stats := c.StatsSnapshot()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
}

func TestRepeatedAnalysisComputesOnce(t *testing.T) {
	c := New(nil, zap.NewNop())
	defer c.Close()

	key := KeyFor(KindAST, "def f():\n    pass\n")
	computes := 0
	compute := func(context.Context) (any, error) {
		computes++
		return "tree", nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrCompute(context.Background(), key, time.Minute, compute)
		require.NoError(t, err)
		assert.Equal(t, "tree", v)
	}
	assert.Equal(t, 1, computes)
	assert.Equal(t, int64(2), c.StatsSnapshot().Hits)
}

func TestExpiredEntryIsAMiss(t *testing.T) {
	c := New(nil, zap.NewNop())
	defer c.Close()

	key := KeyFor(KindAST, "short lived")
	c.Set(key, "v", 20*time.Millisecond)
	time.Sleep(40 * time.Millisecond)

	_, ok := c.Get(key)
	assert.False(t, ok)
}

func TestSweepEvictsExpiredEntries(t *testing.T) {
	c := New(nil, zap.NewNop())
	defer c.Close()

	c.Set(KeyFor(KindAST, "a"), "v", 10*time.Millisecond)
	c.Set(KeyFor(KindAST, "b"), "v", time.Hour)
	time.Sleep(20 * time.Millisecond)
	c.sweep()

	stats := c.StatsSnapshot()
	assert.Equal(t, int64(1), stats.Evictions)
	assert.Equal(t, 1, stats.Entries)
}

func TestDistinctContentDistinctKeys(t *testing.T) {
	a := KeyFor(KindAST, "x = 1")
	b := KeyFor(KindAST, "x = 2")
	sameAsA := KeyFor(KindAST, "x = 1")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, sameAsA)
	assert.NotEqual(t, a, KeyFor(KindAnalysis, "x = 1"))
}

func TestConcurrentReadersAreSafe(t *testing.T) {
	c := New(nil, zap.NewNop())
	defer c.Close()

	key := KeyFor(KindAnalysis, "shared")
	c.Set(key, "v", time.Minute)

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				if v, ok := c.Get(key); ok {
					assert.Equal(t, "v", v)
				}
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}

package memctl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUsage_LevelsTrackThresholds(t *testing.T) {
	c := New(1000)
	c.UpdateStorage(100)
	assert.Equal(t, LevelNone, c.Usage().Level)

	c.UpdateStorage(850)
	assert.Equal(t, LevelWarning, c.Usage().Level)

	c.UpdateStorage(960)
	assert.Equal(t, LevelCritical, c.Usage().Level)
}

func TestUsage_AggregatesAllSubsystems(t *testing.T) {
	c := New(1000)
	c.UpdateStorage(100)
	c.UpdateGraph(200)
	c.UpdateMetadata(50)
	c.UpdateSparse(25)

	u := c.Usage()
	assert.Equal(t, uint64(375), u.Used)
	assert.InDelta(t, 0.375, u.Percent, 1e-9)
}

func TestCanInsert_BlocksOnlyWhenConfiguredAndCritical(t *testing.T) {
	c := New(1000)
	c.UpdateStorage(990)
	assert.True(t, c.CanInsert(), "blocking is opt-in")

	c.SetBlockInsertsOnCritical(true)
	assert.False(t, c.CanInsert())

	c.UpdateStorage(500)
	assert.True(t, c.CanInsert())
}

func TestSetThresholds_ClampsAndOrders(t *testing.T) {
	c := New(1000)
	c.SetThresholds(0.9, 0.5) // warning above critical gets forced down
	c.UpdateStorage(600)
	assert.Equal(t, LevelCritical, c.Usage().Level)

	c2 := New(1000)
	c2.SetThresholds(-1, 2)
	c2.UpdateStorage(10)
	assert.Equal(t, LevelWarning, c2.Usage().Level) // warning clamped to 0
}

func TestRecommendation_MapsLevelAndTombstoneRatio(t *testing.T) {
	c := New(1000)
	c.UpdateStorage(100)
	assert.Equal(t, RecommendNone, c.Recommendation(0.5))

	c.UpdateStorage(900)
	assert.Equal(t, RecommendCompact, c.Recommendation(0.4))
	assert.Equal(t, RecommendReduce, c.Recommendation(0))
}

func TestUsage_ZeroTotalBudgetNeverDivides(t *testing.T) {
	c := New(0)
	c.UpdateStorage(5)
	u := c.Usage()
	assert.Equal(t, 0.0, u.Percent)
	assert.Equal(t, LevelNone, u.Level)
}

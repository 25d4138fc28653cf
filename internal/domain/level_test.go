package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXPForLevel(t *testing.T) {
	tests := []struct {
		level int
		want  int
	}{
		{0, 100},
		{1, 100},
		{2, 150},
		{3, 225},
		{4, 337},
		{5, 506},
		{6, 759},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, XPForLevel(tt.level), "XPForLevel(%d)", tt.level)
	}
}

func TestLevelOf(t *testing.T) {
	tests := []struct {
		name      string
		totalXP   int
		wantLevel int
		wantInto  int
	}{
		{"fresh user", 0, 1, 0},
		{"negative clamps to zero", -20, 1, 0},
		{"just below first threshold", 99, 1, 99},
		{"exactly first threshold", 100, 2, 0},
		{"into level two", 105, 2, 5},
		{"exactly level three", 250, 3, 0},
		{"into level four", 500, 4, 25},
		{"level five", 812, 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, into := LevelOf(tt.totalXP)
			assert.Equal(t, tt.wantLevel, level)
			assert.Equal(t, tt.wantInto, into)
		})
	}
}

func TestLevelOf_BeyondCachedRange(t *testing.T) {
	start := TotalXPForLevel(cachedLevels + 3)
	level, into := LevelOf(start + 7)
	assert.Equal(t, cachedLevels+3, level)
	assert.Equal(t, 7, into)

	level, into = LevelOf(TotalXPForLevel(cachedLevels + 1))
	assert.Equal(t, cachedLevels+1, level)
	assert.Equal(t, 0, into)
}

func TestLevelOf_XPIntoLevelBelowCost(t *testing.T) {
	for xp := 0; xp < 5000; xp += 7 {
		level, into := LevelOf(xp)
		require.GreaterOrEqual(t, level, 1)
		require.GreaterOrEqual(t, into, 0)
		require.Less(t, into, XPForLevel(level), "xp=%d", xp)
		require.Equal(t, xp, TotalXPForLevel(level)+into, "xp=%d", xp)
	}
}

func TestLevelOf_Monotonic(t *testing.T) {
	prev := 1
	for xp := 0; xp < 20000; xp += 13 {
		level, _ := LevelOf(xp)
		require.GreaterOrEqual(t, level, prev, "level decreased at xp=%d", xp)
		prev = level
	}
}

func TestProgressOf(t *testing.T) {
	p := ProgressOf(105)
	assert.Equal(t, 2, p.Level)
	assert.Equal(t, 5, p.XPIntoLevel)
	assert.Equal(t, 150, p.XPForNextLevel)
	assert.Equal(t, 145, p.XPToNextLevel)
	assert.InDelta(t, 3.33, p.Percent, 0.001)

	zero := ProgressOf(0)
	assert.Equal(t, 1, zero.Level)
	assert.Equal(t, 100, zero.XPToNextLevel)
	assert.Zero(t, zero.Percent)
}

func TestTotalXPForLevel(t *testing.T) {
	assert.Equal(t, 0, TotalXPForLevel(0))
	assert.Equal(t, 0, TotalXPForLevel(1))
	assert.Equal(t, 100, TotalXPForLevel(2))
	assert.Equal(t, 250, TotalXPForLevel(3))
	assert.Equal(t, 475, TotalXPForLevel(4))
}

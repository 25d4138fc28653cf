package domain

import (
	"math"
	"sync"
)

// BaseLevelXP is the cost of going from level 1 to level 2.
const BaseLevelXP = 100

// LevelGrowth is the factor by which each level's cost grows.
const LevelGrowth = 1.5

// cachedLevels bounds the threshold table. Level 60 already needs more than 10^12 XP.
const cachedLevels = 60

var (
	thresholdsOnce sync.Once
	// thresholds[i] is the cumulative XP needed to reach level i+1.
	thresholds []int
)

// LevelProgress describes where a total XP amount sits on the level curve.
type LevelProgress struct {
	Level          int     `json:"level"`
	XPIntoLevel    int     `json:"xp_into_level"`
	XPForNextLevel int     `json:"xp_for_next_level"`
	XPToNextLevel  int     `json:"xp_to_next_level"`
	Percent        float64 `json:"percent"`
}

// XPForLevel returns the XP needed to advance from level n to n+1:
// floor(100 * 1.5^(n-1)). Levels below 1 are treated as level 1.
func XPForLevel(n int) int {
	if n < 1 {
		n = 1
	}
	cost := math.Floor(BaseLevelXP * math.Pow(LevelGrowth, float64(n-1)))
	if cost >= math.MaxInt64 {
		return math.MaxInt
	}
	return int(cost)
}

func levelThresholds() []int {
	thresholdsOnce.Do(func() {
		thresholds = make([]int, cachedLevels+1)
		for i := 1; i <= cachedLevels; i++ {
			thresholds[i] = thresholds[i-1] + XPForLevel(i)
		}
	})
	return thresholds
}

// LevelOf converts total XP into a level (>= 1) and the XP earned inside that level.
// LevelOf(0) is (1, 0). Negative input is treated as zero.
func LevelOf(totalXP int) (level int, xpIntoLevel int) {
	if totalXP <= 0 {
		return 1, 0
	}

	table := levelThresholds()
	if totalXP < table[cachedLevels] {
		// table is strictly increasing; find the last threshold <= totalXP.
		lo, hi := 0, cachedLevels
		for lo < hi {
			mid := (lo + hi + 1) / 2
			if table[mid] <= totalXP {
				lo = mid
			} else {
				hi = mid - 1
			}
		}
		return lo + 1, totalXP - table[lo]
	}

	// Past the cached range, keep walking one level at a time.
	level = cachedLevels + 1
	remaining := totalXP - table[cachedLevels]
	for {
		cost := XPForLevel(level)
		if remaining < cost {
			return level, remaining
		}
		remaining -= cost
		level++
	}
}

// ProgressOf returns the full level progress for total XP.
func ProgressOf(totalXP int) LevelProgress {
	level, into := LevelOf(totalXP)
	next := XPForLevel(level)
	return LevelProgress{
		Level:          level,
		XPIntoLevel:    into,
		XPForNextLevel: next,
		XPToNextLevel:  next - into,
		Percent:        math.Round(float64(into)/float64(next)*10000) / 100,
	}
}

// TotalXPForLevel returns the cumulative XP at which level n starts.
func TotalXPForLevel(n int) int {
	if n <= 1 {
		return 0
	}
	table := levelThresholds()
	if n-1 <= cachedLevels {
		return table[n-1]
	}
	total := table[cachedLevels]
	for l := cachedLevels + 1; l < n; l++ {
		cost := XPForLevel(l)
		if total > math.MaxInt-cost {
			return math.MaxInt
		}
		total += cost
	}
	return total
}

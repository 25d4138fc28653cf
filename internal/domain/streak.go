package domain

import "fmt"

// StreakState tracks day-granularity activity continuity.
type StreakState struct {
	Current      int     `json:"current"`
	Best         int     `json:"best"`
	LastActivity Date    `json:"last_activity"`
	Week         [7]bool `json:"week"` // Monday..Sunday
}

// ActiveDaysThisWeek counts the days marked in the weekly bitmap.
func (s StreakState) ActiveDaysThisWeek() int {
	n := 0
	for _, active := range s.Week {
		if active {
			n++
		}
	}
	return n
}

// UpdateStreak applies activity on today to state.
//
// Activity on the same day as the last one changes nothing. Activity exactly one
// day later extends the streak, and a longer gap restarts it at 1. Best never
// decreases. The week bitmap is cleared whenever today starts a new ISO week.
// A today earlier than the last activity is ignored.
func UpdateStreak(state StreakState, today Date) (StreakState, error) {
	if !today.Valid() {
		return state, fmt.Errorf("%w: invalid activity date %+v", ErrInvalidArgument, today)
	}

	next := state

	if state.LastActivity.IsZero() {
		next.Current = 1
		next.Best = max(state.Best, 1)
		next.LastActivity = today
		next.Week = [7]bool{}
		next.Week[today.WeekdayIndex()] = true
		return next, nil
	}

	gap := today.DaysSince(state.LastActivity)
	switch {
	case gap <= 0:
		return state, nil

	case gap == 1:
		next.Current = state.Current + 1
		next.Best = max(state.Best, next.Current)
		if !today.SameISOWeek(state.LastActivity) {
			next.Week = [7]bool{}
		}

	default:
		next.Current = 1
		next.Best = max(state.Best, 1)
		next.Week = [7]bool{}
	}

	next.LastActivity = today
	next.Week[today.WeekdayIndex()] = true
	return next, nil
}

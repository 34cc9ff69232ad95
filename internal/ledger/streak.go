package ledger

import (
	"time"

	"agent-arena/internal/store"
)

const streakCycle = 7

// CalendarDay returns the date of t in loc, as midnight UTC.
func CalendarDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NextStreak continues the streak only when the last claim was yesterday.
func NextStreak(last *store.DailyReward, today time.Time) int {
	if last == nil {
		return 1
	}
	prev := CalendarDay(last.RewardDate, time.UTC)
	if prev.AddDate(0, 0, 1).Equal(today) {
		return last.Streak + 1
	}
	return 1
}

func StreakBonus(streak int, bonus int64) int64 {
	if streak > 0 && streak%streakCycle == 0 {
		return bonus
	}
	return 0
}

// DailyStatus describes the agent's daily reward before claiming. Streak is
// the streak the next claim lands on, or the current one once today is taken.
type DailyStatus struct {
	CanClaim   bool       `json:"can_claim"`
	Streak     int        `json:"streak"`
	NextReward int64      `json:"next_reward"`
	LastClaim  *time.Time `json:"last_claim_date,omitempty"`
}

// StatusFor derives the daily status from the most recent claim. When today
// is already claimed NextReward is tomorrow's amount.
func StatusFor(last *store.DailyReward, today time.Time, base, bonus int64) DailyStatus {
	st := DailyStatus{CanClaim: true}
	if last != nil {
		day := CalendarDay(last.RewardDate, time.UTC)
		st.LastClaim = &day
		if !day.Before(today) {
			st.CanClaim = false
			st.Streak = last.Streak
			st.NextReward = base + StreakBonus(last.Streak+1, bonus)
			return st
		}
	}
	st.Streak = NextStreak(last, today)
	st.NextReward = base + StreakBonus(st.Streak, bonus)
	return st
}

package achievement

import (
	"sort"

	"fitQuestAPI/internal/stats"
)

func (m MetricType) Known() bool {
	switch m {
	case MetricTotalWorkouts, MetricTotalWorkoutHours, MetricCurrentStreak, MetricLongestStreak,
		MetricTotalPRs, MetricTotalMeals, MetricTotalFriends, MetricTotalGoals,
		MetricWeightGoals, MetricStrengthGoals, MetricCardioGoals:
		return true
	}
	return false
}

// MetricValue reads the value a metric type refers to from a stats snapshot.
// Workout hours are whole hours, rounded down.
func MetricValue(m MetricType, s *stats.UserStatsRecord) float64 {
	if s == nil {
		return 0
	}
	switch m {
	case MetricTotalWorkouts:
		return float64(s.TotalWorkouts)
	case MetricTotalWorkoutHours:
		return float64(s.TotalWorkoutSeconds / 3600)
	case MetricCurrentStreak:
		return float64(s.CurrentStreak)
	case MetricLongestStreak:
		return float64(s.LongestStreak)
	case MetricTotalPRs:
		return float64(s.TotalPRs)
	case MetricTotalMeals:
		return float64(s.TotalMealsLogged)
	case MetricTotalFriends:
		return float64(s.TotalFriends)
	case MetricTotalGoals:
		return float64(s.TotalGoalsCompleted)
	case MetricWeightGoals:
		return float64(s.WeightGoalsCompleted)
	case MetricStrengthGoals:
		return float64(s.StrengthGoalsCompleted)
	case MetricCardioGoals:
		return float64(s.CardioGoalsCompleted)
	}
	return 0
}

// ProgressPercent is progress over threshold clamped to [0, 100]. Unlocked
// definitions are always complete.
func ProgressPercent(def Definition, progress float64, unlocked bool) float64 {
	if unlocked {
		return 100
	}
	p := progress / def.Threshold * 100
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Project joins the active definitions with a user's state rows. Definitions
// without a row yet show zero progress. Unlocked entries come first, then
// catalog order.
func Project(c *Catalog, states []UserAchievementState) []AchievementWithStatus {
	byID := make(map[string]UserAchievementState, len(states))
	for _, st := range states {
		byID[st.AchievementID] = st
	}

	out := make([]AchievementWithStatus, 0, c.Len())
	for _, def := range c.Active() {
		st := byID[def.ID]
		out = append(out, AchievementWithStatus{
			Definition:      def,
			CurrentProgress: st.CurrentProgress,
			ProgressPercent: ProgressPercent(def, st.CurrentProgress, st.IsUnlocked),
			Unlocked:        st.IsUnlocked,
			UnlockedAt:      st.UnlockedAt,
		})
	}

	// unlocked rows from retired definitions stay visible
	for _, st := range states {
		def, ok := c.Get(st.AchievementID)
		if !ok || def.IsActive || !st.IsUnlocked {
			continue
		}
		out = append(out, AchievementWithStatus{
			Definition:      def,
			CurrentProgress: st.CurrentProgress,
			ProgressPercent: 100,
			Unlocked:        true,
			UnlockedAt:      st.UnlockedAt,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Unlocked != out[j].Unlocked {
			return out[i].Unlocked
		}
		return out[i].SortOrder < out[j].SortOrder
	})
	return out
}

// Summarize totals unlocked points and counts per rarity.
func Summarize(items []AchievementWithStatus) Summary {
	s := Summary{Total: len(items), ByRarity: make(map[Rarity]int)}
	for _, it := range items {
		if !it.Unlocked {
			continue
		}
		s.Unlocked++
		s.TotalPoints += it.Points
		s.ByRarity[it.Rarity]++
	}
	return s
}

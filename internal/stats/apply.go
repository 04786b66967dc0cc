package stats

import (
	"time"

	"github.com/google/uuid"

	"fitQuestAPI/internal/streak"
)

// Apply mutates the counters of rec for ev. Streak fields are left to
// UpdateStreak since they need the workout-date history.
func Apply(rec *UserStatsRecord, ev Event, now time.Time) {
	switch e := ev.(type) {
	case WorkoutCompleted:
		rec.TotalWorkouts++
		if e.Duration != nil {
			rec.TotalWorkoutSeconds += int64(e.Duration.Seconds())
		}
		at := now
		if !e.CompletedAt.IsZero() {
			at = e.CompletedAt
		}
		if rec.LastWorkoutDate == nil || at.After(*rec.LastWorkoutDate) {
			rec.LastWorkoutDate = &at
		}
	case PRSet:
		rec.TotalPRs += e.Count
	case MealLogged:
		rec.TotalMealsLogged++
	case FriendAdded:
		rec.TotalFriends++
	case FriendRemoved:
		if rec.TotalFriends > 0 {
			rec.TotalFriends--
		}
	case GoalCompleted:
		rec.TotalGoalsCompleted++
		switch e.GoalType {
		case GoalWeightLoss, GoalWeightGain:
			rec.WeightGoalsCompleted++
		case GoalExerciseStrength:
			rec.StrengthGoalsCompleted++
		case GoalCardioTime, GoalCardioDistance:
			rec.CardioGoalsCompleted++
		}
	}
	rec.UpdatedAt = now
}

// UpdateStreak stores a freshly computed streak on rec. Longest never
// shrinks. It returns the milestone reached, if the new current streak lands
// on one and grew past the previous value.
func UpdateStreak(rec *UserStatsRecord, r streak.Result) *int {
	previous := rec.CurrentStreak

	rec.CurrentStreak = r.Current
	if r.Longest > rec.LongestStreak {
		rec.LongestStreak = r.Longest
	}
	if rec.CurrentStreak > rec.LongestStreak {
		rec.LongestStreak = rec.CurrentStreak
	}

	if rec.CurrentStreak > previous && IsStreakMilestone(rec.CurrentStreak) {
		m := rec.CurrentStreak
		return &m
	}
	return nil
}

// FromHistory builds the initial record for a user from aggregates over their
// existing activity. The streak is computed with policy at ref.
func FromHistory(userID uuid.UUID, h Historical, policy streak.Policy, ref time.Time) *UserStatsRecord {
	rec := &UserStatsRecord{
		UserID:                 userID,
		TotalWorkouts:          h.Workouts,
		TotalWorkoutSeconds:    h.WorkoutSeconds,
		TotalPRs:               h.PRs,
		TotalMealsLogged:       h.Meals,
		TotalFriends:           h.Friends,
		TotalGoalsCompleted:    h.Goals.Total,
		WeightGoalsCompleted:   h.Goals.Weight,
		StrengthGoalsCompleted: h.Goals.Strength,
		CardioGoalsCompleted:   h.Goals.Cardio,
		LastWorkoutDate:        h.LastWorkoutDate,
		CreatedAt:              ref,
		UpdatedAt:              ref,
	}
	if rec.LastWorkoutDate == nil && len(h.WorkoutDates) > 0 {
		last := h.WorkoutDates[0]
		for _, d := range h.WorkoutDates[1:] {
			if d.After(last) {
				last = d
			}
		}
		rec.LastWorkoutDate = &last
	}

	r := streak.Compute(policy, h.WorkoutDates, ref)
	rec.CurrentStreak = r.Current
	rec.LongestStreak = r.Longest
	return rec
}

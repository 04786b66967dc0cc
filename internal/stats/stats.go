package stats

import (
	"time"

	"github.com/google/uuid"
)

// StreakMilestones are the current-streak values that trigger a milestone
// notification when reached.
var StreakMilestones = []int{7, 30, 90, 180, 365}

// IsStreakMilestone reports whether n is one of StreakMilestones.
func IsStreakMilestone(n int) bool {
	for _, m := range StreakMilestones {
		if m == n {
			return true
		}
	}
	return false
}

// UserStatsRecord holds the per-user aggregate counters achievements are
// evaluated against.
type UserStatsRecord struct {
	UserID                 uuid.UUID  `json:"user_id" db:"user_id"`
	TotalWorkouts          int        `json:"total_workouts" db:"total_workouts"`
	TotalWorkoutSeconds    int64      `json:"total_workout_seconds" db:"total_workout_seconds"`
	TotalPRs               int        `json:"total_prs" db:"total_prs"`
	TotalMealsLogged       int        `json:"total_meals_logged" db:"total_meals_logged"`
	TotalFriends           int        `json:"total_friends" db:"total_friends"`
	TotalGoalsCompleted    int        `json:"total_goals_completed" db:"total_goals_completed"`
	WeightGoalsCompleted   int        `json:"weight_goals_completed" db:"weight_goals_completed"`
	StrengthGoalsCompleted int        `json:"strength_goals_completed" db:"strength_goals_completed"`
	CardioGoalsCompleted   int        `json:"cardio_goals_completed" db:"cardio_goals_completed"`
	CurrentStreak          int        `json:"current_streak" db:"current_streak"`
	LongestStreak          int        `json:"longest_streak" db:"longest_streak"`
	LastWorkoutDate        *time.Time `json:"last_workout_date,omitempty" db:"last_workout_date"`
	CreatedAt              time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at" db:"updated_at"`
}

// Clone returns a deep copy of r.
func (r *UserStatsRecord) Clone() *UserStatsRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.LastWorkoutDate != nil {
		t := *r.LastWorkoutDate
		c.LastWorkoutDate = &t
	}
	return &c
}

// GoalTotals are completed-goal counts split by goal family.
type GoalTotals struct {
	Total    int `json:"total" db:"total"`
	Weight   int `json:"weight" db:"weight"`
	Strength int `json:"strength" db:"strength"`
	Cardio   int `json:"cardio" db:"cardio"`
}

// Historical is the aggregate history used to build a stats record for a
// user who has none yet.
type Historical struct {
	Workouts        int
	WorkoutSeconds  int64
	PRs             int
	Meals           int
	Friends         int
	Goals           GoalTotals
	WorkoutDates    []time.Time
	LastWorkoutDate *time.Time
}

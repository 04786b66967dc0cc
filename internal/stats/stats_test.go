package stats

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitQuestAPI/internal/streak"
)

var now = time.Date(2026, time.May, 10, 12, 0, 0, 0, time.UTC)

func TestApply_Counters(t *testing.T) {
	rec := &UserStatsRecord{UserID: uuid.New()}
	d := 45 * time.Minute

	Apply(rec, WorkoutCompleted{Duration: &d}, now)
	Apply(rec, WorkoutCompleted{}, now)
	Apply(rec, PRSet{Count: 2}, now)
	Apply(rec, MealLogged{}, now)
	Apply(rec, FriendAdded{FriendID: uuid.New()}, now)
	Apply(rec, GoalCompleted{GoalType: GoalWeightGain}, now)
	Apply(rec, GoalCompleted{GoalType: GoalExerciseStrength}, now)
	Apply(rec, GoalCompleted{GoalType: GoalCardioDistance}, now)
	Apply(rec, GoalCompleted{GoalType: GoalCustom}, now)

	assert.Equal(t, 2, rec.TotalWorkouts)
	assert.Equal(t, int64(2700), rec.TotalWorkoutSeconds)
	assert.Equal(t, 2, rec.TotalPRs)
	assert.Equal(t, 1, rec.TotalMealsLogged)
	assert.Equal(t, 1, rec.TotalFriends)
	assert.Equal(t, 4, rec.TotalGoalsCompleted)
	assert.Equal(t, 1, rec.WeightGoalsCompleted)
	assert.Equal(t, 1, rec.StrengthGoalsCompleted)
	assert.Equal(t, 1, rec.CardioGoalsCompleted)
	require.NotNil(t, rec.LastWorkoutDate)
	assert.Equal(t, now, *rec.LastWorkoutDate)
}

func TestApply_WorkoutUsesCompletedAt(t *testing.T) {
	rec := &UserStatsRecord{}
	done := now.Add(-2 * time.Hour)
	Apply(rec, WorkoutCompleted{CompletedAt: done}, now)
	require.NotNil(t, rec.LastWorkoutDate)
	assert.Equal(t, done, *rec.LastWorkoutDate)
}

func TestApply_LateWorkoutKeepsLatestDate(t *testing.T) {
	latest := now.Add(-time.Hour)
	rec := &UserStatsRecord{LastWorkoutDate: &latest}
	Apply(rec, WorkoutCompleted{CompletedAt: now.AddDate(0, 0, -3)}, now)

	assert.Equal(t, 1, rec.TotalWorkouts)
	require.NotNil(t, rec.LastWorkoutDate)
	assert.Equal(t, latest, *rec.LastWorkoutDate)
}

func TestApply_FriendRemovedFloorsAtZero(t *testing.T) {
	rec := &UserStatsRecord{TotalFriends: 1}
	Apply(rec, FriendRemoved{}, now)
	Apply(rec, FriendRemoved{}, now)
	assert.Equal(t, 0, rec.TotalFriends)
}

func TestUpdateStreak(t *testing.T) {
	t.Run("six to seven emits milestone", func(t *testing.T) {
		rec := &UserStatsRecord{CurrentStreak: 6, LongestStreak: 6}
		m := UpdateStreak(rec, streak.Result{Current: 7, Longest: 7})
		require.NotNil(t, m)
		assert.Equal(t, 7, *m)
		assert.Equal(t, 7, rec.CurrentStreak)
		assert.Equal(t, 7, rec.LongestStreak)
	})

	t.Run("same value again is not a milestone", func(t *testing.T) {
		rec := &UserStatsRecord{CurrentStreak: 7, LongestStreak: 7}
		assert.Nil(t, UpdateStreak(rec, streak.Result{Current: 7, Longest: 7}))
	})

	t.Run("longest never shrinks", func(t *testing.T) {
		rec := &UserStatsRecord{CurrentStreak: 3, LongestStreak: 40}
		assert.Nil(t, UpdateStreak(rec, streak.Result{Current: 1, Longest: 12}))
		assert.Equal(t, 1, rec.CurrentStreak)
		assert.Equal(t, 40, rec.LongestStreak)
	})

	t.Run("current above longest is lifted", func(t *testing.T) {
		rec := &UserStatsRecord{}
		UpdateStreak(rec, streak.Result{Current: 4, Longest: 2})
		assert.LessOrEqual(t, rec.CurrentStreak, rec.LongestStreak)
	})

	t.Run("non milestone value", func(t *testing.T) {
		rec := &UserStatsRecord{CurrentStreak: 7, LongestStreak: 7}
		assert.Nil(t, UpdateStreak(rec, streak.Result{Current: 8, Longest: 8}))
	})
}

func TestFromHistory(t *testing.T) {
	id := uuid.New()
	dates := []time.Time{now.AddDate(0, 0, -2), now.AddDate(0, 0, -1), now}
	rec := FromHistory(id, Historical{
		Workouts:       3,
		WorkoutSeconds: 5400,
		PRs:            1,
		Meals:          9,
		Friends:        2,
		Goals:          GoalTotals{Total: 2, Cardio: 2},
		WorkoutDates:   dates,
	}, streak.StrictPolicy{}, now)

	assert.Equal(t, id, rec.UserID)
	assert.Equal(t, 3, rec.TotalWorkouts)
	assert.Equal(t, int64(5400), rec.TotalWorkoutSeconds)
	assert.Equal(t, 9, rec.TotalMealsLogged)
	assert.Equal(t, 2, rec.CardioGoalsCompleted)
	assert.Equal(t, 3, rec.CurrentStreak)
	assert.Equal(t, 3, rec.LongestStreak)
	require.NotNil(t, rec.LastWorkoutDate)
	assert.Equal(t, now, *rec.LastWorkoutDate)
}

func TestFromHistory_Empty(t *testing.T) {
	rec := FromHistory(uuid.New(), Historical{}, streak.StrictPolicy{}, now)
	assert.Zero(t, rec.TotalWorkouts)
	assert.Zero(t, rec.CurrentStreak)
	assert.Nil(t, rec.LastWorkoutDate)
}

func TestValidate(t *testing.T) {
	neg := -time.Second
	tests := []struct {
		name    string
		ev      Event
		wantErr bool
	}{
		{"workout", WorkoutCompleted{}, false},
		{"negative duration", WorkoutCompleted{Duration: &neg}, true},
		{"pr", PRSet{Count: 1}, false},
		{"zero pr count", PRSet{}, true},
		{"goal", GoalCompleted{GoalType: GoalCardioTime}, false},
		{"unknown goal", GoalCompleted{GoalType: "SLEEP"}, true},
		{"meal", MealLogged{}, false},
		{"nil", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.ev)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidEvent))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	ev, err := Decode([]byte(`{"kind":"WORKOUT_COMPLETED","duration_seconds":1800}`))
	require.NoError(t, err)
	w, ok := ev.(WorkoutCompleted)
	require.True(t, ok)
	require.NotNil(t, w.Duration)
	assert.Equal(t, 30*time.Minute, *w.Duration)

	ev, err = Decode([]byte(`{"kind":"PR_SET"}`))
	require.NoError(t, err)
	assert.Equal(t, PRSet{Count: 1}, ev)

	ev, err = Decode([]byte(`{"kind":"GOAL_COMPLETED","goal_type":"WEIGHT_LOSS"}`))
	require.NoError(t, err)
	assert.Equal(t, KindGoalCompleted, ev.Kind())

	_, err = Decode([]byte(`{"kind":"FRIEND_ADDED"}`))
	assert.ErrorIs(t, err, ErrInvalidEvent)

	_, err = Decode([]byte(`{"kind":"SLEEP_LOGGED"}`))
	assert.ErrorIs(t, err, ErrInvalidEvent)

	_, err = Decode([]byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestIsStreakMilestone(t *testing.T) {
	for _, m := range []int{7, 30, 90, 180, 365} {
		assert.True(t, IsStreakMilestone(m))
	}
	assert.False(t, IsStreakMilestone(8))
	assert.False(t, IsStreakMilestone(0))
}

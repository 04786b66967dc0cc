package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fitQuestAPI/internal/achievement"
	"fitQuestAPI/internal/notification"
	"fitQuestAPI/internal/stats"
	"fitQuestAPI/internal/store"
)

func unlockedIDs(out *Outcome) []string {
	ids := make([]string, 0, len(out.Unlocked))
	for _, u := range out.Unlocked {
		ids = append(ids, u.ID)
	}
	return ids
}

func TestProcessEvent_BootstrapsFromHistory(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	alice := h.addUser("alice")
	bob := h.addUser("bob")
	h.store.AddFriendship(alice, bob)
	h.store.AddWorkout(alice, day(0), 45*time.Minute)

	out, err := h.game.ProcessEvent(ctx, alice, stats.WorkoutCompleted{CompletedAt: day(0)})
	require.NoError(t, err)

	// the workout is already in history, so it is counted once
	assert.Equal(t, 1, out.Stats.TotalWorkouts)
	assert.Equal(t, int64(2700), out.Stats.TotalWorkoutSeconds)
	assert.Equal(t, 1, out.Stats.TotalFriends)
	assert.Equal(t, 1, out.Stats.CurrentStreak)
	assert.ElementsMatch(t, []string{"first_workout", "first_friend"}, unlockedIDs(out))
	assert.Zero(t, out.NotificationFailures)

	assert.Equal(t, 2, h.notificationsOfType(alice, notification.TypeAchievementUnlocked))
	assert.Equal(t, 2, h.notificationsOfType(bob, notification.TypeFriendAchievement))
	assert.True(t, h.state(t, alice, "first_workout").NotificationSent)
}

func TestProcessEvent_UnknownUser(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.game.ProcessEvent(context.Background(), uuid.New(), stats.MealLogged{})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestProcessEvent_RejectsInvalidEvent(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.addUser("alice")

	_, err := h.game.ProcessEvent(context.Background(), alice, stats.PRSet{Count: 0})
	assert.ErrorIs(t, err, stats.ErrInvalidEvent)

	_, err = h.store.GetStats(context.Background(), alice)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUnlockIsMonotonic(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	alice := h.addUser("alice")
	bob := h.addUser("bob")

	_, err := h.game.Recheck(ctx, alice)
	require.NoError(t, err)

	h.store.AddFriendship(alice, bob)
	out, err := h.game.ProcessEvent(ctx, alice, stats.FriendAdded{FriendID: bob})
	require.NoError(t, err)
	assert.Equal(t, []string{"first_friend"}, unlockedIDs(out))

	out, err = h.game.ProcessEvent(ctx, alice, stats.FriendRemoved{FriendID: bob})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Stats.TotalFriends)
	assert.Empty(t, out.Unlocked)

	st := h.state(t, alice, "first_friend")
	assert.True(t, st.IsUnlocked)
	require.NotNil(t, st.UnlockedAt)

	out, err = h.game.Recheck(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, out.Unlocked)
	assert.True(t, h.state(t, alice, "first_friend").IsUnlocked)
	assert.Equal(t, 1, h.notificationsOfType(bob, notification.TypeFriendAchievement))
}

func TestFanout_ExactlyOnceUnderRetry(t *testing.T) {
	notifier := newRecordingNotifier()
	h := newHarness(t, notifier)
	ctx := context.Background()
	alice := h.addUser("alice")
	bob := h.addUser("bob")
	carol := h.addUser("carol")
	h.store.AddFriendship(alice, bob)
	h.store.AddFriendship(alice, carol)
	h.store.AddMeal(alice)
	notifier.failNext(carol, 1)

	out, err := h.game.ProcessEvent(ctx, alice, stats.MealLogged{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"first_meal", "first_friend"}, unlockedIDs(out))
	require.Equal(t, 1, out.NotificationFailures)
	assert.True(t, IsNotificationDelivery(out.NotificationErrors[0]))

	sent, err := h.fanout.RetryPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	sent, err = h.fanout.RetryPending(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, sent)

	def, ok := h.achievements.Catalog().Get("first_meal")
	require.True(t, ok)
	require.NoError(t, h.fanout.NotifyUnlocked(ctx, alice, def))

	out, err = h.game.Recheck(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, out.Unlocked)

	assert.Equal(t, 2, notifier.count(alice, notification.TypeAchievementUnlocked))
	assert.Equal(t, 2, notifier.count(bob, notification.TypeFriendAchievement))
	assert.Equal(t, 2, notifier.count(carol, notification.TypeFriendAchievement))
}

func TestFanout_FailureKeepsUnlock(t *testing.T) {
	notifier := newRecordingNotifier()
	h := newHarness(t, notifier)
	ctx := context.Background()
	alice := h.addUser("alice")
	h.store.AddWorkout(alice, day(0), time.Hour)
	notifier.failNext(alice, 100)

	out, err := h.game.ProcessEvent(ctx, alice, stats.WorkoutCompleted{CompletedAt: day(0)})
	require.NoError(t, err)
	assert.Equal(t, []string{"first_workout"}, unlockedIDs(out))
	assert.Equal(t, 1, out.NotificationFailures)

	st := h.state(t, alice, "first_workout")
	assert.True(t, st.IsUnlocked)
	assert.False(t, st.NotificationSent)

	pending, err := h.store.PendingNotifications(ctx, time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, []store.NotificationRef{store.AchievementRef(alice, "first_workout")}, pending)

	notifier.failNext(alice, 0)
	sent, err := h.fanout.RetryPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.True(t, h.state(t, alice, "first_workout").NotificationSent)
	assert.Equal(t, 1, notifier.count(alice, notification.TypeAchievementUnlocked))
}

func TestFanout_FollowerOptOut(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	alice := h.addUser("alice")
	bob := h.addUser("bob")
	h.store.AddFriendship(alice, bob)
	prefs := notification.DefaultPreferences(bob)
	prefs.EnabledTypes[string(notification.TypeFriendAchievement)] = false
	h.store.SetPreferences(prefs)
	h.store.AddMeal(alice)

	out, err := h.game.ProcessEvent(ctx, alice, stats.MealLogged{})
	require.NoError(t, err)
	assert.NotEmpty(t, out.Unlocked)
	assert.Zero(t, out.NotificationFailures)
	assert.Zero(t, h.notificationsOfType(bob, notification.TypeFriendAchievement))
	assert.Equal(t, len(out.Unlocked), h.notificationsOfType(alice, notification.TypeAchievementUnlocked))
}

func TestStreakMilestone_EmittedOnce(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	alice := h.addUser("alice")
	for i := 0; i < 6; i++ {
		h.store.AddWorkout(alice, day(i), 30*time.Minute)
	}

	h.now = day(5)
	before, err := h.game.Recheck(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, 6, before.Stats.CurrentStreak)
	require.Equal(t, 6, before.Stats.LongestStreak)

	h.now = day(6)
	h.store.AddWorkout(alice, day(6), 30*time.Minute)
	out, err := h.game.ProcessEvent(ctx, alice, stats.WorkoutCompleted{CompletedAt: day(6)})
	require.NoError(t, err)

	assert.Equal(t, 7, out.Stats.CurrentStreak)
	assert.Equal(t, 7, out.Stats.LongestStreak)
	require.NotNil(t, out.Milestone)
	assert.Equal(t, 7, out.Milestone.Value)
	assert.True(t, out.Milestone.StartedOn.Equal(time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)))
	assert.Contains(t, unlockedIDs(out), "streak_7")
	assert.Equal(t, 1, h.notificationsOfType(alice, notification.TypeStreakMilestone))

	h.store.AddWorkout(alice, day(6).Add(time.Hour), 20*time.Minute)
	out, err = h.game.ProcessEvent(ctx, alice, stats.WorkoutCompleted{CompletedAt: day(6).Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 7, out.Stats.CurrentStreak)
	assert.Nil(t, out.Milestone)

	sent, err := h.fanout.RetryPending(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Equal(t, 1, h.notificationsOfType(alice, notification.TypeStreakMilestone))
}

func TestProcessEvent_ConcurrentPRsAreNotLost(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	alice := h.addUser("alice")

	_, err := h.game.Recheck(ctx, alice)
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.game.ProcessEvent(ctx, alice, stats.PRSet{Count: 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, err := h.store.GetStats(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, n, rec.TotalPRs)

	// first_pr, prs_10 and prs_50, each announced once
	assert.Equal(t, 3, h.notificationsOfType(alice, notification.TypeAchievementUnlocked))
}

// conflictStore fails the first fail transactions with store.ErrConflict.
type conflictStore struct {
	*store.MemoryStore
	fail  int32
	calls int32
}

func (c *conflictStore) WithUserTx(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context, tx store.Tx) error) error {
	if atomic.AddInt32(&c.calls, 1) <= c.fail {
		return store.ErrConflict
	}
	return c.MemoryStore.WithUserTx(ctx, userID, fn)
}

func TestApplyEvent_ConflictRetry(t *testing.T) {
	t.Run("exhausted", func(t *testing.T) {
		mem := store.NewMemoryStore()
		cs := &conflictStore{MemoryStore: mem, fail: 100}
		alice := uuid.New()
		mem.AddUser(alice, "", "alice")

		svc := NewStatsService(cs, time.UTC, 3, zap.NewNop())
		_, err := svc.ApplyEvent(context.Background(), alice, stats.MealLogged{})
		require.Error(t, err)
		assert.True(t, IsConcurrentUpdate(err))
		assert.ErrorIs(t, err, store.ErrConflict)
		assert.Equal(t, int32(3), atomic.LoadInt32(&cs.calls))

		var cu *ConcurrentUpdateError
		require.True(t, errors.As(err, &cu))
		assert.Equal(t, alice, cu.UserID)
	})

	t.Run("recovers", func(t *testing.T) {
		mem := store.NewMemoryStore()
		cs := &conflictStore{MemoryStore: mem, fail: 1}
		alice := uuid.New()
		mem.AddUser(alice, "", "alice")
		mem.AddMeal(alice)

		svc := NewStatsService(cs, time.UTC, 3, zap.NewNop())
		res, err := svc.ApplyEvent(context.Background(), alice, stats.MealLogged{})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Stats.TotalMealsLogged)
		assert.Equal(t, int32(2), atomic.LoadInt32(&cs.calls))
	})
}

func TestApplyEvent_GoalAndFriendCounters(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	alice := h.addUser("alice")

	_, err := h.stats.GetStats(ctx, alice)
	require.NoError(t, err)

	for _, ev := range []stats.Event{
		stats.GoalCompleted{GoalType: stats.GoalWeightLoss},
		stats.GoalCompleted{GoalType: stats.GoalCardioDistance},
		stats.GoalCompleted{GoalType: stats.GoalCustom},
		stats.FriendRemoved{FriendID: uuid.New()},
	} {
		_, err := h.stats.ApplyEvent(ctx, alice, ev)
		require.NoError(t, err)
	}

	rec, err := h.stats.GetStats(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.TotalGoalsCompleted)
	assert.Equal(t, 1, rec.WeightGoalsCompleted)
	assert.Equal(t, 1, rec.CardioGoalsCompleted)
	assert.Equal(t, 0, rec.StrengthGoalsCompleted)
	assert.Equal(t, 0, rec.TotalFriends)
}

func TestLeaderboardStreak_DiffersFromStrict(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	alice := h.addUser("alice")
	h.store.AddWorkout(alice, day(0), time.Hour)
	h.store.AddWorkout(alice, day(3), time.Hour)
	h.now = day(3)

	rec, err := h.stats.GetStats(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.CurrentStreak)

	board, err := h.stats.LeaderboardStreak(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 2, board.Current)
}

func TestGetUserAchievements_Cache(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	c := newFakeCache()
	h.achievements.SetCache(c)
	alice := h.addUser("alice")

	items, err := h.achievements.GetUserAchievements(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, items, len(achievement.MustDefault().Active()))
	assert.False(t, items[0].Unlocked)

	_, err = h.achievements.GetUserAchievements(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 2, c.gets)
	assert.Len(t, c.items, 1)

	h.store.AddMeal(alice)
	_, err = h.game.ProcessEvent(ctx, alice, stats.MealLogged{})
	require.NoError(t, err)
	assert.Equal(t, 1, c.invalidated)

	items, err = h.achievements.GetUserAchievements(ctx, alice)
	require.NoError(t, err)
	assert.True(t, items[0].Unlocked)
	assert.Equal(t, "first_meal", items[0].ID)
	assert.Equal(t, float64(100), items[0].ProgressPercent)

	summary, err := h.achievements.Summary(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Unlocked)
}

func TestGetUserAchievements_UnlockDuringReadNotCached(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	c := newFakeCache()
	h.achievements.SetCache(c)
	alice := h.addUser("alice")

	// The unlock commits after the states were read but before they are cached.
	c.beforeSet = func() {
		h.store.AddMeal(alice)
		_, err := h.game.ProcessEvent(ctx, alice, stats.MealLogged{})
		require.NoError(t, err)
	}

	items, err := h.achievements.GetUserAchievements(ctx, alice)
	require.NoError(t, err)
	assert.False(t, findAchievement(t, items, "first_meal").Unlocked)
	assert.Equal(t, 1, c.stale)
	assert.Empty(t, c.items)

	items, err = h.achievements.GetUserAchievements(ctx, alice)
	require.NoError(t, err)
	assert.True(t, findAchievement(t, items, "first_meal").Unlocked)
	assert.Len(t, c.items, 1)
}

func findAchievement(t *testing.T, items []achievement.AchievementWithStatus, id string) achievement.AchievementWithStatus {
	t.Helper()
	for _, it := range items {
		if it.ID == id {
			return it
		}
	}
	require.FailNow(t, "achievement not found", id)
	return achievement.AchievementWithStatus{}
}

func TestCheckAchievements_GuardedAgainstRepeat(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	alice := h.addUser("alice")
	snapshot := &stats.UserStatsRecord{UserID: alice, TotalWorkouts: 10}

	first, err := h.achievements.CheckAchievements(ctx, alice, snapshot)
	require.NoError(t, err)
	ids := make([]string, 0, len(first))
	for _, u := range first {
		ids = append(ids, u.ID)
	}
	assert.ElementsMatch(t, []string{"first_workout", "workouts_10"}, ids)

	again, err := h.achievements.CheckAchievements(ctx, alice, snapshot)
	require.NoError(t, err)
	assert.Empty(t, again)

	assert.Equal(t, float64(10), h.state(t, alice, "workouts_50").CurrentProgress)
}

package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitQuestAPI/internal/notification"
	"fitQuestAPI/internal/stats"
)

func seededStore(t *testing.T) (*MemoryStore, uuid.UUID) {
	t.Helper()
	s := NewMemoryStore()
	id := uuid.New()
	s.AddUser(id, "clerk_"+id.String(), "Ana")
	require.NoError(t, s.WithUserTx(context.Background(), id, func(ctx context.Context, tx Tx) error {
		return tx.CreateStats(ctx, &stats.UserStatsRecord{UserID: id})
	}))
	return s, id
}

func notificationPrefsWithout(userID uuid.UUID, off notification.NotificationType) *notification.NotificationPreferences {
	p := notification.DefaultPreferences(userID)
	p.EnabledTypes[string(off)] = false
	return p
}

func TestMemoryStore_RollbackOnError(t *testing.T) {
	s, id := seededStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithUserTx(ctx, id, func(ctx context.Context, tx Tx) error {
		rec, err := tx.LockStats(ctx, id)
		require.NoError(t, err)
		rec.TotalPRs = 5
		require.NoError(t, tx.SaveStats(ctx, rec))
		_, err = tx.Unlock(ctx, id, "first_pr", 5, time.Now())
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	rec, err := s.GetStats(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, rec.TotalPRs)

	states, err := s.ListAchievementStates(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestMemoryStore_CancelledContextLeavesNothing(t *testing.T) {
	s, id := seededStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	err := s.WithUserTx(ctx, id, func(ctx context.Context, tx Tx) error {
		rec, _ := tx.LockStats(ctx, id)
		rec.TotalMealsLogged = 3
		cancel()
		return tx.SaveStats(ctx, rec)
	})
	assert.ErrorIs(t, err, context.Canceled)

	rec, err := s.GetStats(context.Background(), id)
	require.NoError(t, err)
	assert.Zero(t, rec.TotalMealsLogged)
}

func TestMemoryStore_GuardedUnlock(t *testing.T) {
	s, id := seededStore(t)
	ctx := context.Background()

	unlock := func() bool {
		var ok bool
		require.NoError(t, s.WithUserTx(ctx, id, func(ctx context.Context, tx Tx) error {
			var err error
			ok, err = tx.Unlock(ctx, id, "first_friend", 1, time.Now())
			return err
		}))
		return ok
	}
	assert.True(t, unlock())
	assert.False(t, unlock())

	// progress still moves, unlock state does not
	require.NoError(t, s.WithUserTx(ctx, id, func(ctx context.Context, tx Tx) error {
		return tx.UpdateProgress(ctx, id, "first_friend", 0)
	}))
	states, err := s.ListAchievementStates(ctx, id)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.True(t, states[0].IsUnlocked)
	assert.Equal(t, 1.0, states[0].CurrentProgress)
}

func TestMemoryStore_SerializesUserTransactions(t *testing.T) {
	s, id := seededStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithUserTx(ctx, id, func(ctx context.Context, tx Tx) error {
				rec, err := tx.LockStats(ctx, id)
				if err != nil {
					return err
				}
				rec.TotalPRs++
				return tx.SaveStats(ctx, rec)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, err := s.GetStats(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 50, rec.TotalPRs)
}

func TestMemoryStore_ClaimLease(t *testing.T) {
	s, id := seededStore(t)
	ctx := context.Background()
	now := time.Date(2026, time.June, 1, 9, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	ref := AchievementRef(id, "first_meal")
	ok, err := s.ClaimNotification(ctx, ref, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "locked rows cannot be claimed")

	require.NoError(t, s.WithUserTx(ctx, id, func(ctx context.Context, tx Tx) error {
		_, err := tx.Unlock(ctx, id, "first_meal", 1, now)
		return err
	}))

	ok, _ = s.ClaimNotification(ctx, ref, time.Minute)
	assert.True(t, ok)
	ok, _ = s.ClaimNotification(ctx, ref, time.Minute)
	assert.False(t, ok, "claim still live")

	pending, err := s.PendingNotifications(ctx, time.Minute, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	now = now.Add(2 * time.Minute)
	pending, err = s.PendingNotifications(ctx, time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, []NotificationRef{ref}, pending)

	ok, _ = s.ClaimNotification(ctx, ref, time.Minute)
	assert.True(t, ok, "expired claim can be taken over")

	sent, err := s.MarkNotificationSent(ctx, ref)
	require.NoError(t, err)
	assert.True(t, sent)
	sent, _ = s.MarkNotificationSent(ctx, ref)
	assert.False(t, sent)

	ok, _ = s.ClaimNotification(ctx, ref, time.Minute)
	assert.False(t, ok)
}

func TestMemoryStore_StreakMilestoneDedup(t *testing.T) {
	s, id := seededStore(t)
	ctx := context.Background()
	start := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)

	record := func(startedOn time.Time) bool {
		var ok bool
		require.NoError(t, s.WithUserTx(ctx, id, func(ctx context.Context, tx Tx) error {
			var err error
			ok, err = tx.RecordStreakMilestone(ctx, id, 7, startedOn)
			return err
		}))
		return ok
	}
	assert.True(t, record(start))
	assert.False(t, record(start.Add(15*time.Hour)), "same calendar day")
	assert.True(t, record(start.AddDate(0, 1, 0)), "a new streak earns it again")

	pending, err := s.PendingNotifications(ctx, time.Minute, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestMemoryStore_CommitKeepsNotificationFlags(t *testing.T) {
	s, id := seededStore(t)
	ctx := context.Background()

	require.NoError(t, s.WithUserTx(ctx, id, func(ctx context.Context, tx Tx) error {
		_, err := tx.Unlock(ctx, id, "first_goal", 1, time.Now())
		return err
	}))

	// a later transaction loaded the row before the fanout marked it sent
	err := s.WithUserTx(ctx, id, func(ctx context.Context, tx Tx) error {
		if _, err := tx.AchievementStates(ctx, id); err != nil {
			return err
		}
		ok, err := s.MarkNotificationSent(ctx, AchievementRef(id, "first_goal"))
		require.True(t, ok)
		if err != nil {
			return err
		}
		return tx.UpdateProgress(ctx, id, "goals_25", 1)
	})
	require.NoError(t, err)

	states, err := s.ListAchievementStates(ctx, id)
	require.NoError(t, err)
	for _, st := range states {
		if st.AchievementID == "first_goal" {
			assert.True(t, st.NotificationSent)
		}
	}
}

func TestMemoryStore_FollowersHonourPreferences(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	s.AddFriendship(a, b)
	s.AddFriendship(c, a)

	prefs := notificationPrefsWithout(c, "friend_achievement")
	s.SetPreferences(prefs)

	ids, err := s.ListFollowers(ctx, a, "friend_achievement")
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b}, ids)

	ids, err = s.ListFollowers(ctx, a, "friend_streak_milestone")
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestNotificationRef_Key(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, "achievement:first_pr", AchievementRef(id, "first_pr").Key())
	started := time.Date(2026, time.July, 4, 22, 0, 0, 0, time.UTC)
	assert.Equal(t, "streak:30:2026-07-04", MilestoneRef(id, 30, started).Key())
}

func TestMemoryStore_Inbox(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		n := &notification.Notification{ID: uuid.New(), UserID: a, Type: notification.TypeAchievementUnlocked}
		ids = append(ids, n.ID)
		require.NoError(t, s.InsertNotification(ctx, n))
	}
	require.NoError(t, s.InsertNotification(ctx, &notification.Notification{ID: uuid.New(), UserID: b}))

	page, total, err := s.ListNotifications(ctx, a, 1, 2, false)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, ids[4], page[0].ID, "newest first")

	page, _, err = s.ListNotifications(ctx, a, 3, 2, false)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[0], page[0].ID)

	page, _, err = s.ListNotifications(ctx, a, 9, 2, false)
	require.NoError(t, err)
	assert.Empty(t, page)

	require.NoError(t, s.MarkNotificationRead(ctx, a, ids[0]))
	assert.ErrorIs(t, s.MarkNotificationRead(ctx, b, ids[1]), ErrNotFound)

	unread, err := s.UnreadCount(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 4, unread)

	_, total, err = s.ListNotifications(ctx, a, 1, 10, true)
	require.NoError(t, err)
	assert.Equal(t, 4, total)

	marked, err := s.MarkAllNotificationsRead(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 4, marked)
	unread, err = s.UnreadCount(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)
}

func TestMemoryStore_PreferencesKeepDevices(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	a := uuid.New()

	require.NoError(t, s.RegisterDevice(ctx, a, notification.DeviceToken{Token: "t1", Platform: "android"}))
	require.NoError(t, s.RegisterDevice(ctx, a, notification.DeviceToken{Token: "t1", Platform: "ios"}))

	prefs, err := s.GetPreferences(ctx, a)
	require.NoError(t, err)
	prefs.PushEnabled = false
	prefs.EnabledTypes["streak_milestone"] = false
	prefs.DeviceTokens = nil
	require.NoError(t, s.SavePreferences(ctx, prefs))

	got, err := s.GetPreferences(ctx, a)
	require.NoError(t, err)
	assert.False(t, got.PushEnabled)
	assert.False(t, got.Allows(notification.TypeStreakMilestone))
	assert.Equal(t, []notification.DeviceToken{{Token: "t1", Platform: "ios"}}, got.DeviceTokens)
}

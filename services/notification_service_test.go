package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fitQuestAPI/internal/notification"
	"fitQuestAPI/internal/store"
)

type fakePush struct {
	mu    sync.Mutex
	sent  []string
	fails bool
}

func (p *fakePush) SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fails {
		return errors.New("fcm unavailable")
	}
	p.sent = append(p.sent, title)
	return nil
}

func statusOf(st *store.MemoryStore, userID uuid.UUID) notification.NotificationStatus {
	rows := st.Notifications(userID)
	if len(rows) == 0 {
		return ""
	}
	return rows[0].Status
}

func TestNotify_InAppOnly(t *testing.T) {
	st := store.NewMemoryStore()
	svc := NewNotificationService(st, nil, zap.NewNop())
	alice := uuid.New()

	report, err := svc.Notify(context.Background(), alice, notification.StreakMilestone(7))
	require.NoError(t, err)
	assert.True(t, report.Delivered())
	require.NotNil(t, report.NotificationID)
	assert.True(t, report.Channels[notification.ChannelInApp].Delivered)
	_, hasPush := report.Channels[notification.ChannelPush]
	assert.False(t, hasPush)

	rows := st.Notifications(alice)
	require.Len(t, rows, 1)
	assert.Equal(t, notification.StatusSent, rows[0].Status)
	assert.Equal(t, notification.PriorityHigh, rows[0].Priority)
}

func TestNotify_DisabledTypeIsSkipped(t *testing.T) {
	st := store.NewMemoryStore()
	svc := NewNotificationService(st, nil, zap.NewNop())
	alice := uuid.New()
	prefs := notification.DefaultPreferences(alice)
	prefs.EnabledTypes[string(notification.TypeStreakMilestone)] = false
	st.SetPreferences(prefs)

	report, err := svc.Notify(context.Background(), alice, notification.StreakMilestone(30))
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.True(t, report.Delivered())
	assert.Empty(t, st.Notifications(alice))
}

func TestNotify_PushThroughDispatcher(t *testing.T) {
	tests := []struct {
		name       string
		fails      bool
		wantStatus notification.NotificationStatus
	}{
		{name: "delivered", wantStatus: notification.StatusSent},
		{name: "provider error", fails: true, wantStatus: notification.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewMemoryStore()
			push := &fakePush{fails: tt.fails}
			dispatcher := NewNotificationDispatcher(st, push, zap.NewNop())
			defer dispatcher.Stop()
			svc := NewNotificationService(st, dispatcher, zap.NewNop())

			alice := uuid.New()
			prefs := notification.DefaultPreferences(alice)
			prefs.DeviceTokens = []notification.DeviceToken{{Token: "tok-1", Platform: "ios"}}
			st.SetPreferences(prefs)

			report, err := svc.Notify(context.Background(), alice, notification.StreakMilestone(90))
			require.NoError(t, err)
			assert.True(t, report.Channels[notification.ChannelPush].Queued)
			assert.True(t, report.Channels[notification.ChannelInApp].Delivered)

			require.Eventually(t, func() bool {
				return statusOf(st, alice) == tt.wantStatus
			}, 2*time.Second, 10*time.Millisecond)

			if tt.fails {
				rows := st.Notifications(alice)
				require.NotNil(t, rows[0].FailureReason)
				assert.Contains(t, *rows[0].FailureReason, "fcm unavailable")
			}
		})
	}
}

func TestStoreFollowerDirectory_ExcludesActor(t *testing.T) {
	st := store.NewMemoryStore()
	alice, bob := uuid.New(), uuid.New()
	st.AddFriendship(alice, bob)
	st.AddFriendship(alice, alice)

	dir := NewStoreFollowerDirectory(st)
	ids, err := dir.ListFollowers(context.Background(), alice, notification.TypeFriendAchievement)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{bob}, ids)
}

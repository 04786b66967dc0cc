package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fitQuestAPI/internal/achievement"
	"fitQuestAPI/internal/cache"
	"fitQuestAPI/internal/notification"
	"fitQuestAPI/internal/store"
)

func day(n int) time.Time {
	return time.Date(2026, time.March, 1+n, 12, 0, 0, 0, time.UTC)
}

type harness struct {
	store        *store.MemoryStore
	stats        *StatsService
	achievements *AchievementService
	fanout       *FanoutService
	game         *GamificationService
	now          time.Time
}

// newHarness wires the services over a memory store. A nil notifier means
// the real in-app NotificationService without push.
func newHarness(t *testing.T, notifier Notifier) *harness {
	t.Helper()
	h := &harness{store: store.NewMemoryStore(), now: day(0)}
	clock := func() time.Time { return h.now }
	h.store.SetClock(clock)

	logger := zap.NewNop()
	catalog := achievement.MustDefault()
	if notifier == nil {
		notifier = NewNotificationService(h.store, nil, logger)
	}

	h.stats = NewStatsService(h.store, time.UTC, 3, logger)
	h.stats.SetClock(clock)
	h.achievements = NewAchievementService(h.store, catalog, 3, logger)
	h.achievements.SetClock(clock)
	h.fanout = NewFanoutService(h.store, catalog, notifier, NewStoreFollowerDirectory(h.store), time.Minute, logger)
	h.game = NewGamificationService(h.store, h.stats, h.achievements, h.fanout, 3, logger)
	return h
}

func (h *harness) addUser(name string) uuid.UUID {
	id := uuid.New()
	h.store.AddUser(id, "clerk_"+name, name)
	return id
}

func (h *harness) notificationsOfType(userID uuid.UUID, typ notification.NotificationType) int {
	n := 0
	for _, row := range h.store.Notifications(userID) {
		if row.Type == typ {
			n++
		}
	}
	return n
}

func (h *harness) state(t *testing.T, userID uuid.UUID, achievementID string) achievement.UserAchievementState {
	t.Helper()
	states, err := h.store.ListAchievementStates(context.Background(), userID)
	if err != nil {
		t.Fatalf("list states: %v", err)
	}
	for _, st := range states {
		if st.AchievementID == achievementID {
			return st
		}
	}
	t.Fatalf("no state for %s", achievementID)
	return achievement.UserAchievementState{}
}

// recordingNotifier records every delivery and fails a recipient while
// failures[recipient] is positive.
type recordingNotifier struct {
	mu       sync.Mutex
	calls    map[uuid.UUID][]notification.Message
	failures map[uuid.UUID]int
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		calls:    make(map[uuid.UUID][]notification.Message),
		failures: make(map[uuid.UUID]int),
	}
}

func (r *recordingNotifier) failNext(id uuid.UUID, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[id] = n
}

func (r *recordingNotifier) Notify(ctx context.Context, userID uuid.UUID, msg notification.Message) (*notification.DeliveryReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures[userID] > 0 {
		r.failures[userID]--
		return nil, errors.New("provider unavailable")
	}
	r.calls[userID] = append(r.calls[userID], msg)
	return &notification.DeliveryReport{Channels: map[notification.Channel]notification.ChannelResult{
		notification.ChannelInApp: {Delivered: true},
	}}, nil
}

func (r *recordingNotifier) count(userID uuid.UUID, typ notification.NotificationType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.calls[userID] {
		if m.Type == typ {
			n++
		}
	}
	return n
}

// fakeCache is an in-process AchievementCache with per-user generations.
type fakeCache struct {
	mu          sync.Mutex
	items       map[uuid.UUID][]achievement.AchievementWithStatus
	versions    map[uuid.UUID]int64
	gets        int
	invalidated int
	stale       int
	// beforeSet runs once, at the start of the next Set.
	beforeSet func()
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		items:    make(map[uuid.UUID][]achievement.AchievementWithStatus),
		versions: make(map[uuid.UUID]int64),
	}
}

func (c *fakeCache) Get(ctx context.Context, userID uuid.UUID) ([]achievement.AchievementWithStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	items, ok := c.items[userID]
	if !ok {
		return nil, cache.ErrMiss
	}
	return items, nil
}

func (c *fakeCache) Version(ctx context.Context, userID uuid.UUID) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[userID], nil
}

func (c *fakeCache) Set(ctx context.Context, userID uuid.UUID, version int64, items []achievement.AchievementWithStatus) error {
	c.mu.Lock()
	hook := c.beforeSet
	c.beforeSet = nil
	c.mu.Unlock()
	if hook != nil {
		hook()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[userID] != version {
		c.stale++
		return cache.ErrStale
	}
	c.items[userID] = items
	return nil
}

func (c *fakeCache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated++
	c.versions[userID]++
	delete(c.items, userID)
	return nil
}

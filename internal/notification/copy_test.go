package notification

import (
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"

	"fitQuestAPI/internal/achievement"
)

func render(msgs ...Message) []byte {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "type: %s\n", m.Type)
		fmt.Fprintf(&b, "priority: %s\n", m.Priority)
		fmt.Fprintf(&b, "title: %s\n", m.Title)
		fmt.Fprintf(&b, "body: %s\n", m.Body)

		keys := make([]string, 0, len(m.Data))
		for k := range m.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "data.%s: %v\n", k, m.Data[k])
		}
	}
	return []byte(b.String())
}

func TestNotificationCopy(t *testing.T) {
	def := achievement.Definition{
		ID:          "streak_7",
		Name:        "Week Warrior",
		Description: "Work out 7 days in a row",
		Icon:        "🔥",
		Category:    achievement.CategoryStreak,
		MetricType:  achievement.MetricLongestStreak,
		Threshold:   7,
		Rarity:      achievement.RarityCommon,
		Points:      25,
	}
	actor := uuid.MustParse("00000000-0000-0000-0000-000000000001")

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "notification_copy", render(
		AchievementUnlocked(def),
		FriendAchievement(actor, "Maya", def),
		StreakMilestone(30),
		FriendStreakMilestone(actor, "Maya", 30),
	))
}

func TestFriendMessagesCarryActor(t *testing.T) {
	actor := uuid.New()
	m := FriendAchievement(actor, "Sam", achievement.Definition{Name: "x", Rarity: achievement.RarityEpic})
	if assert.NotNil(t, m.ActorID) {
		assert.Equal(t, actor, *m.ActorID)
	}
	assert.Contains(t, m.Body, "epic")
}

func TestPreferencesAllows(t *testing.T) {
	prefs := DefaultPreferences(uuid.New())
	assert.True(t, prefs.Allows(TypeFriendAchievement))

	prefs.EnabledTypes[string(TypeFriendAchievement)] = false
	assert.False(t, prefs.Allows(TypeFriendAchievement))
	assert.True(t, prefs.Allows(TypeAchievementUnlocked))

	var none *NotificationPreferences
	assert.True(t, none.Allows(TypeStreakMilestone))
}

func TestDeliveryReport(t *testing.T) {
	var nilReport *DeliveryReport
	assert.False(t, nilReport.Delivered())
	assert.True(t, (&DeliveryReport{Skipped: true}).Delivered())
	assert.False(t, (&DeliveryReport{Channels: map[Channel]ChannelResult{ChannelInApp: {Error: "boom"}}}).Delivered())
	assert.True(t, (&DeliveryReport{Channels: map[Channel]ChannelResult{ChannelPush: {Queued: true}}}).Delivered())
}

package notification

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"fitQuestAPI/internal/achievement"
)

var titleCaser = cases.Title(language.English)

func label(s string) string {
	return titleCaser.String(strings.ToLower(strings.ReplaceAll(s, "_", " ")))
}

func achievementData(def achievement.Definition) map[string]any {
	return map[string]any{
		"achievement_id": def.ID,
		"category":       string(def.Category),
		"rarity":         string(def.Rarity),
		"points":         def.Points,
	}
}

// AchievementUnlocked is the direct message to the user who unlocked def.
func AchievementUnlocked(def achievement.Definition) Message {
	return Message{
		Type:     TypeAchievementUnlocked,
		Priority: PriorityHigh,
		Title:    fmt.Sprintf("%s Achievement unlocked: %s", def.Icon, def.Name),
		Body:     fmt.Sprintf("%s. %s %s, +%d points.", def.Description, label(string(def.Rarity)), label(string(def.Category)), def.Points),
		Data:     achievementData(def),
	}
}

// FriendAchievement tells a follower that actorName unlocked def.
func FriendAchievement(actorID uuid.UUID, actorName string, def achievement.Definition) Message {
	data := achievementData(def)
	data["actor_id"] = actorID.String()
	return Message{
		Type:     TypeFriendAchievement,
		Priority: PriorityNormal,
		Title:    fmt.Sprintf("%s unlocked %s", actorName, def.Name),
		Body:     fmt.Sprintf("%s just earned a %s achievement %s", actorName, strings.ToLower(label(string(def.Rarity))), def.Icon),
		Data:     data,
		ActorID:  &actorID,
	}
}

func StreakMilestone(days int) Message {
	return Message{
		Type:     TypeStreakMilestone,
		Priority: PriorityHigh,
		Title:    fmt.Sprintf("🔥 %d day streak!", days),
		Body:     fmt.Sprintf("You have worked out %d days in a row. Keep it going!", days),
		Data:     map[string]any{"streak": days},
	}
}

func FriendStreakMilestone(actorID uuid.UUID, actorName string, days int) Message {
	return Message{
		Type:     TypeFriendStreakMilestone,
		Priority: PriorityNormal,
		Title:    fmt.Sprintf("%s is on a %d day streak", actorName, days),
		Body:     fmt.Sprintf("%s has worked out %d days in a row. Cheer them on!", actorName, days),
		Data:     map[string]any{"streak": days, "actor_id": actorID.String()},
		ActorID:  &actorID,
	}
}

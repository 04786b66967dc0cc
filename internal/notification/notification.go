package notification

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	TypeAchievementUnlocked   NotificationType = "achievement_unlocked"
	TypeFriendAchievement     NotificationType = "friend_achievement"
	TypeStreakMilestone       NotificationType = "streak_milestone"
	TypeFriendStreakMilestone NotificationType = "friend_streak_milestone"
)

// KnownType reports whether name is one of the notification types above.
func KnownType(name string) bool {
	switch NotificationType(name) {
	case TypeAchievementUnlocked, TypeFriendAchievement, TypeStreakMilestone, TypeFriendStreakMilestone:
		return true
	}
	return false
}

type NotificationPriority string

const (
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
)

type NotificationStatus string

const (
	StatusPending NotificationStatus = "pending"
	StatusSent    NotificationStatus = "sent"
	StatusFailed  NotificationStatus = "failed"
)

type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelPush  Channel = "push"
)

// Notification is the in-app row. Push delivery updates its status.
type Notification struct {
	ID            uuid.UUID            `json:"id" db:"id"`
	UserID        uuid.UUID            `json:"user_id" db:"user_id"`
	Type          NotificationType     `json:"type" db:"type"`
	Priority      NotificationPriority `json:"priority" db:"priority"`
	Status        NotificationStatus   `json:"status" db:"status"`
	Title         string               `json:"title" db:"title"`
	Body          string               `json:"body" db:"body"`
	Data          map[string]any       `json:"data" db:"data"`
	ActorID       *uuid.UUID           `json:"actor_id,omitempty" db:"actor_id"`
	FailureReason *string              `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt     time.Time            `json:"created_at" db:"created_at"`
	SentAt        *time.Time           `json:"sent_at,omitempty" db:"sent_at"`
	ReadAt        *time.Time           `json:"read_at,omitempty" db:"read_at"`
}

type DeviceToken struct {
	Token    string `json:"token" db:"token"`
	Platform string `json:"platform" db:"platform"`
}

type NotificationPreferences struct {
	UserID       uuid.UUID       `json:"user_id" db:"user_id"`
	PushEnabled  bool            `json:"push_enabled" db:"push_enabled"`
	InAppEnabled bool            `json:"in_app_enabled" db:"in_app_enabled"`
	EnabledTypes map[string]bool `json:"enabled_types" db:"enabled_types"`
	DeviceTokens []DeviceToken   `json:"device_tokens" db:"-"`
}

// DefaultPreferences applies to users without a preferences row.
func DefaultPreferences(userID uuid.UUID) *NotificationPreferences {
	return &NotificationPreferences{
		UserID:       userID,
		PushEnabled:  true,
		InAppEnabled: true,
		EnabledTypes: map[string]bool{},
	}
}

// Allows reports whether t is enabled. Types missing from EnabledTypes are on.
func (p *NotificationPreferences) Allows(t NotificationType) bool {
	if p == nil {
		return true
	}
	enabled, ok := p.EnabledTypes[string(t)]
	return !ok || enabled
}

// DeliveryReport tells the caller how each channel fared for one recipient.
type DeliveryReport struct {
	NotificationID *uuid.UUID                `json:"notification_id,omitempty"`
	Skipped        bool                      `json:"skipped"`
	Channels       map[Channel]ChannelResult `json:"channels"`
}

type ChannelResult struct {
	Delivered bool   `json:"delivered"`
	Queued    bool   `json:"queued,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Delivered is true when the recipient opted out or at least one channel took
// the message.
func (r *DeliveryReport) Delivered() bool {
	if r == nil {
		return false
	}
	if r.Skipped {
		return true
	}
	for _, c := range r.Channels {
		if c.Delivered || c.Queued {
			return true
		}
	}
	return false
}

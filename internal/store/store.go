// Package store persists gamification state: per-user stats, achievement
// states, notification dedup records. It also reads the activity history
// owned by other services.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fitQuestAPI/internal/achievement"
	"fitQuestAPI/internal/notification"
	"fitQuestAPI/internal/personalrecord"
	"fitQuestAPI/internal/stats"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict means the transaction lost a race and can be retried.
	ErrConflict = errors.New("concurrent update conflict")
)

type RefKind string

const (
	RefAchievement     RefKind = "achievement"
	RefStreakMilestone RefKind = "streak_milestone"
)

// NotificationRef identifies one dedup record: an achievement state row or a
// streak milestone row.
type NotificationRef struct {
	Kind            RefKind   `json:"kind"`
	UserID          uuid.UUID `json:"user_id"`
	AchievementID   string    `json:"achievement_id,omitempty"`
	Milestone       int       `json:"milestone,omitempty"`
	StreakStartedOn time.Time `json:"streak_started_on,omitempty"`
}

func AchievementRef(userID uuid.UUID, achievementID string) NotificationRef {
	return NotificationRef{Kind: RefAchievement, UserID: userID, AchievementID: achievementID}
}

func MilestoneRef(userID uuid.UUID, milestone int, startedOn time.Time) NotificationRef {
	return NotificationRef{Kind: RefStreakMilestone, UserID: userID, Milestone: milestone, StreakStartedOn: civilDate(startedOn)}
}

// Key is the stable text form used for delivery records.
func (r NotificationRef) Key() string {
	if r.Kind == RefStreakMilestone {
		return fmt.Sprintf("streak:%d:%s", r.Milestone, r.StreakStartedOn.Format("2006-01-02"))
	}
	return "achievement:" + r.AchievementID
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Tx is a unit of work scoped to one user. All writes commit together or
// not at all.
type Tx interface {
	// LockStats returns the stats row, locked for the rest of the
	// transaction, or ErrNotFound.
	LockStats(ctx context.Context, userID uuid.UUID) (*stats.UserStatsRecord, error)
	CreateStats(ctx context.Context, rec *stats.UserStatsRecord) error
	SaveStats(ctx context.Context, rec *stats.UserStatsRecord) error

	UserExists(ctx context.Context, userID uuid.UUID) (bool, error)
	WorkoutDates(ctx context.Context, userID uuid.UUID) ([]time.Time, error)
	WorkoutTotals(ctx context.Context, userID uuid.UUID) (count int, seconds int64, err error)
	CountPRs(ctx context.Context, userID uuid.UUID) (int, error)
	CountMeals(ctx context.Context, userID uuid.UUID) (int, error)
	CountFriends(ctx context.Context, userID uuid.UUID) (int, error)
	GoalTotals(ctx context.Context, userID uuid.UUID) (stats.GoalTotals, error)

	AchievementStates(ctx context.Context, userID uuid.UUID) (map[string]achievement.UserAchievementState, error)
	// UpdateProgress creates the state row if missing and stores progress,
	// unless the row is already unlocked.
	UpdateProgress(ctx context.Context, userID uuid.UUID, achievementID string, progress float64) error
	// Unlock moves a row to unlocked. It reports false when the row was
	// already unlocked.
	Unlock(ctx context.Context, userID uuid.UUID, achievementID string, progress float64, at time.Time) (bool, error)
	// RecordStreakMilestone reports false when the milestone was already
	// recorded for the streak that started on startedOn.
	RecordStreakMilestone(ctx context.Context, userID uuid.UUID, milestone int, startedOn time.Time) (bool, error)
}

type Store interface {
	// WithUserTx runs fn in a transaction serialized against every other
	// transaction for the same user. ErrConflict is returned when the
	// backend aborted it for concurrency reasons.
	WithUserTx(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context, tx Tx) error) error

	GetStats(ctx context.Context, userID uuid.UUID) (*stats.UserStatsRecord, error)
	ListAchievementStates(ctx context.Context, userID uuid.UUID) ([]achievement.UserAchievementState, error)
	WorkoutDates(ctx context.Context, userID uuid.UUID) ([]time.Time, error)
	ExerciseHistory(ctx context.Context, userID, exerciseID uuid.UUID) ([]personalrecord.Sample, error)
	ResolveClerkUser(ctx context.Context, clerkID string) (uuid.UUID, error)
	DisplayName(ctx context.Context, userID uuid.UUID) (string, error)

	// ClaimNotification takes the lease on an unsent ref. It reports false
	// when the ref was already sent or another claim is still live.
	ClaimNotification(ctx context.Context, ref NotificationRef, lease time.Duration) (bool, error)
	ReleaseNotification(ctx context.Context, ref NotificationRef) error
	// MarkNotificationSent flips the sent flag from false to true.
	MarkNotificationSent(ctx context.Context, ref NotificationRef) (bool, error)
	DeliveryRecorded(ctx context.Context, ref NotificationRef, recipientID uuid.UUID) (bool, error)
	RecordDelivery(ctx context.Context, ref NotificationRef, recipientID uuid.UUID) error
	// PendingNotifications lists unsent refs whose claim is absent or older
	// than lease.
	PendingNotifications(ctx context.Context, lease time.Duration, limit int) ([]NotificationRef, error)

	ListFollowers(ctx context.Context, userID uuid.UUID, pref notification.NotificationType) ([]uuid.UUID, error)
	GetPreferences(ctx context.Context, userID uuid.UUID) (*notification.NotificationPreferences, error)
	InsertNotification(ctx context.Context, n *notification.Notification) error
	SetNotificationStatus(ctx context.Context, id uuid.UUID, status notification.NotificationStatus, reason *string) error

	// ListNotifications returns one page of the inbox, newest first, and the
	// total matching rows. page starts at 1.
	ListNotifications(ctx context.Context, userID uuid.UUID, page, pageSize int, unreadOnly bool) ([]notification.Notification, int, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int, error)
	// MarkNotificationRead returns ErrNotFound when id is not one of the
	// user's notifications.
	MarkNotificationRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) (int, error)
	// SavePreferences upserts the flags and enabled types. Device tokens are
	// managed by RegisterDevice only.
	SavePreferences(ctx context.Context, prefs *notification.NotificationPreferences) error
	RegisterDevice(ctx context.Context, userID uuid.UUID, token notification.DeviceToken) error

	Ping(ctx context.Context) error
	Close()
}

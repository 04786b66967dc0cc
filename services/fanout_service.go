package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fitQuestAPI/internal/achievement"
	"fitQuestAPI/internal/notification"
	"fitQuestAPI/internal/store"
	"fitQuestAPI/utils"
)

type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, msg notification.Message) (*notification.DeliveryReport, error)
}

// FanoutService delivers unlock and streak milestone notifications to the
// user and their followers, at most once per recipient for each ref.
type FanoutService struct {
	store     store.Store
	catalog   *achievement.Catalog
	notifier  Notifier
	followers FollowerDirectory
	lease     time.Duration
	logger    *zap.Logger
}

func NewFanoutService(st store.Store, catalog *achievement.Catalog, notifier Notifier, followers FollowerDirectory, lease time.Duration, logger *zap.Logger) *FanoutService {
	return &FanoutService{
		store:     st,
		catalog:   catalog,
		notifier:  notifier,
		followers: followers,
		lease:     lease,
		logger:    logger,
	}
}

type fanoutPlan struct {
	direct notification.Message
	pref   notification.NotificationType
	friend func(actorName string) notification.Message
}

func (f *FanoutService) NotifyUnlocked(ctx context.Context, userID uuid.UUID, def achievement.Definition) error {
	return f.run(ctx, store.AchievementRef(userID, def.ID), fanoutPlan{
		direct: notification.AchievementUnlocked(def),
		pref:   notification.TypeFriendAchievement,
		friend: func(name string) notification.Message {
			return notification.FriendAchievement(userID, name, def)
		},
	})
}

func (f *FanoutService) NotifyStreakMilestone(ctx context.Context, userID uuid.UUID, m Milestone) error {
	return f.run(ctx, store.MilestoneRef(userID, m.Value, m.StartedOn), fanoutPlan{
		direct: notification.StreakMilestone(m.Value),
		pref:   notification.TypeFriendStreakMilestone,
		friend: func(name string) notification.Message {
			return notification.FriendStreakMilestone(userID, name, m.Value)
		},
	})
}

func (f *FanoutService) run(ctx context.Context, ref store.NotificationRef, plan fanoutPlan) error {
	userID := ref.UserID
	claimed, err := f.store.ClaimNotification(ctx, ref, f.lease)
	if err != nil {
		return f.fail(ref, map[uuid.UUID]error{userID: fmt.Errorf("claim: %w", err)})
	}
	if !claimed {
		// already sent, or another caller holds the lease
		return nil
	}

	failed := make(map[uuid.UUID]error)
	f.deliver(ctx, ref, userID, plan.direct, failed)

	followers, err := f.followers.ListFollowers(ctx, userID, plan.pref)
	if err != nil {
		failed[uuid.Nil] = err
	} else if len(followers) > 0 {
		name := f.actorName(ctx, userID)
		msg := plan.friend(name)
		for _, id := range followers {
			f.deliver(ctx, ref, id, msg, failed)
		}
	}

	if len(failed) > 0 {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := f.store.ReleaseNotification(releaseCtx, ref); err != nil {
			f.logger.Warn("notification_release_failed", zap.String("ref", ref.Key()), zap.Error(err))
		}
		return f.fail(ref, failed)
	}

	if _, err := f.store.MarkNotificationSent(ctx, ref); err != nil {
		// deliveries are recorded, so a retry only flips the flag
		return f.fail(ref, map[uuid.UUID]error{userID: fmt.Errorf("mark sent: %w", err)})
	}

	utils.NotificationsTotal.WithLabelValues(string(ref.Kind), "sent").Inc()
	f.logger.Info("notification_fanout_complete",
		zap.String("user_id", userID.String()),
		zap.String("ref", ref.Key()),
		zap.Int("followers", len(followers)),
	)
	return nil
}

// deliver sends msg to one recipient unless an earlier attempt already did.
func (f *FanoutService) deliver(ctx context.Context, ref store.NotificationRef, recipient uuid.UUID, msg notification.Message, failed map[uuid.UUID]error) {
	done, err := f.store.DeliveryRecorded(ctx, ref, recipient)
	if err != nil {
		failed[recipient] = err
		return
	}
	if done {
		return
	}

	report, err := f.notifier.Notify(ctx, recipient, msg)
	if err == nil && !report.Delivered() {
		err = errors.New("no channel accepted the notification")
	}
	if err != nil {
		failed[recipient] = err
		return
	}

	if err := f.store.RecordDelivery(ctx, ref, recipient); err != nil {
		failed[recipient] = err
	}
}

func (f *FanoutService) actorName(ctx context.Context, userID uuid.UUID) string {
	name, err := f.store.DisplayName(ctx, userID)
	if err != nil || name == "" {
		return "A friend"
	}
	return name
}

func (f *FanoutService) fail(ref store.NotificationRef, failed map[uuid.UUID]error) error {
	utils.NotificationsTotal.WithLabelValues(string(ref.Kind), "failed").Inc()
	return &NotificationDeliveryError{UserID: ref.UserID, Ref: ref, Failed: failed}
}

// RetryPending re-drives unsent refs whose claim has lapsed and returns how
// many completed. Per-ref failures are logged, not returned.
func (f *FanoutService) RetryPending(ctx context.Context, limit int) (int, error) {
	refs, err := f.store.PendingNotifications(ctx, f.lease, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending notifications: %w", err)
	}

	sent := 0
	for _, ref := range refs {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}

		var err error
		switch ref.Kind {
		case store.RefAchievement:
			def, ok := f.catalog.Get(ref.AchievementID)
			if !ok {
				f.logger.Warn("pending_notification_unknown_achievement",
					zap.String("user_id", ref.UserID.String()),
					zap.String("achievement_id", ref.AchievementID),
				)
				_, err = f.store.MarkNotificationSent(ctx, ref)
				break
			}
			err = f.NotifyUnlocked(ctx, ref.UserID, def)
		case store.RefStreakMilestone:
			err = f.NotifyStreakMilestone(ctx, ref.UserID, Milestone{Value: ref.Milestone, StartedOn: ref.StreakStartedOn})
		}

		if err != nil {
			f.logger.Warn("pending_notification_retry_failed", zap.String("ref", ref.Key()), zap.Error(err))
			continue
		}
		sent++
	}
	return sent, nil
}

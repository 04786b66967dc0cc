package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"fitQuestAPI/internal/notification"
	"fitQuestAPI/internal/store"
)

type PushNotificationProvider interface {
	SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]any) error
}

// NotificationDispatcher sends push notifications from a fixed worker pool
// and records the outcome on the in-app row.
type NotificationDispatcher struct {
	store        store.Store
	pushProvider PushNotificationProvider
	workers      int
	jobQueue     chan *DispatchJob
	stopChan     chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	logger       *zap.Logger
}

type DispatchJob struct {
	Notification *notification.Notification
	Preferences  *notification.NotificationPreferences
	// Persisted is false when the in-app row could not be written, so
	// there is no status to update.
	Persisted bool
}

func NewNotificationDispatcher(st store.Store, provider PushNotificationProvider, logger *zap.Logger) *NotificationDispatcher {
	dispatcher := &NotificationDispatcher{
		store:        st,
		pushProvider: provider,
		workers:      5,
		jobQueue:     make(chan *DispatchJob, 100),
		stopChan:     make(chan struct{}),
		logger:       logger,
	}

	dispatcher.startWorkers()
	return dispatcher
}

// Enabled reports whether a push provider is configured.
func (d *NotificationDispatcher) Enabled() bool {
	return d != nil && d.pushProvider != nil
}

func (d *NotificationDispatcher) startWorkers() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
}

func (d *NotificationDispatcher) worker(id int) {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.jobQueue:
			d.processJob(job)
		case <-d.stopChan:
			return
		}
	}
}

func (d *NotificationDispatcher) processJob(job *DispatchJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	notif := job.Notification
	prefs := job.Preferences

	err := d.pushProvider.SendPush(ctx, prefs.DeviceTokens, notif.Title, notif.Body, notif.Data)
	if err != nil {
		d.logger.Warn("push_failed",
			zap.String("notification_id", notif.ID.String()),
			zap.String("user_id", notif.UserID.String()),
			zap.Error(err),
		)
		if job.Persisted {
			d.markAsFailed(ctx, notif, err)
		}
		return
	}

	if job.Persisted {
		d.markAsSent(ctx, notif)
	}
}

// DispatchNotification queues a push. It reports false when the queue stayed
// full or ctx ended first.
func (d *NotificationDispatcher) DispatchNotification(ctx context.Context, job *DispatchJob) bool {
	select {
	case d.jobQueue <- job:
		d.logger.Debug("push_queued", zap.String("notification_id", job.Notification.ID.String()))
		return true
	case <-ctx.Done():
		return false
	case <-time.After(5 * time.Second):
		d.logger.Warn("push_queue_full", zap.String("notification_id", job.Notification.ID.String()))
		return false
	}
}

func (d *NotificationDispatcher) markAsSent(ctx context.Context, notif *notification.Notification) {
	if err := d.store.SetNotificationStatus(ctx, notif.ID, notification.StatusSent, nil); err != nil {
		d.logger.Error("mark_notification_sent_failed", zap.String("notification_id", notif.ID.String()), zap.Error(err))
	}
}

func (d *NotificationDispatcher) markAsFailed(ctx context.Context, notif *notification.Notification, err error) {
	reason := err.Error()
	if dbErr := d.store.SetNotificationStatus(ctx, notif.ID, notification.StatusFailed, &reason); dbErr != nil {
		d.logger.Error("mark_notification_failed_failed", zap.String("notification_id", notif.ID.String()), zap.Error(dbErr))
	}
}

// Stop the dispatcher gracefully. Jobs still queued are dropped.
func (d *NotificationDispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.logger.Info("notification_dispatcher_stopping")
		close(d.stopChan)
		d.wg.Wait()
		d.logger.Info("notification_dispatcher_stopped")
	})
}

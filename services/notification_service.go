package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fitQuestAPI/internal/notification"
	"fitQuestAPI/internal/store"
)

// NotificationService is the multi-channel notifier: it writes the in-app
// row and hands push delivery to the dispatcher.
type NotificationService struct {
	store      store.Store
	dispatcher *NotificationDispatcher
	now        func() time.Time
	logger     *zap.Logger
}

func NewNotificationService(st store.Store, dispatcher *NotificationDispatcher, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		store:      st,
		dispatcher: dispatcher,
		now:        time.Now,
		logger:     logger,
	}
}

// Notify delivers msg to userID on every channel their preferences allow.
// A disabled notification type is reported as skipped, not failed.
func (s *NotificationService) Notify(ctx context.Context, userID uuid.UUID, msg notification.Message) (*notification.DeliveryReport, error) {
	prefs, err := s.store.GetPreferences(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get notification preferences: %w", err)
	}

	report := &notification.DeliveryReport{Channels: make(map[notification.Channel]notification.ChannelResult)}
	if !prefs.Allows(msg.Type) {
		report.Skipped = true
		return report, nil
	}

	push := prefs.PushEnabled && len(prefs.DeviceTokens) > 0 && s.dispatcher.Enabled()
	if !prefs.InAppEnabled && !push {
		report.Skipped = true
		return report, nil
	}

	now := s.now()
	priority := msg.Priority
	if priority == "" {
		priority = notification.PriorityNormal
	}
	n := &notification.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      msg.Type,
		Priority:  priority,
		Status:    notification.StatusPending,
		Title:     msg.Title,
		Body:      msg.Body,
		Data:      msg.Data,
		ActorID:   msg.ActorID,
		CreatedAt: now,
	}
	if !push {
		n.Status = notification.StatusSent
		n.SentAt = &now
	}

	persisted := false
	if prefs.InAppEnabled {
		if err := s.store.InsertNotification(ctx, n); err != nil {
			s.logger.Warn("in_app_notification_failed", zap.String("user_id", userID.String()), zap.Error(err))
			report.Channels[notification.ChannelInApp] = notification.ChannelResult{Error: err.Error()}
		} else {
			persisted = true
			report.NotificationID = &n.ID
			report.Channels[notification.ChannelInApp] = notification.ChannelResult{Delivered: true}
		}
	}

	if push {
		job := &DispatchJob{Notification: n, Preferences: prefs, Persisted: persisted}
		if s.dispatcher.DispatchNotification(ctx, job) {
			report.Channels[notification.ChannelPush] = notification.ChannelResult{Queued: true}
		} else {
			report.Channels[notification.ChannelPush] = notification.ChannelResult{Error: "push queue unavailable"}
		}
	}

	if !report.Delivered() {
		return report, fmt.Errorf("notification for user %s not accepted by any channel", userID)
	}
	return report, nil
}

// GetNotifications returns one page of the user's inbox, newest first.
func (s *NotificationService) GetNotifications(ctx context.Context, userID uuid.UUID, page, pageSize int, unreadOnly bool) (*notification.NotificationListResponse, error) {
	items, total, err := s.store.ListNotifications(ctx, userID, page, pageSize, unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to get notifications: %w", err)
	}
	unread, err := s.store.UnreadCount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count unread notifications: %w", err)
	}

	return &notification.NotificationListResponse{
		Notifications: items,
		Total:         total,
		UnreadCount:   unread,
		Page:          page,
		PageSize:      pageSize,
		HasMore:       page*pageSize < total,
	}, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.store.UnreadCount(ctx, userID)
}

func (s *NotificationService) MarkAsRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	err := s.store.MarkNotificationRead(ctx, userID, notificationID)
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{Resource: "notification", ID: notificationID.String()}
	}
	return err
}

func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.store.MarkAllNotificationsRead(ctx, userID)
}

func (s *NotificationService) GetPreferences(ctx context.Context, userID uuid.UUID) (*notification.NotificationPreferences, error) {
	return s.store.GetPreferences(ctx, userID)
}

// UpdatePreferences merges req into the stored preferences. Unknown
// notification types are rejected.
func (s *NotificationService) UpdatePreferences(ctx context.Context, userID uuid.UUID, req notification.UpdatePreferencesRequest) (*notification.NotificationPreferences, error) {
	for name := range req.EnabledTypes {
		if !notification.KnownType(name) {
			return nil, &ValidationError{Field: "enabled_types", Message: fmt.Sprintf("unknown notification type %q", name)}
		}
	}

	prefs, err := s.store.GetPreferences(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get notification preferences: %w", err)
	}
	if req.PushEnabled != nil {
		prefs.PushEnabled = *req.PushEnabled
	}
	if req.InAppEnabled != nil {
		prefs.InAppEnabled = *req.InAppEnabled
	}
	if prefs.EnabledTypes == nil {
		prefs.EnabledTypes = make(map[string]bool, len(req.EnabledTypes))
	}
	for name, enabled := range req.EnabledTypes {
		prefs.EnabledTypes[name] = enabled
	}

	if err := s.store.SavePreferences(ctx, prefs); err != nil {
		return nil, err
	}
	s.logger.Info("notification_preferences_updated", zap.String("user_id", userID.String()))
	return prefs, nil
}

func (s *NotificationService) RegisterDevice(ctx context.Context, userID uuid.UUID, req notification.RegisterDeviceRequest) error {
	if req.Token == "" {
		return &ValidationError{Field: "token", Message: "required"}
	}
	if req.Platform != "ios" && req.Platform != "android" {
		return &ValidationError{Field: "platform", Message: "must be ios or android"}
	}
	return s.store.RegisterDevice(ctx, userID, notification.DeviceToken{Token: req.Token, Platform: req.Platform})
}

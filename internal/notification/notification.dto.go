package notification

import (
	"github.com/google/uuid"
)

// Message is what the core hands to the notifier for one recipient.
type Message struct {
	Type     NotificationType     `json:"type" validate:"required"`
	Priority NotificationPriority `json:"priority"`
	Title    string               `json:"title" validate:"required"`
	Body     string               `json:"body"`
	Data     map[string]any       `json:"data"`
	ActorID  *uuid.UUID           `json:"actor_id,omitempty"`
}

// NotificationListResponse is one page of a user's in-app inbox.
type NotificationListResponse struct {
	Notifications []Notification `json:"notifications"`
	Total         int            `json:"total"`
	UnreadCount   int            `json:"unread_count"`
	Page          int            `json:"page"`
	PageSize      int            `json:"page_size"`
	HasMore       bool           `json:"has_more"`
}

// UpdatePreferencesRequest changes only the fields that are set.
type UpdatePreferencesRequest struct {
	PushEnabled  *bool           `json:"push_enabled,omitempty"`
	InAppEnabled *bool           `json:"in_app_enabled,omitempty"`
	EnabledTypes map[string]bool `json:"enabled_types,omitempty"`
}

type RegisterDeviceRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

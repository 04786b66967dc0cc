package handlers

import (
	"github.com/gorilla/mux"
)

// RegisterInternalRoutes mounts the collaborator-facing endpoints on r.
// Callers add authentication to r.
func RegisterInternalRoutes(r *mux.Router, game *GamificationHandler, achievements *AchievementHandler) {
	r.HandleFunc("/users/{userID}/events", game.ApplyEvent).Methods("POST")
	r.HandleFunc("/users/{userID}/personal-records", game.RecordSet).Methods("POST")
	r.HandleFunc("/users/{userID}/recheck", game.Recheck).Methods("POST")
	r.HandleFunc("/users/{userID}/achievements", achievements.GetUserAchievements).Methods("GET")
	r.HandleFunc("/users/{userID}/stats", achievements.GetUserStats).Methods("GET")
}

// RegisterUserRoutes mounts the end-user endpoints on r. Callers add Clerk
// authentication to r.
func RegisterUserRoutes(r *mux.Router, achievements *AchievementHandler, notifications *NotificationHandler) {
	r.HandleFunc("/me/achievements", achievements.GetMyAchievements).Methods("GET")
	r.HandleFunc("/me/stats", achievements.GetMyStats).Methods("GET")

	r.HandleFunc("/me/notifications", notifications.GetNotifications).Methods("GET")
	r.HandleFunc("/me/notifications/unread-count", notifications.GetUnreadCount).Methods("GET")
	r.HandleFunc("/me/notifications/read-all", notifications.MarkAllAsRead).Methods("PUT")
	r.HandleFunc("/me/notifications/{id}/read", notifications.MarkAsRead).Methods("PUT")
	r.HandleFunc("/me/notification-preferences", notifications.GetPreferences).Methods("GET")
	r.HandleFunc("/me/notification-preferences", notifications.UpdatePreferences).Methods("PUT")
	r.HandleFunc("/me/devices", notifications.RegisterDevice).Methods("POST")
}

package utils

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fitquest_events_applied_total",
			Help: "Activity events applied to user stats",
		},
		[]string{"kind"},
	)

	AchievementsUnlocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fitquest_achievements_unlocked_total",
			Help: "Achievements newly unlocked",
		},
		[]string{"category"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fitquest_notifications_total",
			Help: "Notification fanout attempts by kind and result",
		},
		[]string{"kind", "result"},
	)

	TxRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fitquest_tx_retries_total",
			Help: "User transactions retried after a concurrency conflict",
		},
	)

	StreakMilestones = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fitquest_streak_milestones_total",
			Help: "Streak milestones reached",
		},
	)
)

// InitMetrics registers the engine collectors with the default registry.
func InitMetrics() {
	prometheus.MustRegister(EventsApplied, AchievementsUnlocked, NotificationsTotal, TxRetries, StreakMilestones)
}

package achievement

import (
	"time"

	"github.com/google/uuid"
)

type Category string

const (
	CategoryWorkout   Category = "WORKOUT"
	CategoryStreak    Category = "STREAK"
	CategoryPR        Category = "PR"
	CategoryTime      Category = "TIME"
	CategoryNutrition Category = "NUTRITION"
	CategorySocial    Category = "SOCIAL"
	CategoryGoal      Category = "GOAL"
)

type MetricType string

const (
	MetricTotalWorkouts     MetricType = "TOTAL_WORKOUTS"
	MetricTotalWorkoutHours MetricType = "TOTAL_WORKOUT_HOURS"
	MetricCurrentStreak     MetricType = "CURRENT_STREAK"
	MetricLongestStreak     MetricType = "LONGEST_STREAK"
	MetricTotalPRs          MetricType = "TOTAL_PRS"
	MetricTotalMeals        MetricType = "TOTAL_MEALS"
	MetricTotalFriends      MetricType = "TOTAL_FRIENDS"
	MetricTotalGoals        MetricType = "TOTAL_GOALS"
	MetricWeightGoals       MetricType = "WEIGHT_GOALS"
	MetricStrengthGoals     MetricType = "STRENGTH_GOALS"
	MetricCardioGoals       MetricType = "CARDIO_GOALS"
)

type Rarity string

const (
	RarityCommon    Rarity = "COMMON"
	RarityUncommon  Rarity = "UNCOMMON"
	RarityRare      Rarity = "RARE"
	RarityEpic      Rarity = "EPIC"
	RarityLegendary Rarity = "LEGENDARY"
)

// Rarities in ascending order.
var Rarities = []Rarity{RarityCommon, RarityUncommon, RarityRare, RarityEpic, RarityLegendary}

type Definition struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Icon        string     `json:"icon" yaml:"icon"`
	Category    Category   `json:"category" yaml:"category"`
	MetricType  MetricType `json:"metric_type" yaml:"metric_type"`
	Threshold   float64    `json:"threshold" yaml:"threshold"`
	Rarity      Rarity     `json:"rarity" yaml:"rarity"`
	Points      int        `json:"points" yaml:"points"`
	SortOrder   int        `json:"sort_order" yaml:"sort_order"`
	IsActive    bool       `json:"is_active" yaml:"-"`
}

// UserAchievementState is the per user and definition evaluation row.
// IsUnlocked never goes back to false once set.
type UserAchievementState struct {
	UserID                uuid.UUID  `json:"user_id" db:"user_id"`
	AchievementID         string     `json:"achievement_id" db:"achievement_id"`
	CurrentProgress       float64    `json:"current_progress" db:"current_progress"`
	IsUnlocked            bool       `json:"is_unlocked" db:"is_unlocked"`
	UnlockedAt            *time.Time `json:"unlocked_at,omitempty" db:"unlocked_at"`
	NotificationSent      bool       `json:"notification_sent" db:"notification_sent"`
	NotificationClaimedAt *time.Time `json:"-" db:"notification_claimed_at"`
	CreatedAt             time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at" db:"updated_at"`
}

type AchievementWithStatus struct {
	Definition
	CurrentProgress float64    `json:"current_progress"`
	ProgressPercent float64    `json:"progress_percent"`
	Unlocked        bool       `json:"unlocked"`
	UnlockedAt      *time.Time `json:"unlocked_at,omitempty"`
}

// Unlocked is a definition that transitioned to unlocked during one check.
type Unlocked struct {
	Definition
	UnlockedAt time.Time `json:"unlocked_at"`
}

type Summary struct {
	Total       int            `json:"total"`
	Unlocked    int            `json:"unlocked"`
	TotalPoints int            `json:"total_points"`
	ByRarity    map[Rarity]int `json:"by_rarity"`
}

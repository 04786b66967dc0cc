package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"fitQuestAPI/internal/achievement"
	"fitQuestAPI/internal/stats"
	"fitQuestAPI/internal/streak"
	"fitQuestAPI/services"
)

type ClerkResolver interface {
	ResolveClerkUser(ctx context.Context, clerkID string) (uuid.UUID, error)
}

type AchievementHandler struct {
	achievements *services.AchievementService
	stats        *services.StatsService
	users        ClerkResolver
}

func NewAchievementHandler(achievements *services.AchievementService, statsSvc *services.StatsService, users ClerkResolver) *AchievementHandler {
	return &AchievementHandler{
		achievements: achievements,
		stats:        statsSvc,
		users:        users,
	}
}

type achievementsResponse struct {
	Achievements []achievement.AchievementWithStatus `json:"achievements"`
	Summary      achievement.Summary                 `json:"summary"`
}

type statsResponse struct {
	Stats             *stats.UserStatsRecord `json:"stats"`
	LeaderboardStreak streak.Result          `json:"leaderboard_streak"`
}

// GetUserAchievements handles GET /internal/v1/users/{userID}/achievements.
func (h *AchievementHandler) GetUserAchievements(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid user id")
		return
	}
	h.writeAchievements(w, r, userID)
}

// GetUserStats handles GET /internal/v1/users/{userID}/stats.
func (h *AchievementHandler) GetUserStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid user id")
		return
	}
	h.writeStats(w, r, userID)
}

// GetMyAchievements handles GET /api/v1/me/achievements for Clerk users.
func (h *AchievementHandler) GetMyAchievements(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	h.writeAchievements(w, r, userID)
}

// GetMyStats handles GET /api/v1/me/stats for Clerk users.
func (h *AchievementHandler) GetMyStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	h.writeStats(w, r, userID)
}

func (h *AchievementHandler) currentUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	return resolveUser(w, r, h.users)
}

func (h *AchievementHandler) writeAchievements(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	items, err := h.achievements.GetUserAchievements(ctx, userID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, achievementsResponse{
		Achievements: items,
		Summary:      achievement.Summarize(items),
	})
}

func (h *AchievementHandler) writeStats(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rec, err := h.stats.GetStats(ctx, userID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	board, err := h.stats.LeaderboardStreak(ctx, userID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, statsResponse{Stats: rec, LeaderboardStreak: board})
}

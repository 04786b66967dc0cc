package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fitQuestAPI/internal/achievement"
	"fitQuestAPI/internal/cache"
	"fitQuestAPI/internal/stats"
	"fitQuestAPI/internal/store"
	"fitQuestAPI/utils"
)

// AchievementCache holds rendered achievement lists per user. Set must
// return cache.ErrStale when Invalidate ran after version was read.
type AchievementCache interface {
	Get(ctx context.Context, userID uuid.UUID) ([]achievement.AchievementWithStatus, error)
	Version(ctx context.Context, userID uuid.UUID) (int64, error)
	Set(ctx context.Context, userID uuid.UUID, version int64, items []achievement.AchievementWithStatus) error
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

type AchievementService struct {
	store       store.Store
	catalog     *achievement.Catalog
	cache       AchievementCache
	maxAttempts int
	now         func() time.Time
	logger      *zap.Logger
}

func NewAchievementService(st store.Store, catalog *achievement.Catalog, maxAttempts int, logger *zap.Logger) *AchievementService {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &AchievementService{
		store:       st,
		catalog:     catalog,
		maxAttempts: maxAttempts,
		now:         time.Now,
		logger:      logger,
	}
}

// SetCache enables caching of GetUserAchievements. A nil cache disables it.
func (s *AchievementService) SetCache(c AchievementCache) {
	s.cache = c
}

func (s *AchievementService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *AchievementService) Catalog() *achievement.Catalog {
	return s.catalog
}

// CheckAchievements evaluates every active definition against snapshot and
// returns the achievements this call unlocked.
func (s *AchievementService) CheckAchievements(ctx context.Context, userID uuid.UUID, snapshot *stats.UserStatsRecord) ([]achievement.Unlocked, error) {
	if snapshot == nil {
		return nil, fmt.Errorf("nil stats snapshot")
	}

	var unlocked []achievement.Unlocked
	err := withUserTx(ctx, s.store, userID, s.maxAttempts, s.logger, func(ctx context.Context, tx store.Tx) error {
		var err error
		unlocked, err = s.checkInTx(ctx, tx, userID, snapshot)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterCheck(ctx, userID, unlocked)
	return unlocked, nil
}

func (s *AchievementService) checkInTx(ctx context.Context, tx store.Tx, userID uuid.UUID, snapshot *stats.UserStatsRecord) ([]achievement.Unlocked, error) {
	states, err := tx.AchievementStates(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get achievement states: %w", err)
	}

	now := s.now()
	var unlocked []achievement.Unlocked
	for _, def := range s.catalog.Active() {
		st, exists := states[def.ID]
		if exists && st.IsUnlocked {
			continue
		}

		progress := achievement.MetricValue(def.MetricType, snapshot)
		if progress >= def.Threshold {
			ok, err := tx.Unlock(ctx, userID, def.ID, progress, now)
			if err != nil {
				return nil, fmt.Errorf("failed to unlock %s: %w", def.ID, err)
			}
			if ok {
				unlocked = append(unlocked, achievement.Unlocked{Definition: def, UnlockedAt: now})
			}
			continue
		}

		if exists && st.CurrentProgress == progress {
			continue
		}
		if err := tx.UpdateProgress(ctx, userID, def.ID, progress); err != nil {
			return nil, fmt.Errorf("failed to update progress for %s: %w", def.ID, err)
		}
	}
	return unlocked, nil
}

// afterCheck runs once the check has committed.
func (s *AchievementService) afterCheck(ctx context.Context, userID uuid.UUID, unlocked []achievement.Unlocked) {
	for _, u := range unlocked {
		utils.AchievementsUnlocked.WithLabelValues(string(u.Category)).Inc()
		s.logger.Info("achievement_unlocked",
			zap.String("user_id", userID.String()),
			zap.String("achievement_id", u.ID),
			zap.String("rarity", string(u.Rarity)),
		)
	}

	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.logger.Warn("achievement_cache_invalidate_failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
}

// GetUserAchievements returns the catalog joined with the user's progress.
func (s *AchievementService) GetUserAchievements(ctx context.Context, userID uuid.UUID) ([]achievement.AchievementWithStatus, error) {
	var version int64
	cacheable := false
	if s.cache != nil {
		items, err := s.cache.Get(ctx, userID)
		if err == nil {
			return items, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("achievement_cache_get_failed", zap.String("user_id", userID.String()), zap.Error(err))
		}

		// The version must be read before the states.
		if version, err = s.cache.Version(ctx, userID); err != nil {
			s.logger.Warn("achievement_cache_version_failed", zap.String("user_id", userID.String()), zap.Error(err))
		} else {
			cacheable = true
		}
	}

	states, err := s.store.ListAchievementStates(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get achievement states: %w", err)
	}
	items := achievement.Project(s.catalog, states)

	if cacheable {
		err := s.cache.Set(ctx, userID, version, items)
		switch {
		case errors.Is(err, cache.ErrStale):
			s.logger.Debug("achievement_cache_set_skipped", zap.String("user_id", userID.String()))
		case err != nil:
			s.logger.Warn("achievement_cache_set_failed", zap.String("user_id", userID.String()), zap.Error(err))
		}
	}
	return items, nil
}

func (s *AchievementService) Summary(ctx context.Context, userID uuid.UUID) (achievement.Summary, error) {
	items, err := s.GetUserAchievements(ctx, userID)
	if err != nil {
		return achievement.Summary{}, err
	}
	return achievement.Summarize(items), nil
}

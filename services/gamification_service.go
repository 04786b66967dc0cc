package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fitQuestAPI/internal/achievement"
	"fitQuestAPI/internal/stats"
	"fitQuestAPI/internal/store"
)

// Outcome is what one event or recheck changed.
type Outcome struct {
	Stats                *stats.UserStatsRecord `json:"stats"`
	Unlocked             []achievement.Unlocked `json:"unlocked"`
	Milestone            *Milestone             `json:"milestone,omitempty"`
	NotificationFailures int                    `json:"notification_failures"`
	NotificationErrors   []error                `json:"-"`
}

// GamificationService runs the full pipeline for one event: stats, unlock
// check, then notification fanout after commit.
type GamificationService struct {
	store        store.Store
	stats        *StatsService
	achievements *AchievementService
	fanout       *FanoutService
	maxAttempts  int
	logger       *zap.Logger
}

func NewGamificationService(st store.Store, statsSvc *StatsService, achievements *AchievementService, fanout *FanoutService, maxAttempts int, logger *zap.Logger) *GamificationService {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &GamificationService{
		store:        st,
		stats:        statsSvc,
		achievements: achievements,
		fanout:       fanout,
		maxAttempts:  maxAttempts,
		logger:       logger,
	}
}

// ProcessEvent applies ev and checks achievements in one transaction. Only
// store and validation errors are returned; notification failures are
// logged and reported on the Outcome.
func (g *GamificationService) ProcessEvent(ctx context.Context, userID uuid.UUID, ev stats.Event) (*Outcome, error) {
	if err := stats.Validate(ev); err != nil {
		return nil, err
	}

	var (
		applied  *ApplyResult
		unlocked []achievement.Unlocked
	)
	err := withUserTx(ctx, g.store, userID, g.maxAttempts, g.logger, func(ctx context.Context, tx store.Tx) error {
		var err error
		applied, err = g.stats.applyInTx(ctx, tx, userID, ev)
		if err != nil {
			return err
		}
		unlocked, err = g.achievements.checkInTx(ctx, tx, userID, applied.Stats)
		return err
	})
	if err != nil {
		return nil, err
	}

	g.stats.recordApplied(ev, applied)
	g.achievements.afterCheck(ctx, userID, unlocked)

	out := &Outcome{Stats: applied.Stats, Unlocked: unlocked, Milestone: applied.Milestone}
	g.notify(ctx, userID, out)
	return out, nil
}

// Recheck evaluates the catalog against the user's stored stats, building
// them from history first if needed.
func (g *GamificationService) Recheck(ctx context.Context, userID uuid.UUID) (*Outcome, error) {
	var (
		snapshot *stats.UserStatsRecord
		unlocked []achievement.Unlocked
	)
	err := withUserTx(ctx, g.store, userID, g.maxAttempts, g.logger, func(ctx context.Context, tx store.Tx) error {
		var err error
		snapshot, err = g.stats.snapshotInTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		unlocked, err = g.achievements.checkInTx(ctx, tx, userID, snapshot)
		return err
	})
	if err != nil {
		return nil, err
	}

	g.achievements.afterCheck(ctx, userID, unlocked)

	out := &Outcome{Stats: snapshot.Clone(), Unlocked: unlocked}
	g.notify(ctx, userID, out)
	return out, nil
}

func (g *GamificationService) notify(ctx context.Context, userID uuid.UUID, out *Outcome) {
	record := func(err error) {
		if err == nil {
			return
		}
		g.logger.Warn("notification_delivery_failed", zap.String("user_id", userID.String()), zap.Error(err))
		out.NotificationErrors = append(out.NotificationErrors, err)
		out.NotificationFailures++
	}

	for _, u := range out.Unlocked {
		record(g.fanout.NotifyUnlocked(ctx, userID, u.Definition))
	}
	if out.Milestone != nil {
		record(g.fanout.NotifyStreakMilestone(ctx, userID, *out.Milestone))
	}
}

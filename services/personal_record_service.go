package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fitQuestAPI/internal/personalrecord"
	"fitQuestAPI/internal/stats"
	"fitQuestAPI/internal/store"
)

type RecordSetResult struct {
	personalrecord.Result
	Outcome *Outcome `json:"outcome,omitempty"`
}

type PersonalRecordService struct {
	store  store.Store
	game   *GamificationService
	logger *zap.Logger
}

func NewPersonalRecordService(st store.Store, game *GamificationService, logger *zap.Logger) *PersonalRecordService {
	return &PersonalRecordService{store: st, game: game, logger: logger}
}

// RecordSet evaluates sample against the sets logged for the exercise before
// it. A PR is applied as a PR_SET event.
func (s *PersonalRecordService) RecordSet(ctx context.Context, userID, exerciseID uuid.UUID, sample personalrecord.Sample) (*RecordSetResult, error) {
	history, err := s.store.ExerciseHistory(ctx, userID, exerciseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get exercise history: %w", err)
	}

	res := personalrecord.Evaluate(sample, history)
	out := &RecordSetResult{Result: res}
	if !res.IsPR {
		return out, nil
	}

	s.logger.Info("personal_record_set",
		zap.String("user_id", userID.String()),
		zap.String("exercise_id", exerciseID.String()),
		zap.String("pr_type", string(res.Type)),
	)

	out.Outcome, err = s.game.ProcessEvent(ctx, userID, stats.PRSet{Count: 1})
	if err != nil {
		return nil, err
	}
	return out, nil
}

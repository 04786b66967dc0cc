package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fitQuestAPI/internal/stats"
	"fitQuestAPI/internal/store"
	"fitQuestAPI/internal/streak"
	"fitQuestAPI/utils"
)

// Milestone is a streak milestone reached by a workout. StartedOn is the
// first day of the streak and, with Value, identifies it for dedup.
type Milestone struct {
	Value     int       `json:"value"`
	StartedOn time.Time `json:"started_on"`
}

type ApplyResult struct {
	Stats     *stats.UserStatsRecord `json:"stats"`
	Milestone *Milestone             `json:"milestone,omitempty"`
}

type StatsService struct {
	store       store.Store
	policy      streak.Policy
	leaderboard streak.Policy
	loc         *time.Location
	maxAttempts int
	now         func() time.Time
	logger      *zap.Logger
}

func NewStatsService(st store.Store, loc *time.Location, maxAttempts int, logger *zap.Logger) *StatsService {
	if loc == nil {
		loc = time.UTC
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &StatsService{
		store:       st,
		policy:      streak.StrictPolicy{},
		leaderboard: streak.DefaultRestDayTolerant(),
		loc:         loc,
		maxAttempts: maxAttempts,
		now:         time.Now,
		logger:      logger,
	}
}

// SetClock replaces the wall clock used for timestamps and streak reference
// days.
func (s *StatsService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *StatsService) clock() time.Time {
	return s.now().In(s.loc)
}

// ApplyEvent applies ev to the user's stats in its own transaction.
func (s *StatsService) ApplyEvent(ctx context.Context, userID uuid.UUID, ev stats.Event) (*ApplyResult, error) {
	if err := stats.Validate(ev); err != nil {
		return nil, err
	}

	var result *ApplyResult
	err := s.withUserTx(ctx, userID, func(ctx context.Context, tx store.Tx) error {
		var err error
		result, err = s.applyInTx(ctx, tx, userID, ev)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.recordApplied(ev, result)
	return result, nil
}

func (s *StatsService) recordApplied(ev stats.Event, result *ApplyResult) {
	utils.EventsApplied.WithLabelValues(string(ev.Kind())).Inc()
	if result.Milestone != nil {
		utils.StreakMilestones.Inc()
	}
}

// applyInTx does the work of ApplyEvent inside an open user transaction.
func (s *StatsService) applyInTx(ctx context.Context, tx store.Tx, userID uuid.UUID, ev stats.Event) (*ApplyResult, error) {
	now := s.clock()

	rec, err := tx.LockStats(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		// history already holds the activity behind ev, so nothing is
		// applied on top of the bootstrap
		rec, err = s.bootstrap(ctx, tx, userID, now)
		if err != nil {
			return nil, err
		}
		return &ApplyResult{Stats: rec.Clone()}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to lock stats: %w", err)
	}

	stats.Apply(rec, ev, now)

	var milestone *Milestone
	if _, ok := ev.(stats.WorkoutCompleted); ok {
		milestone, err = s.refreshStreak(ctx, tx, rec, now)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.SaveStats(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save stats: %w", err)
	}

	return &ApplyResult{Stats: rec.Clone(), Milestone: milestone}, nil
}

// refreshStreak recomputes the strict streak from the workout history plus
// the event's workout, and records a milestone when one was reached.
func (s *StatsService) refreshStreak(ctx context.Context, tx store.Tx, rec *stats.UserStatsRecord, now time.Time) (*Milestone, error) {
	dates, err := tx.WorkoutDates(ctx, rec.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get workout dates: %w", err)
	}
	if rec.LastWorkoutDate != nil {
		dates = append(dates, *rec.LastWorkoutDate)
	}

	ref := now
	if rec.LastWorkoutDate != nil && rec.LastWorkoutDate.After(ref) {
		ref = rec.LastWorkoutDate.In(s.loc)
	}

	reached := stats.UpdateStreak(rec, streak.Compute(s.policy, dates, ref))
	if reached == nil {
		return nil, nil
	}

	startedOn := streakStart(dates, ref, *reached)
	fresh, err := tx.RecordStreakMilestone(ctx, rec.UserID, *reached, startedOn)
	if err != nil {
		return nil, fmt.Errorf("failed to record streak milestone: %w", err)
	}
	if !fresh {
		s.logger.Info("streak_milestone_already_recorded",
			zap.String("user_id", rec.UserID.String()),
			zap.Int("milestone", *reached),
		)
		return nil, nil
	}
	return &Milestone{Value: *reached, StartedOn: startedOn}, nil
}

// streakStart returns the first day of a strict streak of length n that is
// live at ref.
func streakStart(dates []time.Time, ref time.Time, n int) time.Time {
	end := streak.DayOf(ref)
	onRef := false
	for _, d := range dates {
		if streak.DayOf(d.In(ref.Location())) == end {
			onRef = true
			break
		}
	}
	if !onRef {
		end--
	}
	return (end - streak.Day(n-1)).Time()
}

// bootstrap builds the first stats record for a user from their history.
// Aggregates that cannot be read count as zero.
func (s *StatsService) bootstrap(ctx context.Context, tx store.Tx, userID uuid.UUID, now time.Time) (*stats.UserStatsRecord, error) {
	exists, err := tx.UserExists(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check user: %w", err)
	}
	if !exists {
		return nil, &NotFoundError{Resource: "user", ID: userID.String()}
	}

	var h stats.Historical
	warn := func(aggregate string, err error) {
		s.logger.Warn("stats_bootstrap_aggregate_failed",
			zap.String("user_id", userID.String()),
			zap.String("aggregate", aggregate),
			zap.Error(err),
		)
	}

	if count, seconds, err := tx.WorkoutTotals(ctx, userID); err != nil {
		warn("workouts", err)
	} else {
		h.Workouts, h.WorkoutSeconds = count, seconds
	}
	if dates, err := tx.WorkoutDates(ctx, userID); err != nil {
		warn("workout_dates", err)
	} else {
		h.WorkoutDates = dates
	}
	if n, err := tx.CountPRs(ctx, userID); err != nil {
		warn("personal_records", err)
	} else {
		h.PRs = n
	}
	if n, err := tx.CountMeals(ctx, userID); err != nil {
		warn("meals", err)
	} else {
		h.Meals = n
	}
	if n, err := tx.CountFriends(ctx, userID); err != nil {
		warn("friends", err)
	} else {
		h.Friends = n
	}
	if g, err := tx.GoalTotals(ctx, userID); err != nil {
		warn("goals", err)
	} else {
		h.Goals = g
	}

	rec := stats.FromHistory(userID, h, s.policy, now)
	if err := tx.CreateStats(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create stats: %w", err)
	}

	s.logger.Info("stats_bootstrapped",
		zap.String("user_id", userID.String()),
		zap.Int("total_workouts", rec.TotalWorkouts),
		zap.Int("current_streak", rec.CurrentStreak),
	)
	return rec, nil
}

// snapshotInTx returns the locked stats record, bootstrapping it if absent.
func (s *StatsService) snapshotInTx(ctx context.Context, tx store.Tx, userID uuid.UUID) (*stats.UserStatsRecord, error) {
	rec, err := tx.LockStats(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return s.bootstrap(ctx, tx, userID, s.clock())
	} else if err != nil {
		return nil, fmt.Errorf("failed to lock stats: %w", err)
	}
	return rec, nil
}

// GetStats returns the stored record, bootstrapping it on first access.
func (s *StatsService) GetStats(ctx context.Context, userID uuid.UUID) (*stats.UserStatsRecord, error) {
	rec, err := s.store.GetStats(ctx, userID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	err = s.withUserTx(ctx, userID, func(ctx context.Context, tx store.Tx) error {
		var err error
		rec, err = s.snapshotInTx(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// LeaderboardStreak is the rest-day tolerant streak shown on social
// leaderboards. It can differ from the streak on the stats record.
func (s *StatsService) LeaderboardStreak(ctx context.Context, userID uuid.UUID) (streak.Result, error) {
	dates, err := s.store.WorkoutDates(ctx, userID)
	if err != nil {
		return streak.Result{}, fmt.Errorf("failed to get workout dates: %w", err)
	}
	return streak.Compute(s.leaderboard, dates, s.clock()), nil
}

func (s *StatsService) withUserTx(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context, tx store.Tx) error) error {
	return withUserTx(ctx, s.store, userID, s.maxAttempts, s.logger, fn)
}

// withUserTx runs fn in a user transaction, retrying store.ErrConflict up to
// attempts times.
func withUserTx(ctx context.Context, st store.Store, userID uuid.UUID, attempts int, logger *zap.Logger, fn func(ctx context.Context, tx store.Tx) error) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = st.WithUserTx(ctx, userID, fn)
		if !errors.Is(err, store.ErrConflict) {
			return err
		}
		if attempt == attempts {
			break
		}

		utils.TxRetries.Inc()
		logger.Warn("user_tx_conflict_retry",
			zap.String("user_id", userID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 10 * time.Millisecond):
		}
	}
	return &ConcurrentUpdateError{UserID: userID, Attempts: attempts, Err: err}
}
